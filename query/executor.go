package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// querier is the common surface of *sql.DB and *sql.Tx the statement
// helpers run against.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// plan is a request with identifiers quoted and values coerced, ready for
// statement assembly.
type plan struct {
	req     *Request
	dialect Dialect
	table   string
	columns []planColumn
	types   map[string]TypeTag
}

type planColumn struct {
	name     string
	ident    string
	tag      TypeTag
	value    any
	hasValue bool
	isKey    bool
}

func newPlan(req *Request, dialect Dialect) (*plan, error) {
	table, err := quoteIdentifier(req.Table)
	if err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}

	keys := req.keySet()
	columns := make([]planColumn, len(req.Columns))
	for i, col := range req.Columns {
		ident, err := quoteIdentifier(col.Name)
		if err != nil {
			return nil, fmt.Errorf("column[%d]: %w", i, err)
		}
		value := col.Value
		if col.HasValue {
			value, err = col.Type.Coerce(col.Value)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", col.Name, err)
			}
		}
		columns[i] = planColumn{
			name:     col.Name,
			ident:    ident,
			tag:      col.Type,
			value:    value,
			hasValue: col.HasValue,
			isKey:    keys[col.Name],
		}
	}
	return &plan{
		req:     req,
		dialect: dialect,
		table:   table,
		columns: columns,
		types:   req.columnTypes(),
	}, nil
}

// where renders the key predicates plus the advanced filter, AND-joined.
func (p *plan) where(b *binder) (string, error) {
	clauses := make([]string, 0, len(p.columns)+1)
	for _, col := range p.columns {
		if !col.isKey || !col.hasValue {
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = %s", col.ident, b.bind(col.value)))
	}
	if len(p.req.Filter) > 0 {
		clause, err := p.req.Filter.compile(b, p.types)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), nil
}

func (p *plan) selectList() string {
	idents := make([]string, len(p.columns))
	for i, col := range p.columns {
		idents[i] = col.ident
	}
	return strings.Join(idents, ", ")
}

// declaredRow renders the declared values the way a re-select would,
// used for check mode reporting.
func (p *plan) declaredRow() (Row, error) {
	row := make(Row, len(p.columns))
	for _, col := range p.columns {
		if !col.hasValue {
			continue
		}
		formatted, err := col.tag.Format(col.value)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.name, err)
		}
		row[col.name] = formatted
	}
	return row, nil
}

func (e *executor) Execute(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	exists, err := e.dialect.TableExists(ctx, e.db, req.Table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("table %q: %w", req.Table, ErrTableNotFound)
	}

	p, err := newPlan(req, e.dialect)
	if err != nil {
		return nil, err
	}

	switch req.State {
	case StateSelect:
		rows, err := e.selectRows(ctx, e.db, p)
		if err != nil {
			return nil, err
		}
		return &Result{Rows: rows}, nil
	case StateCount:
		count, err := e.countRows(ctx, e.db, p)
		if err != nil {
			return nil, err
		}
		return &Result{Rows: []Row{{"count": count}}}, nil
	}

	return e.write(ctx, p)
}

// write runs the mutating states inside a single transaction: probe,
// mutate at most once, re-select, commit.
func (e *executor) write(ctx context.Context, p *plan) (*Result, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, backendErr("begin tx", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := e.writeTx(ctx, tx, p)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, backendErr("commit tx", err)
	}
	committed = true
	return res, nil
}

func (e *executor) writeTx(ctx context.Context, tx *sql.Tx, p *plan) (*Result, error) {
	existing, err := e.selectRows(ctx, tx, p)
	if err != nil {
		return nil, err
	}
	req := p.req

	switch req.State {
	case StateAbsent:
		changed := len(existing) > 0
		if changed && !req.CheckMode {
			if err := e.deleteRows(ctx, tx, p); err != nil {
				return nil, err
			}
		}
		return &Result{Changed: changed}, nil

	case StateInsert:
		if !req.CheckMode {
			if err := e.insertRow(ctx, tx, p); err != nil {
				return nil, err
			}
			existing, err = e.selectRows(ctx, tx, p)
			if err != nil {
				return nil, err
			}
		}
		return &Result{Changed: true, Rows: existing}, nil
	}

	// present
	var changed bool
	switch len(existing) {
	case 0:
		changed = true
		if !req.CheckMode {
			if err := e.insertRow(ctx, tx, p); err != nil {
				return nil, err
			}
		}
	case 1:
		changed, err = p.differs(existing[0])
		if err != nil {
			return nil, err
		}
		if changed && !req.CheckMode {
			if err := e.updateRow(ctx, tx, p); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("table %q: %d rows match keys %v: %w",
			req.Table, len(existing), req.Keys, ErrKeyConflict)
	}

	if req.CheckMode {
		row, err := p.declaredRow()
		if err != nil {
			return nil, err
		}
		return &Result{Changed: changed, Rows: []Row{row}}, nil
	}
	if changed {
		existing, err = e.selectRows(ctx, tx, p)
		if err != nil {
			return nil, err
		}
	}
	return &Result{Changed: changed, Rows: existing}, nil
}

// differs reports whether any declared value disagrees with the row read
// back from the table.
func (p *plan) differs(row Row) (bool, error) {
	for _, col := range p.columns {
		if !col.hasValue {
			continue
		}
		want, err := col.tag.Format(col.value)
		if err != nil {
			return false, fmt.Errorf("column %q: %w", col.name, err)
		}
		if row[col.name] != want {
			return true, nil
		}
	}
	return false, nil
}

func (e *executor) selectRows(ctx context.Context, q querier, p *plan) ([]Row, error) {
	b := &binder{dialect: p.dialect}
	where, err := p.where(b)
	if err != nil {
		return nil, err
	}

	keyword := "SELECT"
	if p.req.Distinct {
		keyword = "SELECT DISTINCT"
	}
	stmt := fmt.Sprintf("%s %s FROM %s%s", keyword, p.selectList(), p.table, where)

	rows, err := q.QueryContext(ctx, stmt, b.args...)
	if err != nil {
		return nil, backendErr("select rows", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		holders := make([]any, len(p.columns))
		for i := range holders {
			holders[i] = new(any)
		}
		if err := rows.Scan(holders...); err != nil {
			return nil, backendErr("scan row", err)
		}
		row := make(Row, len(p.columns))
		for i, col := range p.columns {
			formatted, err := col.tag.Format(*holders[i].(*any))
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", col.name, err)
			}
			row[col.name] = formatted
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr("iterate rows", err)
	}
	return out, nil
}

func (e *executor) countRows(ctx context.Context, q querier, p *plan) (int64, error) {
	b := &binder{dialect: p.dialect}
	where, err := p.where(b)
	if err != nil {
		return 0, err
	}

	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", p.table, where)
	if p.req.Distinct {
		stmt = fmt.Sprintf("SELECT COUNT(*) FROM (SELECT DISTINCT %s FROM %s%s) AS distinct_rows",
			p.selectList(), p.table, where)
	}
	rows, err := q.QueryContext(ctx, stmt, b.args...)
	if err != nil {
		return 0, backendErr("count rows", err)
	}
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, backendErr("scan count", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, backendErr("iterate count", err)
	}
	return count, nil
}

func (e *executor) insertRow(ctx context.Context, q querier, p *plan) error {
	b := &binder{dialect: p.dialect}
	idents := make([]string, 0, len(p.columns))
	placeholders := make([]string, 0, len(p.columns))
	for _, col := range p.columns {
		if !col.hasValue {
			continue
		}
		idents = append(idents, col.ident)
		placeholders = append(placeholders, b.bind(col.value))
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		p.table, strings.Join(idents, ", "), strings.Join(placeholders, ", "))
	if _, err := q.ExecContext(ctx, stmt, b.args...); err != nil {
		return backendErr("insert row", err)
	}
	return nil
}

func (e *executor) updateRow(ctx context.Context, q querier, p *plan) error {
	b := &binder{dialect: p.dialect}
	setClauses := make([]string, 0, len(p.columns))
	for _, col := range p.columns {
		if col.isKey || !col.hasValue {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", col.ident, b.bind(col.value)))
	}
	if len(setClauses) == 0 {
		return nil
	}

	where, err := p.where(b)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s%s", p.table, strings.Join(setClauses, ", "), where)
	if _, err := q.ExecContext(ctx, stmt, b.args...); err != nil {
		return backendErr("update row", err)
	}
	return nil
}

func (e *executor) deleteRows(ctx context.Context, q querier, p *plan) error {
	b := &binder{dialect: p.dialect}
	where, err := p.where(b)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf("DELETE FROM %s%s", p.table, where)
	if _, err := q.ExecContext(ctx, stmt, b.args...); err != nil {
		return backendErr("delete rows", err)
	}
	return nil
}
