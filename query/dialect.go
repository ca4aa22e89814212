package query

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
)

// Dialect captures the per-driver differences the executor needs: bind
// placeholder style, table existence probing and case-insensitive LIKE.
type Dialect interface {
	// Name is the database/sql driver name the dialect binds to.
	Name() string
	// Placeholder renders the bind marker for the 1-based argument n.
	Placeholder(n int) string
	// TableExists reports whether the named relation exists.
	TableExists(ctx context.Context, db *sql.DB, table string) (bool, error)
	// CaseInsensitiveLike renders an ILIKE-equivalent predicate over the
	// quoted column and a placeholder.
	CaseInsensitiveLike(column, placeholder string) string
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite3" }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) TableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	const probe = "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?"
	var name string
	switch err := db.QueryRowContext(ctx, probe, table).Scan(&name); {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, backendErr("probe sqlite_master", err)
	}
	return true, nil
}

func (sqliteDialect) CaseInsensitiveLike(column, placeholder string) string {
	return fmt.Sprintf("lower(%s) LIKE lower(%s)", column, placeholder)
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) TableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	const probe = "SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
	var one int
	switch err := db.QueryRowContext(ctx, probe, table).Scan(&one); {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, backendErr("probe information_schema", err)
	}
	return true, nil
}

func (postgresDialect) CaseInsensitiveLike(column, placeholder string) string {
	return fmt.Sprintf("%s ILIKE %s", column, placeholder)
}

// ParseURI splits a connection URI into its dialect and driver DSN.
// Supported schemes: sqlite (sqlite:///relative.db, sqlite:////abs/path.db),
// postgres and postgresql (passed through to lib/pq unchanged).
func ParseURI(uri string) (Dialect, string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, "", fmt.Errorf("parse connection URI: %w", err)
	}
	switch parsed.Scheme {
	case "sqlite":
		path := parsed.Path
		if parsed.Host != "" {
			// sqlite://foo.db puts the file name in the host part.
			path = parsed.Host + path
		}
		path = strings.TrimPrefix(path, "/")
		if parsed.Opaque != "" {
			path = parsed.Opaque
		}
		if path == "" {
			return nil, "", fmt.Errorf("connection URI %q names no database file", uri)
		}
		return sqliteDialect{}, path, nil
	case "postgres", "postgresql":
		return postgresDialect{}, uri, nil
	}
	return nil, "", fmt.Errorf("unsupported connection URI scheme %q", parsed.Scheme)
}

// Open resolves the connection URI and opens the backing store. The caller
// owns the returned handle and must close it.
func Open(uri string) (*sql.DB, Dialect, error) {
	dialect, dsn, err := ParseURI(uri)
	if err != nil {
		return nil, nil, err
	}
	db, err := sql.Open(dialect.Name(), dsn)
	if err != nil {
		return nil, nil, backendErr("open "+dialect.Name(), err)
	}
	return db, dialect, nil
}
