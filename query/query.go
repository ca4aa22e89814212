// Package query executes declarative SQL operations against a single
// existing table: keyed insert-or-update, plain insert, delete, select and
// count, with typed column descriptors and classified errors. It never
// creates tables or indexes.
package query

import (
	"context"
	"database/sql"
)

// Executor runs one declarative request per call.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Result, error)
}

type executor struct {
	db      *sql.DB
	dialect Dialect
}

// New returns an Executor over an open database handle and its dialect.
func New(db *sql.DB, dialect Dialect) Executor {
	return &executor{db: db, dialect: dialect}
}
