// Package store persists the loan domain in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/workflow"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store runs queries against the database or, inside InTx, against one
// transaction.
type Store struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

// New wraps an open database.
func New(db *sql.DB) *Store {
	x := sqlx.NewDb(db, "sqlite")
	return &Store{db: x, q: x}
}

// InTx runs fn in a transaction. Nested calls join the outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(workflow.Store) error) error {
	return s.inTx(ctx, func(tx *Store) error { return fn(tx) })
}

// WithTx runs fn against a Store bound to one transaction.
func (s *Store) WithTx(ctx context.Context, fn func(*Store) error) error {
	return s.inTx(ctx, fn)
}

func (s *Store) inTx(ctx context.Context, fn func(*Store) error) error {
	if _, ok := s.q.(*sqlx.Tx); ok {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return failed("beginning transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return failed("committing transaction", err)
	}
	return nil
}

// get scans one row into dest, mapping no rows to model.ErrNotFound.
func (s *Store) get(ctx context.Context, what string, dest any, query string, args ...any) error {
	err := sqlx.GetContext(ctx, s.q, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	if err != nil {
		return failed("getting "+what, err)
	}
	return nil
}

// execOne runs a statement that must touch exactly one row. Zero rows is
// reported as miss.
func (s *Store) execOne(ctx context.Context, what string, miss error, query string, args ...any) error {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return failed(what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return failed(what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, miss)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, what, query string, args ...any) (int64, error) {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, failed("creating "+what, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, failed("getting "+what+" id", err)
	}
	return id, nil
}

// failed wraps a database error. Unique violations become
// model.ErrConflict, everything else model.ErrStorage.
func failed(what string, err error) error {
	if c := conflict(err); errors.Is(c, model.ErrConflict) {
		return fmt.Errorf("%s: %w", what, c)
	}
	return fmt.Errorf("%s: %w: %w", what, model.ErrStorage, err)
}

// conflict replaces unique constraint violations with model.ErrConflict.
func conflict(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return model.ErrConflict
		case sqlite3.SQLITE_CONSTRAINT:
			// Without extended result codes only the message tells.
			if strings.Contains(se.Error(), "UNIQUE constraint failed") {
				return model.ErrConflict
			}
		}
	}
	return err
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
