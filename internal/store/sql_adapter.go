package store

import (
	"context"
	"database/sql"
)

// sqlDB adapts a *sql.DB to TxBeginner, whose BeginTx returns the
// package's own Tx interface rather than a *sql.Tx.
type sqlDB struct {
	db *sql.DB
}

// NewSQL wraps database, typically opened via sql.Open("pgx", dsn),
// as a TxBeginner suitable for New.
func NewSQL(database *sql.DB) TxBeginner {
	return &sqlDB{db: database}
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, _ *TxOptions) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (s *sqlTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.tx.ExecContext(ctx, query, args...)
}

func (s *sqlTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.tx.QueryContext(ctx, query, args...)
}

func (s *sqlTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.tx.QueryRowContext(ctx, query, args...)
}

func (s *sqlTx) Commit() error   { return s.tx.Commit() }
func (s *sqlTx) Rollback() error { return s.tx.Rollback() }
