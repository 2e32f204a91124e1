// Package migrate applies the db/migrations directory with
// goose, the way the teacher's own migrate package brings up its
// schema before the app starts serving traffic.
package migrate

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Run applies all pending migrations in db/migrations using goose. It
// opens and closes its own DB handle so it is independent of the
// store's pool.
func Run(dsn string) error {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(30 * time.Second)
	for {
		if err := conn.Ping(); err == nil {
			break
		}
		if time.Now().After(deadline) {
			if err := conn.Ping(); err != nil {
				return fmt.Errorf("db not ready: %w", err)
			}
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(conn, "db/migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}
