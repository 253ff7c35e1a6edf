package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed sql/sqlite/*.sql sql/postgres/*.sql
var migrationsFS embed.FS

// goose keeps its base FS, logger and dialect in package state.
// Its default logger writes to stdout, which the stdio MCP transport owns.
var gooseMu sync.Mutex

// Migrate applies the embedded SQLite migrations to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "sql/sqlite"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// MigratePostgres opens dsn with the pgx stdlib driver and applies the
// embedded Postgres migrations.
func MigratePostgres(ctx context.Context, dsn string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "sql/postgres"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
