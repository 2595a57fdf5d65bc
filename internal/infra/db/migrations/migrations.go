// Package migrations embeds the schema for both supported SQL dialects.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql mysql/*.sql
var files embed.FS

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Source returns the migration files for driver.
func Source(driver string) (fs.FS, goose.Dialect, error) {
	var dialect goose.Dialect
	switch driver {
	case DriverPostgres:
		dialect = goose.DialectPostgres
	case DriverMySQL:
		dialect = goose.DialectMySQL
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", driver)
	}
	sub, err := fs.Sub(files, driver)
	if err != nil {
		return nil, "", err
	}
	return sub, dialect, nil
}

func provider(db *sql.DB, driver string) (*goose.Provider, error) {
	fsys, dialect, err := Source(driver)
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose new provider: %w", err)
	}
	return p, nil
}

// Up applies every pending migration and returns how many ran.
func Up(ctx context.Context, db *sql.DB, driver string) (int, error) {
	p, err := provider(db, driver)
	if err != nil {
		return 0, err
	}
	res, err := p.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("goose up: %w", err)
	}
	return len(res), nil
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, db *sql.DB, driver string) error {
	p, err := provider(db, driver)
	if err != nil {
		return err
	}
	if _, err := p.Down(ctx); err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// Status lists every known migration with its applied state.
func Status(ctx context.Context, db *sql.DB, driver string) ([]*goose.MigrationStatus, error) {
	p, err := provider(db, driver)
	if err != nil {
		return nil, err
	}
	return p.Status(ctx)
}
