package state

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// newMigrator returns a goose provider over the embedded schema. Providers
// carry no global state, so several stores can migrate concurrently.
func newMigrator(db *sql.DB) (*goose.Provider, error) {
	schema, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return p, nil
}

// MigrateWithDB applies every pending migration to db.
func MigrateWithDB(ctx context.Context, db *sql.DB) error {
	p, err := newMigrator(db)
	if err != nil {
		return err
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the schema version of the open database.
func (s *SQLiteStore) MigrationVersion(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	p, err := newMigrator(s.db)
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}
