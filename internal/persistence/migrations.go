package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; the index of a step plus one is the schema version it produces.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS port_grants (
			port_name TEXT PRIMARY KEY,
			vid INTEGER NOT NULL DEFAULT 0,
			pid INTEGER NOT NULL DEFAULT 0,
			serial_number TEXT NULL,
			granted_at INTEGER NOT NULL,
			last_used_at INTEGER NOT NULL
		);`,
	},
	{
		`CREATE INDEX IF NOT EXISTS port_grants_last_used_at_idx ON port_grants(last_used_at ASC);`,
	},
}

func schemaVersion() int {
	return len(migrations)
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > schemaVersion() {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, schemaVersion())
	}

	for next := version; next < schemaVersion(); next++ {
		if err := applyMigration(ctx, db, next+1, migrations[next]); err != nil {
			return err
		}
	}

	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int, stmts []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration v%d: %w", version, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration v%d: %w", version, err)
		}
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, version)); err != nil {
		return fmt.Errorf("set schema version %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration v%d: %w", version, err)
	}

	return nil
}
