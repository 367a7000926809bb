package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ClearGrants forgets every remembered port authorization and reports how many were removed.
func ClearGrants(ctx context.Context, db *sql.DB) (int, error) {
	if db == nil {
		return 0, errors.New("database is not initialized")
	}

	//goland:noinspection SqlWithoutWhere
	res, err := db.ExecContext(ctx, `DELETE FROM port_grants;`)
	if err != nil {
		return 0, fmt.Errorf("clear port grants: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count cleared port grants: %w", err)
	}

	return int(removed), nil
}
