package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/skobkin/picodbg/internal/transport"
)

// GrantRepo stores serial port authorizations in sqlite.
type GrantRepo struct {
	db *sql.DB
}

func NewGrantRepo(db *sql.DB) *GrantRepo {
	return &GrantRepo{db: db}
}

// ListGrants returns grants with the least recently used first.
func (r *GrantRepo) ListGrants(ctx context.Context) ([]transport.Grant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT port_name, vid, pid, serial_number, granted_at, last_used_at
		FROM port_grants
		ORDER BY last_used_at ASC, granted_at ASC, port_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var out []transport.Grant
	for rows.Next() {
		var (
			g         transport.Grant
			vid, pid  int64
			serialNum sql.NullString
			grantedMs int64
			usedMs    int64
		)
		if err := rows.Scan(&g.PortName, &vid, &pid, &serialNum, &grantedMs, &usedMs); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		g.VID = uint16(vid) // #nosec G115 -- stored from uint16
		g.PID = uint16(pid) // #nosec G115 -- stored from uint16
		if serialNum.Valid {
			g.SerialNumber = serialNum.String
		}
		g.GrantedAt = fromUnixMillis(grantedMs)
		g.LastUsedAt = fromUnixMillis(usedMs)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}

	return out, nil
}

// SaveGrant inserts the grant or refreshes an existing one for the same port.
// The original grant time of an existing row is kept. A USB device with a serial
// number has one grant: rows for the same device under another port name are merged into it.
func (r *GrantRepo) SaveGrant(ctx context.Context, g transport.Grant) error {
	name := strings.TrimSpace(g.PortName)
	if name == "" {
		return fmt.Errorf("save grant: port name is empty")
	}
	if g.GrantedAt.IsZero() {
		g.GrantedAt = time.Now()
	}
	if g.LastUsedAt.IsZero() {
		g.LastUsedAt = g.GrantedAt
	}
	grantedMs := toUnixMillis(g.GrantedAt)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save grant tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if g.SerialNumber != "" {
		var oldest sql.NullInt64
		if err := tx.QueryRowContext(ctx, `
			SELECT MIN(granted_at) FROM port_grants
			WHERE vid = ? AND pid = ? AND serial_number = ? AND port_name <> ?
		`, int64(g.VID), int64(g.PID), g.SerialNumber, name).Scan(&oldest); err != nil {
			return fmt.Errorf("find moved grant: %w", err)
		}
		if oldest.Valid {
			grantedMs = min(grantedMs, oldest.Int64)
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM port_grants
				WHERE vid = ? AND pid = ? AND serial_number = ? AND port_name <> ?
			`, int64(g.VID), int64(g.PID), g.SerialNumber, name); err != nil {
				return fmt.Errorf("drop moved grant: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO port_grants(port_name, vid, pid, serial_number, granted_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(port_name) DO UPDATE SET
			vid = excluded.vid,
			pid = excluded.pid,
			serial_number = excluded.serial_number,
			granted_at = MIN(port_grants.granted_at, excluded.granted_at),
			last_used_at = excluded.last_used_at
	`, name, int64(g.VID), int64(g.PID), nullableString(g.SerialNumber), grantedMs, toUnixMillis(g.LastUsedAt)); err != nil {
		return fmt.Errorf("save grant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save grant tx: %w", err)
	}

	return nil
}

// TouchGrant marks the port as used at the given time. Unknown ports are ignored.
func (r *GrantRepo) TouchGrant(ctx context.Context, portName string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE port_grants SET last_used_at = ? WHERE port_name = ?
	`, toUnixMillis(at), portName); err != nil {
		return fmt.Errorf("touch grant: %w", err)
	}

	return nil
}

// DeleteGrant forgets one port. It reports whether a grant existed.
func (r *GrantRepo) DeleteGrant(ctx context.Context, portName string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM port_grants WHERE port_name = ?`, portName)
	if err != nil {
		return false, fmt.Errorf("delete grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete grant rows affected: %w", err)
	}

	return n > 0, nil
}
