package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SeedDevOptions struct {
	// KnownDevices are pre-registered as offline readers.
	KnownDevices []string
}

// SeedDev registers a starter reader, the configured devices and a demo badge
// in a SQLite database. Existing rows are left alone.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	now := time.Now().UTC().UnixMilli()

	devices := append([]string{"reader-lobby"}, opt.KnownDevices...)
	for _, id := range devices {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO devices(device_id, display_name, location, status, created_at_ms, updated_at_ms)
VALUES (?, ?, 'Dev', 'offline', ?, ?);`, id, id, now, now); err != nil {
			return fmt.Errorf("seed device %s: %w", id, err)
		}
	}

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO badges(card_uid, employee_id, employee_name, department, active, updated_at_ms)
VALUES ('04A1B2C3', 'EMP-0001', 'Dev Employee', 'Engineering', 1, ?);`, now); err != nil {
		return fmt.Errorf("seed badge: %w", err)
	}

	return nil
}
