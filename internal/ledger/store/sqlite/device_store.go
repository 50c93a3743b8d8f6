package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/ledgerwatch/internal/db"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

type DeviceStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDeviceStore(db *sql.DB, writer *dbpkg.Worker) *DeviceStore {
	return &DeviceStore{db: db, writer: writer}
}

const deviceColumns = `device_id, display_name, location, status, last_heartbeat_ms`

func scanDevice(r rowScanner) (types.Device, error) {
	var (
		d      types.Device
		status string
		lastHb sql.NullInt64
	)
	if err := r.Scan(&d.DeviceID, &d.DisplayName, &d.Location, &status, &lastHb); err != nil {
		return types.Device{}, err
	}
	d.Status = types.DeviceStatus(status)
	if lastHb.Valid {
		t := fromMs(lastHb.Int64)
		d.LastHeartbeat = &t
	}
	return d, nil
}

// IsKnown: a reader is known once it has a devices row. Rows are created by
// an admin (or the dev seeder), never by an incoming heartbeat.
func (s *DeviceStore) IsKnown(ctx context.Context, deviceID string) (bool, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return false, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM devices WHERE device_id = ?;`, deviceID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsKnown query: %w", err)
	}
	return true, nil
}

func (s *DeviceStore) ListDevices(ctx context.Context) ([]types.Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY device_id;`)
	if err != nil {
		return nil, fmt.Errorf("ListDevices: %w", err)
	}
	defer rows.Close()

	out := []types.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("ListDevices scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *DeviceStore) GetDevice(ctx context.Context, deviceID string) (types.Device, error) {
	d, err := scanDevice(s.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE device_id = ?;`, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Device{}, store.ErrNotFound
	}
	if err != nil {
		return types.Device{}, fmt.Errorf("GetDevice %s: %w", deviceID, err)
	}
	return d, nil
}

func (s *DeviceStore) RecordHeartbeat(ctx context.Context, deviceID string, t time.Time) (types.Device, error) {
	deviceID = strings.TrimSpace(deviceID)
	if t.IsZero() {
		t = time.Now().UTC()
	}
	ms := toMs(t)

	var d types.Device
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE devices
SET last_heartbeat_ms = ?,
    status = CASE WHEN status = 'maintenance' THEN status ELSE 'online' END,
    updated_at_ms = ?
WHERE device_id = ?;
`, ms, ms, deviceID)
		if err != nil {
			return fmt.Errorf("RecordHeartbeat update: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}

		d, err = scanDevice(tx.QueryRowContext(ctx,
			`SELECT `+deviceColumns+` FROM devices WHERE device_id = ?;`, deviceID))
		if err != nil {
			return fmt.Errorf("RecordHeartbeat reload: %w", err)
		}
		return nil
	})
	return d, err
}

func (s *DeviceStore) UpsertDevice(ctx context.Context, d types.Device) error {
	if d.Status == "" {
		d.Status = types.DeviceOffline
	}
	var lastHb any
	if d.LastHeartbeat != nil {
		lastHb = toMs(*d.LastHeartbeat)
	}
	now := toMs(time.Now())

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO devices(device_id, display_name, location, status, last_heartbeat_ms, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(device_id) DO UPDATE SET
  display_name      = excluded.display_name,
  location          = excluded.location,
  status            = excluded.status,
  last_heartbeat_ms = excluded.last_heartbeat_ms,
  updated_at_ms     = excluded.updated_at_ms;
`, d.DeviceID, d.DisplayName, d.Location, string(d.Status), lastHb, now, now); err != nil {
			return fmt.Errorf("UpsertDevice %s: %w", d.DeviceID, err)
		}
		return nil
	})
}
