package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

type DeviceStore struct {
	db *sqlx.DB
}

func NewDeviceStore(db *sqlx.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

const deviceColumns = `device_id, display_name, location, status, last_heartbeat`

type deviceRow struct {
	DeviceID      string       `db:"device_id"`
	DisplayName   string       `db:"display_name"`
	Location      string       `db:"location"`
	Status        string       `db:"status"`
	LastHeartbeat sql.NullTime `db:"last_heartbeat"`
}

func (r deviceRow) device() types.Device {
	d := types.Device{
		DeviceID:    r.DeviceID,
		DisplayName: r.DisplayName,
		Location:    r.Location,
		Status:      types.DeviceStatus(r.Status),
	}
	if r.LastHeartbeat.Valid {
		t := r.LastHeartbeat.Time.UTC()
		d.LastHeartbeat = &t
	}
	return d
}

func (s *DeviceStore) IsKnown(ctx context.Context, deviceID string) (bool, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return false, nil
	}
	var known bool
	if err := s.db.GetContext(ctx, &known, `SELECT EXISTS (SELECT 1 FROM devices WHERE device_id = $1)`, deviceID); err != nil {
		return false, fmt.Errorf("is known %s: %w", deviceID, err)
	}
	return known, nil
}

func (s *DeviceStore) ListDevices(ctx context.Context) ([]types.Device, error) {
	var rows []deviceRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+deviceColumns+` FROM devices ORDER BY device_id`); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	out := make([]types.Device, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.device())
	}
	return out, nil
}

func (s *DeviceStore) GetDevice(ctx context.Context, deviceID string) (types.Device, error) {
	var r deviceRow
	err := s.db.GetContext(ctx, &r, `SELECT `+deviceColumns+` FROM devices WHERE device_id = $1`, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Device{}, store.ErrNotFound
	}
	if err != nil {
		return types.Device{}, fmt.Errorf("get device %s: %w", deviceID, err)
	}
	return r.device(), nil
}

func (s *DeviceStore) RecordHeartbeat(ctx context.Context, deviceID string, t time.Time) (types.Device, error) {
	if t.IsZero() {
		t = time.Now()
	}
	var r deviceRow
	err := s.db.GetContext(ctx, &r, `
		UPDATE devices SET
			last_heartbeat = $2,
			status = CASE WHEN status = 'maintenance' THEN status ELSE 'online' END,
			updated_at = NOW()
		WHERE device_id = $1
		RETURNING `+deviceColumns, strings.TrimSpace(deviceID), t.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return types.Device{}, store.ErrNotFound
	}
	if err != nil {
		return types.Device{}, fmt.Errorf("record heartbeat %s: %w", deviceID, err)
	}
	return r.device(), nil
}

func (s *DeviceStore) UpsertDevice(ctx context.Context, d types.Device) error {
	if d.Status == "" {
		d.Status = types.DeviceOffline
	}
	var lastHb sql.NullTime
	if d.LastHeartbeat != nil {
		lastHb = sql.NullTime{Time: d.LastHeartbeat.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, display_name, location, status, last_heartbeat)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			location = EXCLUDED.location,
			status = EXCLUDED.status,
			last_heartbeat = EXCLUDED.last_heartbeat,
			updated_at = NOW()`,
		d.DeviceID, d.DisplayName, d.Location, string(d.Status), lastHb)
	if err != nil {
		return fmt.Errorf("upsert device %s: %w", d.DeviceID, err)
	}
	return nil
}
