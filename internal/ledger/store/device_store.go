package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

type DeviceStore interface {
	IsKnown(ctx context.Context, deviceID string) (bool, error)
	ListDevices(ctx context.Context) ([]types.Device, error)
	GetDevice(ctx context.Context, deviceID string) (types.Device, error)

	// RecordHeartbeat marks a known device online (a device in maintenance
	// keeps that status) and stamps its last heartbeat.
	RecordHeartbeat(ctx context.Context, deviceID string, t time.Time) (types.Device, error)

	UpsertDevice(ctx context.Context, d types.Device) error
}
