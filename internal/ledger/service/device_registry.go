package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

type DeviceRegistry struct {
	store            store.DeviceStore
	heartbeatTimeout time.Duration
	now              func() time.Time
}

func NewDeviceRegistry(st store.DeviceStore, heartbeatTimeout time.Duration) *DeviceRegistry {
	return &DeviceRegistry{
		store:            st,
		heartbeatTimeout: heartbeatTimeout,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (r *DeviceRegistry) IsKnown(ctx context.Context, deviceID string) (bool, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return false, nil
	}
	return r.store.IsKnown(ctx, deviceID)
}

// NoteHeartbeat stamps a known device. Unknown devices are ignored.
func (r *DeviceRegistry) NoteHeartbeat(ctx context.Context, deviceID string) (types.Device, bool, error) {
	d, err := r.store.RecordHeartbeat(ctx, strings.TrimSpace(deviceID), r.now())
	if errors.Is(err, store.ErrNotFound) {
		return types.Device{}, false, nil
	}
	if err != nil {
		return types.Device{}, false, err
	}
	return d, true, nil
}

// List returns every device with its effective status.
func (r *DeviceRegistry) List(ctx context.Context) ([]types.Device, error) {
	ds, err := r.store.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	now := r.now()
	for i := range ds {
		ds[i].Status = ds[i].EffectiveStatus(now, r.heartbeatTimeout)
	}
	return ds, nil
}

func (r *DeviceRegistry) Get(ctx context.Context, deviceID string) (types.Device, error) {
	d, err := r.store.GetDevice(ctx, strings.TrimSpace(deviceID))
	if err != nil {
		return types.Device{}, err
	}
	d.Status = d.EffectiveStatus(r.now(), r.heartbeatTimeout)
	return d, nil
}
