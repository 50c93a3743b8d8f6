package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

type DeviceStore struct {
	mu      sync.RWMutex
	devices map[string]types.Device
}

// NewDeviceStore registers each id in knownDevices as an offline reader.
func NewDeviceStore(knownDevices []string) *DeviceStore {
	d := make(map[string]types.Device, len(knownDevices))
	for _, id := range knownDevices {
		id = strings.TrimSpace(id)
		if id != "" {
			d[id] = types.Device{DeviceID: id, DisplayName: id, Status: types.DeviceOffline}
		}
	}
	return &DeviceStore{devices: d}
}

func (s *DeviceStore) IsKnown(_ context.Context, deviceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.devices[deviceID]
	return ok, nil
}

func (s *DeviceStore) ListDevices(_ context.Context) ([]types.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (s *DeviceStore) GetDevice(_ context.Context, deviceID string) (types.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return types.Device{}, store.ErrNotFound
	}
	return d, nil
}

func (s *DeviceStore) RecordHeartbeat(_ context.Context, deviceID string, t time.Time) (types.Device, error) {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return types.Device{}, store.ErrNotFound
	}
	t = t.UTC()
	d.LastHeartbeat = &t
	if d.Status != types.DeviceMaintenance {
		d.Status = types.DeviceOnline
	}
	s.devices[deviceID] = d
	return d, nil
}

func (s *DeviceStore) UpsertDevice(_ context.Context, d types.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Status == "" {
		d.Status = types.DeviceOffline
	}
	s.devices[d.DeviceID] = d
	return nil
}
