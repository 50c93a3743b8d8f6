package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// ScanService appends reader scans to the ledger.
type ScanService struct {
	registry *DeviceRegistry
	events   store.EventStore
	now      func() time.Time
}

func NewScanService(reg *DeviceRegistry, es store.EventStore) *ScanService {
	return &ScanService{
		registry: reg,
		events:   es,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Submit validates req and appends it. Scans from unregistered readers are
// refused with ErrUnknownDevice and a response carrying the reason.
func (s *ScanService) Submit(ctx context.Context, req types.ScanRequest) (types.ScanResponse, error) {
	now := s.now()

	deviceID := strings.TrimSpace(req.DeviceID)
	cardUID := strings.ToUpper(strings.TrimSpace(req.CardUID))

	if deviceID == "" {
		return types.ScanResponse{}, ErrInvalidDeviceID
	}
	if cardUID == "" {
		return types.ScanResponse{}, ErrInvalidCardUID
	}
	et, err := types.ParseEventType(strings.TrimSpace(req.EventType))
	if err != nil {
		return types.ScanResponse{}, ErrInvalidEventType
	}

	scanAt := now
	if ts := strings.TrimSpace(req.ScanTimestamp); ts != "" {
		scanAt, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return types.ScanResponse{}, ErrInvalidScanTimestamp
		}
	}

	known, err := s.registry.IsKnown(ctx, deviceID)
	if err != nil {
		return types.ScanResponse{}, err
	}
	if !known {
		return types.ScanResponse{
			OK:         false,
			Reason:     "unknown_device",
			ServerTime: now.Format(time.RFC3339Nano),
		}, ErrUnknownDevice
	}

	e, err := s.events.Append(ctx, types.ScanInput{
		EmployeeRFID:  cardUID,
		DeviceID:      deviceID,
		EventType:     et,
		// Stores keep millisecond precision; the digest must match what is read back.
		ScanTimestamp: scanAt.UTC().Truncate(time.Millisecond),
		RecordedAt:    now,
	})
	if err != nil {
		return types.ScanResponse{}, fmt.Errorf("append scan: %w", err)
	}

	return types.ScanResponse{
		OK:         true,
		SequenceID: e.SequenceID,
		HashChain:  e.HashChain,
		ServerTime: now.Format(time.RFC3339Nano),
	}, nil
}
