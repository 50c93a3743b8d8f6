package service

import (
	"context"
	"strings"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

type HeartbeatService struct {
	registry *DeviceRegistry
}

func NewHeartbeatService(reg *DeviceRegistry) *HeartbeatService {
	return &HeartbeatService{registry: reg}
}

// Record accepts heartbeats from any reader; only registered readers have
// their status updated.
func (s *HeartbeatService) Record(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		return types.HeartbeatResponse{}, ErrInvalidDeviceID
	}

	d, known, err := s.registry.NoteHeartbeat(ctx, deviceID)
	if err != nil {
		return types.HeartbeatResponse{}, err
	}

	return types.HeartbeatResponse{
		OK:         true,
		Known:      known,
		DeviceID:   deviceID,
		Status:     string(d.Status),
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}
