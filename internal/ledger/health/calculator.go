package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/chain"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// ErrDataUnavailable means the ledger or device registry could not be read.
var ErrDataUnavailable = errors.New("ledger data unavailable")

const (
	DefaultSequenceWindow   = 1000
	DefaultHeartbeatTimeout = 5 * time.Minute
)

type CalculatorConfig struct {
	// SequenceWindow is how many of the most recent events are checked for
	// gaps and hash failures.
	SequenceWindow int

	// HeartbeatTimeout marks "online" devices without a recent heartbeat as
	// offline. 0 trusts the stored status.
	HeartbeatTimeout time.Duration

	Now func() time.Time
}

// Calculator computes a fresh HealthSnapshot from the stores.
type Calculator struct {
	events  store.EventStore
	devices store.DeviceStore
	cfg     CalculatorConfig
}

func NewCalculator(events store.EventStore, devices store.DeviceStore, cfg CalculatorConfig) *Calculator {
	if cfg.SequenceWindow <= 0 {
		cfg.SequenceWindow = DefaultSequenceWindow
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Calculator{events: events, devices: devices, cfg: cfg}
}

// Compute reads only bounded windows of the ledger. Store failures are
// wrapped with ErrDataUnavailable.
func (c *Calculator) Compute(ctx context.Context) (types.HealthSnapshot, error) {
	now := c.cfg.Now()

	var (
		window  []types.LedgerEvent
		stats   types.ProcessingStats
		devices []types.Device
		hourly  int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		window, err = c.events.Tail(gctx, c.cfg.SequenceWindow)
		if err != nil {
			return fmt.Errorf("tail: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		stats, err = c.events.ProcessingStats(gctx)
		if err != nil {
			return fmt.Errorf("processing stats: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		devices, err = c.devices.ListDevices(gctx)
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		hourly, err = c.events.CountRecordedSince(gctx, now.Add(-time.Hour))
		if err != nil {
			return fmt.Errorf("events per hour: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return types.HealthSnapshot{}, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}

	ids := make([]int64, len(window))
	for i, e := range window {
		ids[i] = e.SequenceID
	}
	gaps := DetectGaps(ids, now)
	verified := chain.VerifyWindow(window)

	snap := types.HealthSnapshot{
		ID:                   uuid.NewString(),
		Timestamp:            now,
		ProcessingLagSeconds: processingLag(stats, now).Seconds(),
		SequenceGapsCount:    len(gaps),
		GapDetails:           gaps,
		HashFailuresCount:    verified.Failures,
		HashTotalChecked:     verified.Checked,
		QueueDepth:           stats.QueueDepth,
		EventsPerHour:        hourly,
		DevicesTotal:         len(devices),
	}
	for _, d := range devices {
		switch d.EffectiveStatus(now, c.cfg.HeartbeatTimeout) {
		case types.DeviceOnline:
			snap.DevicesOnline++
		default:
			snap.DevicesOffline++
		}
	}

	m := metricsOf(snap)
	snap.Status = DeriveStatus(m)
	snap.Alerts = BuildAlerts(m, now)
	return snap, nil
}

// processingLag is the age of the oldest pending event, or the delay of the
// most recently processed one when nothing is pending.
func processingLag(s types.ProcessingStats, now time.Time) time.Duration {
	if s.OldestUnprocessedAt != nil {
		if d := now.Sub(*s.OldestUnprocessedAt); d > 0 {
			return d
		}
		return 0
	}
	if s.LastProcessedDelay != nil && *s.LastProcessedDelay > 0 {
		return *s.LastProcessedDelay
	}
	return 0
}
