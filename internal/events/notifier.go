package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// TransitionNotifier publishes health status changes. It is registered as an
// observer of the health service and only sees fresh computations.
type TransitionNotifier struct {
	pub    Publisher
	logger *slog.Logger

	mu   sync.Mutex
	last types.Status
}

func NewTransitionNotifier(pub Publisher, logger *slog.Logger) *TransitionNotifier {
	if pub == nil {
		pub = &NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TransitionNotifier{pub: pub, logger: logger}
}

func (n *TransitionNotifier) ObserveHealth(ctx context.Context, snap types.HealthSnapshot) {
	n.mu.Lock()
	prev := n.last
	n.last = snap.Status
	n.mu.Unlock()

	if prev == snap.Status {
		return
	}

	ev := HealthStatusChanged{
		Previous:   prev,
		Current:    snap.Status,
		SnapshotID: snap.ID,
		Timestamp:  snap.Timestamp,
		Alerts:     snap.Alerts,
	}
	if err := n.pub.Publish(ctx, TopicHealthStatusChanged, ev); err != nil {
		n.logger.Warn("publish health transition failed", "error", err, "status", snap.Status)
		return
	}
	n.logger.Info("ledger health changed", "from", prev, "to", snap.Status, "snapshot_id", snap.ID)

	for _, a := range snap.Alerts {
		if a.Severity != types.SeverityCritical {
			continue
		}
		if err := n.pub.Publish(ctx, TopicHealthAlert, HealthAlert{SnapshotID: snap.ID, Alert: a}); err != nil {
			n.logger.Warn("publish health alert failed", "error", err, "metric", a.Metric)
		}
	}
}
