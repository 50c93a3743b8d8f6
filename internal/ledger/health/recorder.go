package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// Recorder periodically persists the current snapshot into the hourly
// health log and prunes entries past the retention period. It runs as a
// background goroutine and is stopped via its context or Stop.
type Recorder struct {
	svc       *Service
	logs      store.HealthLogStore
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// RecorderConfig holds the parameters for NewRecorder.
type RecorderConfig struct {
	// Interval is how often a snapshot is recorded. Defaults to 1h.
	Interval time.Duration

	// RetentionDays is how many days of history to keep. 0 keeps everything.
	RetentionDays int

	Now func() time.Time
}

// NewRecorder creates a recorder but does not start it.
func NewRecorder(svc *Service, logs store.HealthLogStore, cfg RecorderConfig, logger *slog.Logger) *Recorder {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		svc:       svc,
		logs:      logs,
		interval:  cfg.Interval,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		logger:    logger,
		now:       cfg.Now,
		done:      make(chan struct{}),
	}
}

// Start records immediately, then on every interval, until ctx is cancelled
// or Stop is called.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)

	r.logger.Info("health recorder started",
		"interval", r.interval.String(),
		"retention_days", int(r.retention.Hours()/24))
}

// Stop signals the recorder to exit and waits for it. Safe to call more
// than once, and before Start.
func (r *Recorder) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Recorder) loop(ctx context.Context) {
	defer close(r.done)

	r.RecordOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RecordOnce(ctx)
		}
	}
}

// RecordOnce persists the current snapshot under its hour and prunes old
// entries. Stale and unknown snapshots are skipped.
func (r *Recorder) RecordOnce(ctx context.Context) {
	res, err := r.svc.Current(ctx)
	switch {
	case err != nil:
		r.logger.Warn("health recorder: snapshot unavailable", "err", err)
	case res.Stale || res.Data.Status == types.StatusUnknown:
		r.logger.Warn("health recorder: skipping stale snapshot", "timestamp", res.Timestamp)
	default:
		if err := r.logs.UpsertHourly(ctx, res.Data); err != nil {
			r.logger.Error("health recorder: persist failed", "err", err)
		} else {
			r.logger.Debug("health recorder: snapshot persisted",
				"hour", res.Data.Timestamp.Truncate(time.Hour), "status", res.Data.Status)
		}
	}

	if r.retention <= 0 {
		return
	}
	cutoff := r.now().Add(-r.retention)
	deleted, err := r.logs.PruneOlderThan(ctx, cutoff)
	if err != nil {
		r.logger.Error("health log prune failed", "err", err)
		return
	}
	if deleted > 0 {
		r.logger.Info("health log pruned", "deleted", deleted, "cutoff", cutoff.Format(time.RFC3339))
	}
}
