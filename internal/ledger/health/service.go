package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/BrandonDHaskell/ledgerwatch/internal/cache"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

const (
	DefaultCacheTTL       = 300 * time.Second
	DefaultComputeTimeout = 3 * time.Second
	DefaultHistoryHours   = 24
	MaxHistoryHours       = 168

	// Last-known entries back the stale fallback and outlive Invalidate.
	lastKnownTTL = 7 * 24 * time.Hour

	keyCurrent          = "ledger:health:current"
	keyHistory          = "ledger:health:history"
	keyCurrentLastKnown = "ledger:health:current:last_known"
	keyHistoryLastKnown = "ledger:health:history:last_known"
)

// Computer produces a fresh snapshot. *Calculator is the production
// implementation.
type Computer interface {
	Compute(ctx context.Context) (types.HealthSnapshot, error)
}

// Observer is notified after every fresh computation.
type Observer interface {
	ObserveHealth(ctx context.Context, snap types.HealthSnapshot)
}

// Result wraps a payload with where it came from.
type Result[T any] struct {
	Data T
	// Timestamp is when Data was produced.
	Timestamp time.Time
	// Cached is true when Data was served from the cache.
	Cached bool
	// Stale is true when Data is a fallback served because a fresh
	// computation failed.
	Stale bool
}

type ServiceConfig struct {
	CacheTTL       time.Duration
	ComputeTimeout time.Duration
	Now            func() time.Time
}

// Service serves cached health snapshots and history.
type Service struct {
	computer  Computer
	history   store.HealthLogStore
	cache     cache.Store
	observers []Observer
	logger    *slog.Logger
	cfg       ServiceConfig
	group     singleflight.Group
}

func NewService(c Computer, history store.HealthLogStore, cs cache.Store, logger *slog.Logger, cfg ServiceConfig, observers ...Observer) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.ComputeTimeout <= 0 {
		cfg.ComputeTimeout = DefaultComputeTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		computer:  c,
		history:   history,
		cache:     cs,
		observers: observers,
		logger:    logger,
		cfg:       cfg,
	}
}

// Current returns the cached snapshot while it is younger than the TTL and
// recomputes otherwise. If recomputation fails the last known snapshot is
// returned with Stale set; if there is none, an unknown snapshot is returned
// together with ErrDataUnavailable.
func (s *Service) Current(ctx context.Context) (Result[types.HealthSnapshot], error) {
	res, err := load(ctx, s, keyCurrent, keyCurrentLastKnown, func(ctx context.Context) (types.HealthSnapshot, time.Time, error) {
		snap, err := s.computer.Compute(ctx)
		if err != nil {
			return types.HealthSnapshot{}, time.Time{}, err
		}
		for _, o := range s.observers {
			o.ObserveHealth(ctx, snap)
		}
		return snap, snap.Timestamp, nil
	})
	if err != nil {
		now := s.cfg.Now()
		return Result[types.HealthSnapshot]{Data: types.UnknownSnapshot(now), Timestamp: now}, err
	}
	return res, nil
}

// History returns the hourly snapshots recorded in the trailing window.
// hours outside [1, MaxHistoryHours] falls back to DefaultHistoryHours.
func (s *Service) History(ctx context.Context, hours int) (Result[[]types.HealthSnapshot], error) {
	if hours <= 0 || hours > MaxHistoryHours {
		hours = DefaultHistoryHours
	}

	// The full retained window is cached once and sliced relative to the
	// time it was loaded, so a response is stable for the whole TTL.
	res, err := load(ctx, s, keyHistory, keyHistoryLastKnown, func(ctx context.Context) ([]types.HealthSnapshot, time.Time, error) {
		now := s.cfg.Now()
		logs, err := s.history.ListSince(ctx, now.Add(-MaxHistoryHours*time.Hour))
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
		}
		if logs == nil {
			logs = []types.HealthSnapshot{}
		}
		return logs, now, nil
	})
	if err != nil {
		return Result[[]types.HealthSnapshot]{Data: []types.HealthSnapshot{}, Timestamp: s.cfg.Now()}, err
	}

	cutoff := res.Timestamp.Add(-time.Duration(hours) * time.Hour)
	window := make([]types.HealthSnapshot, 0, len(res.Data))
	for _, snap := range res.Data {
		if !snap.Timestamp.Before(cutoff) {
			window = append(window, snap)
		}
	}
	res.Data = window
	return res, nil
}

// Invalidate evicts the cached snapshot and history. It is idempotent.
func (s *Service) Invalidate(ctx context.Context) error {
	if err := s.cache.Delete(ctx, keyCurrent, keyHistory); err != nil {
		return fmt.Errorf("invalidate health cache: %w", err)
	}
	s.logger.Info("health cache invalidated")
	return nil
}

type cachedPayload[T any] struct {
	Data      T         `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// load implements the read-through cache shared by Current and History.
func load[T any](
	ctx context.Context,
	s *Service,
	key, lastKnownKey string,
	compute func(ctx context.Context) (T, time.Time, error),
) (Result[T], error) {
	if res, ok := s.readCache(ctx, key, false); ok {
		var out Result[T]
		if err := decodeResult(res, &out); err == nil {
			return out, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		// Detached from the caller so a cancelled request does not fail the
		// computation shared with concurrent callers.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ComputeTimeout)
		defer cancel()

		data, at, err := compute(cctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: computation timed out: %w", ErrDataUnavailable, err)
			}
			return nil, err
		}

		raw, err := json.Marshal(cachedPayload[T]{Data: data, Timestamp: at})
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		if err := s.cache.Set(cctx, key, raw, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("health cache write failed", "key", key, "err", err)
		}
		if err := s.cache.Set(cctx, lastKnownKey, raw, lastKnownTTL); err != nil {
			s.logger.Warn("health cache write failed", "key", lastKnownKey, "err", err)
		}
		return Result[T]{Data: data, Timestamp: at}, nil
	})
	if err == nil {
		return v.(Result[T]), nil
	}

	s.logger.Warn("health computation failed; trying last known", "key", key, "err", err)
	if res, ok := s.readCache(ctx, lastKnownKey, true); ok {
		var out Result[T]
		if derr := decodeResult(res, &out); derr == nil {
			out.Stale = true
			return out, nil
		}
	}
	if !errors.Is(err, ErrDataUnavailable) {
		err = fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}
	var zero Result[T]
	return zero, err
}

// readCache returns the raw entry under key. Unless anyAge is set the entry
// must be younger than the TTL. Cache errors are treated as misses.
func (s *Service) readCache(ctx context.Context, key string, anyAge bool) ([]byte, bool) {
	if !anyAge {
		fresh, err := s.cache.HasFresh(ctx, key, s.cfg.CacheTTL)
		if err != nil {
			s.logger.Warn("health cache read failed", "key", key, "err", err)
			return nil, false
		}
		if !fresh {
			return nil, false
		}
	}
	e, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("health cache read failed", "key", key, "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return e.Value, true
}

func decodeResult[T any](raw []byte, out *Result[T]) error {
	var p cachedPayload[T]
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	out.Data = p.Data
	out.Timestamp = p.Timestamp
	out.Cached = true
	return nil
}
