// Package app assembles stores, caches and services from configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"github.com/BrandonDHaskell/ledgerwatch/internal/cache"
	"github.com/BrandonDHaskell/ledgerwatch/internal/config"
	"github.com/BrandonDHaskell/ledgerwatch/internal/db"
	"github.com/BrandonDHaskell/ledgerwatch/internal/events"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/health"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/service"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store/postgres"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store/sqlite"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// NewLogger builds the process logger. Text output is colourised only when w
// is a terminal.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	}

	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}))
}

// Backend is the set of stores behind one database.
type Backend struct {
	Events     store.EventStore
	Devices    store.DeviceStore
	Badges     store.BadgeStore
	HealthLogs store.HealthLogStore

	// DB and Dialect identify the underlying connection for migrations.
	DB      *sql.DB
	Dialect string

	closers []func() error
}

// Ping checks that the database is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	return b.DB.PingContext(ctx)
}

// Close releases the backend in reverse order of acquisition.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// OpenBackend connects to the configured database, applies migrations and
// registers the configured readers.
func OpenBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backend, error) {
	var b *Backend
	switch cfg.DBDriver {
	case "postgres":
		conn, err := db.OpenPostgres(ctx, db.PostgresConfig{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, err
		}
		b = &Backend{
			Events:     postgres.NewEventStore(conn),
			Devices:    postgres.NewDeviceStore(conn),
			Badges:     postgres.NewBadgeStore(conn),
			HealthLogs: postgres.NewHealthLogStore(conn),
			DB:         conn.DB,
			Dialect:    db.DialectPostgres,
			closers:    []func() error{conn.Close},
		}
	case "sqlite", "":
		conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
		if err != nil {
			return nil, err
		}
		if cfg.Env == "dev" {
			if err := db.SeedDev(ctx, conn, db.SeedDevOptions{KnownDevices: cfg.KnownDevices}); err != nil {
				_ = conn.Close()
				return nil, err
			}
		}
		writer := db.NewWorker(conn)
		b = &Backend{
			Events:     sqlite.NewEventStore(conn, writer),
			Devices:    sqlite.NewDeviceStore(conn, writer),
			Badges:     sqlite.NewBadgeStore(conn, writer),
			HealthLogs: sqlite.NewHealthLogStore(conn, writer),
			DB:         conn,
			Dialect:    db.DialectSQLite,
			closers: []func() error{
				conn.Close,
				func() error { writer.Close(); return nil },
			},
		}
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.DBDriver)
	}

	if err := RegisterKnownDevices(ctx, b.Devices, cfg.KnownDevices); err != nil {
		_ = b.Close()
		return nil, err
	}
	logger.Info("database ready", "driver", b.Dialect, "known_devices", len(cfg.KnownDevices))
	return b, nil
}

// RegisterKnownDevices adds configured readers that are not yet registered.
// Existing devices keep their status and heartbeat.
func RegisterKnownDevices(ctx context.Context, ds store.DeviceStore, ids []string) error {
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		known, err := ds.IsKnown(ctx, id)
		if err != nil {
			return fmt.Errorf("check device %s: %w", id, err)
		}
		if known {
			continue
		}
		if err := ds.UpsertDevice(ctx, types.Device{DeviceID: id, DisplayName: id, Status: types.DeviceOffline}); err != nil {
			return err
		}
	}
	return nil
}

// OpenCache returns a Redis-backed cache when redis_url is set and an
// in-process cache otherwise. The returned func releases it.
func OpenCache(ctx context.Context, cfg config.Config) (cache.Store, func() error, error) {
	if cfg.RedisURL == "" {
		return cache.NewMemoryStore(), func() error { return nil }, nil
	}
	rs, err := cache.NewRedisStore(ctx, cache.RedisConfig{URL: cfg.RedisURL, Prefix: "ledgerwatch:"})
	if err != nil {
		return nil, nil, err
	}
	return rs, rs.Close, nil
}

// OpenPublisher returns a NATS publisher when nats_url is set and a no-op
// publisher otherwise.
func OpenPublisher(cfg config.Config) (events.Publisher, error) {
	if cfg.NATSURL == "" {
		return &events.NoopPublisher{}, nil
	}
	return events.NewNATSPublisher(cfg.NATSURL)
}

// Services is the ledger's application layer.
type Services struct {
	Calculator *health.Calculator
	Health     *health.Service
	Recorder   *health.Recorder
	Query      *service.QueryService
	Devices    *service.DeviceRegistry
	Badges     *service.BadgeService
	Heartbeats *service.HeartbeatService
	Scans      *service.ScanService
}

// NewServices wires the services over b. observers receive every fresh
// health snapshot.
func NewServices(b *Backend, cs cache.Store, cfg config.Config, logger *slog.Logger, observers ...health.Observer) (*Services, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	calc := health.NewCalculator(b.Events, b.Devices, health.CalculatorConfig{
		SequenceWindow:   cfg.SequenceWindow,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
	})
	hs := health.NewService(calc, b.HealthLogs, cs, logger, health.ServiceConfig{
		CacheTTL:       cfg.HealthCacheTTL,
		ComputeTimeout: cfg.HealthComputeTimeout,
	}, observers...)
	registry := service.NewDeviceRegistry(b.Devices, cfg.HeartbeatTimeout)

	return &Services{
		Calculator: calc,
		Health:     hs,
		Recorder: health.NewRecorder(hs, b.HealthLogs, health.RecorderConfig{
			Interval:      cfg.HealthLogInterval,
			RetentionDays: cfg.HealthLogRetentionDays,
		}, logger),
		Query:      service.NewQueryService(b.Events, loc),
		Devices:    registry,
		Badges:     service.NewBadgeService(b.Events, b.Badges, loc),
		Heartbeats: service.NewHeartbeatService(registry),
		Scans:      service.NewScanService(registry, b.Events),
	}, nil
}
