package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

var (
	// ErrNotFound is returned when a requested event, device or badge does
	// not exist.
	ErrNotFound = errors.New("not found")
)

// EventStore is the append-only ledger.
type EventStore interface {
	// Append assigns the next sequence id, links the hash chain and persists
	// the event atomically.
	Append(ctx context.Context, in types.ScanInput) (types.LedgerEvent, error)

	Get(ctx context.Context, sequenceID int64) (types.LedgerEvent, error)

	// List returns one page ordered by sequence id descending plus the total
	// number of rows matching f.
	List(ctx context.Context, f types.EventFilter, limit, offset int) ([]types.LedgerEvent, int, error)

	// Neighbors returns the nearest events before and after sequenceID.
	// Either may be nil.
	Neighbors(ctx context.Context, sequenceID int64) (prev, next *types.LedgerEvent, err error)

	// ForEmployeeBetween returns an employee's events scanned in [from, to)
	// ordered by scan time.
	ForEmployeeBetween(ctx context.Context, employeeRFID string, from, to time.Time) ([]types.LedgerEvent, error)

	// Tail returns the most recent n events in ascending sequence order.
	Tail(ctx context.Context, n int) ([]types.LedgerEvent, error)

	// Range returns up to limit events with sequence id >= from, ascending.
	Range(ctx context.Context, from int64, limit int) ([]types.LedgerEvent, error)

	// ProcessingStats reports the queue and the write-to-processed delay of
	// the latest processed event. Events sharing the latest processed_at
	// report the largest delay among them.
	ProcessingStats(ctx context.Context) (types.ProcessingStats, error)

	CountRecordedSince(ctx context.Context, since time.Time) (int64, error)

	// MarkProcessed flags the given events processed and reports how many
	// changed state.
	MarkProcessed(ctx context.Context, sequenceIDs []int64, at time.Time) (int64, error)

	BadgeScans(ctx context.Context, cardUID string) ([]types.BadgeScan, error)
}

// BadgeStore resolves card UIDs to employees.
type BadgeStore interface {
	GetBadge(ctx context.Context, cardUID string) (types.Badge, error)
	UpsertBadge(ctx context.Context, b types.Badge) error
}

// HealthLogStore persists one snapshot per hour for history views.
type HealthLogStore interface {
	UpsertHourly(ctx context.Context, snap types.HealthSnapshot) error
	ListSince(ctx context.Context, since time.Time) ([]types.HealthSnapshot, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
