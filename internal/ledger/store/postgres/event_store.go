package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/chain"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

type EventStore struct {
	db *sqlx.DB
}

func NewEventStore(db *sqlx.DB) *EventStore {
	return &EventStore{db: db}
}

// Append takes a transaction-scoped advisory lock so that reading the chain
// tail and inserting the next event cannot interleave with another writer.
func (s *EventStore) Append(ctx context.Context, in types.ScanInput) (types.LedgerEvent, error) {
	if in.RecordedAt.IsZero() {
		in.RecordedAt = time.Now().UTC()
	}
	e := types.LedgerEvent{
		EmployeeRFID:  in.EmployeeRFID,
		DeviceID:      in.DeviceID,
		EventType:     in.EventType,
		ScanTimestamp: in.ScanTimestamp.UTC().Truncate(time.Millisecond),
		RecordedAt:    in.RecordedAt.UTC().Truncate(time.Millisecond),
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return types.LedgerEvent{}, fmt.Errorf("append begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockKey); err != nil {
		return types.LedgerEvent{}, fmt.Errorf("append lock: %w", err)
	}

	var tail struct {
		SequenceID int64  `db:"sequence_id"`
		HashChain  string `db:"hash_chain"`
	}
	err = tx.GetContext(ctx, &tail, `SELECT sequence_id, hash_chain FROM ledger_events ORDER BY sequence_id DESC LIMIT 1`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return types.LedgerEvent{}, fmt.Errorf("append read tail: %w", err)
	}

	e.SequenceID = tail.SequenceID + 1
	if err := chain.Seal(tail.HashChain, &e); err != nil {
		return types.LedgerEvent{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_events (
			sequence_id, employee_rfid, device_id, event_type,
			scan_timestamp, recorded_at, prev_hash, hash_chain, processed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)`,
		e.SequenceID, e.EmployeeRFID, e.DeviceID, string(e.EventType),
		e.ScanTimestamp, e.RecordedAt, e.PrevHash, e.HashChain,
	); err != nil {
		return types.LedgerEvent{}, fmt.Errorf("append insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return types.LedgerEvent{}, fmt.Errorf("append commit: %w", err)
	}
	return e, nil
}

func (s *EventStore) Get(ctx context.Context, sequenceID int64) (types.LedgerEvent, error) {
	var r eventRow
	err := s.db.GetContext(ctx, &r, `SELECT`+eventColumns+eventFrom+` WHERE e.sequence_id = $1`, sequenceID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.LedgerEvent{}, store.ErrNotFound
	}
	if err != nil {
		return types.LedgerEvent{}, fmt.Errorf("get event %d: %w", sequenceID, err)
	}
	return r.event(), nil
}

type listRow struct {
	Total int `db:"total_count"`
	eventRow
}

func (s *EventStore) List(ctx context.Context, f types.EventFilter, limit, offset int) ([]types.LedgerEvent, int, error) {
	var a argList
	where := buildWhere(f, &a)
	countArgs := len(a.args)

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	q := `SELECT COUNT(*) OVER() AS total_count,` + eventColumns + eventFrom + where + ` ORDER BY e.sequence_id DESC`
	if limit > 0 {
		q += " LIMIT " + a.add(limit)
	}
	if offset > 0 {
		q += " OFFSET " + a.add(offset)
	}

	var rows []listRow
	if err := s.db.SelectContext(ctx, &rows, q, a.args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	if len(rows) == 0 {
		if offset == 0 {
			return []types.LedgerEvent{}, 0, nil
		}
		// Past the last page the window count is unavailable.
		var total int
		if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*)`+eventFrom+where, a.args[:countArgs]...); err != nil {
			return nil, 0, fmt.Errorf("count events: %w", err)
		}
		return []types.LedgerEvent{}, total, nil
	}

	out := make([]types.LedgerEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.event())
	}
	return out, rows[0].Total, nil
}

func (s *EventStore) Neighbors(ctx context.Context, sequenceID int64) (*types.LedgerEvent, *types.LedgerEvent, error) {
	one := func(q string) (*types.LedgerEvent, error) {
		var r eventRow
		err := s.db.GetContext(ctx, &r, q, sequenceID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		e := r.event()
		return &e, nil
	}

	prev, err := one(`SELECT` + eventColumns + eventFrom + ` WHERE e.sequence_id < $1 ORDER BY e.sequence_id DESC LIMIT 1`)
	if err != nil {
		return nil, nil, fmt.Errorf("previous event: %w", err)
	}
	next, err := one(`SELECT` + eventColumns + eventFrom + ` WHERE e.sequence_id > $1 ORDER BY e.sequence_id ASC LIMIT 1`)
	if err != nil {
		return nil, nil, fmt.Errorf("next event: %w", err)
	}
	return prev, next, nil
}

func (s *EventStore) ForEmployeeBetween(ctx context.Context, employeeRFID string, from, to time.Time) ([]types.LedgerEvent, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT`+eventColumns+eventFrom+`
		WHERE e.employee_rfid = $1 AND e.scan_timestamp >= $2 AND e.scan_timestamp < $3
		ORDER BY e.scan_timestamp ASC, e.sequence_id ASC`,
		employeeRFID, from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("employee events: %w", err)
	}
	return events(rows), nil
}

func (s *EventStore) Tail(ctx context.Context, n int) ([]types.LedgerEvent, error) {
	var limit any
	if n > 0 {
		limit = n
	}
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM (
			SELECT`+eventColumns+eventFrom+`
			ORDER BY e.sequence_id DESC LIMIT $1
		) t ORDER BY t.sequence_id ASC`, limit); err != nil {
		return nil, fmt.Errorf("tail events: %w", err)
	}
	return events(rows), nil
}

func (s *EventStore) Range(ctx context.Context, from int64, limit int) ([]types.LedgerEvent, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT`+eventColumns+eventFrom+`
		WHERE e.sequence_id >= $1 ORDER BY e.sequence_id ASC LIMIT $2`, from, lim); err != nil {
		return nil, fmt.Errorf("range events: %w", err)
	}
	return events(rows), nil
}

func (s *EventStore) ProcessingStats(ctx context.Context) (types.ProcessingStats, error) {
	var q struct {
		Depth  int64        `db:"depth"`
		Oldest sql.NullTime `db:"oldest"`
	}
	if err := s.db.GetContext(ctx, &q, `
		SELECT COUNT(*) AS depth, MIN(recorded_at) AS oldest
		FROM ledger_events WHERE NOT processed`); err != nil {
		return types.ProcessingStats{}, fmt.Errorf("queue stats: %w", err)
	}
	st := types.ProcessingStats{QueueDepth: q.Depth}
	if q.Oldest.Valid {
		t := q.Oldest.Time.UTC()
		st.OldestUnprocessedAt = &t
	}

	var last struct {
		RecordedAt  time.Time `db:"recorded_at"`
		ProcessedAt time.Time `db:"processed_at"`
	}
	err := s.db.GetContext(ctx, &last, `
		SELECT recorded_at, processed_at FROM ledger_events
		WHERE processed AND processed_at IS NOT NULL
		ORDER BY processed_at DESC, (processed_at - recorded_at) DESC, sequence_id DESC
		LIMIT 1`)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return types.ProcessingStats{}, fmt.Errorf("last processed: %w", err)
	default:
		d := last.ProcessedAt.Sub(last.RecordedAt)
		st.LastProcessedDelay = &d
	}
	return st, nil
}

func (s *EventStore) CountRecordedSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM ledger_events WHERE recorded_at >= $1`, since.UTC()); err != nil {
		return 0, fmt.Errorf("count recorded: %w", err)
	}
	return n, nil
}

func (s *EventStore) MarkProcessed(ctx context.Context, sequenceIDs []int64, at time.Time) (int64, error) {
	if len(sequenceIDs) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In(`UPDATE ledger_events SET processed = TRUE, processed_at = ?
		WHERE NOT processed AND sequence_id IN (?)`, at.UTC(), sequenceIDs)
	if err != nil {
		return 0, fmt.Errorf("mark processed: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return 0, fmt.Errorf("mark processed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *EventStore) BadgeScans(ctx context.Context, cardUID string) ([]types.BadgeScan, error) {
	var rows []struct {
		DeviceID      string    `db:"device_id"`
		EventType     string    `db:"event_type"`
		ScanTimestamp time.Time `db:"scan_timestamp"`
	}
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT device_id, event_type, scan_timestamp FROM ledger_events
		WHERE employee_rfid = $1
		ORDER BY scan_timestamp ASC, sequence_id ASC`, cardUID); err != nil {
		return nil, fmt.Errorf("badge scans: %w", err)
	}
	out := make([]types.BadgeScan, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.BadgeScan{
			DeviceID:      r.DeviceID,
			EventType:     types.EventType(r.EventType),
			ScanTimestamp: r.ScanTimestamp.UTC(),
		})
	}
	return out, nil
}
