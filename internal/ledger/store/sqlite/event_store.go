package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/ledgerwatch/internal/db"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/chain"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

const eventColumns = `
  e.sequence_id, e.employee_rfid, e.device_id, e.event_type,
  e.scan_ts_ms, e.recorded_at_ms, e.prev_hash, e.hash_chain,
  e.processed, e.processed_at_ms,
  COALESCE(b.employee_name, '') AS employee_name`

const eventFrom = `
FROM ledger_events e
LEFT JOIN badges b ON b.card_uid = e.employee_rfid`

type EventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewEventStore(db *sql.DB, writer *dbpkg.Worker) *EventStore {
	return &EventStore{db: db, writer: writer}
}

func scanEvent(r rowScanner) (types.LedgerEvent, error) {
	var (
		e           types.LedgerEvent
		eventType   string
		scanMs      int64
		recordedMs  int64
		processed   int
		processedMs sql.NullInt64
	)
	if err := r.Scan(
		&e.SequenceID, &e.EmployeeRFID, &e.DeviceID, &eventType,
		&scanMs, &recordedMs, &e.PrevHash, &e.HashChain,
		&processed, &processedMs, &e.EmployeeName,
	); err != nil {
		return types.LedgerEvent{}, err
	}
	e.EventType = types.EventType(eventType)
	e.ScanTimestamp = fromMs(scanMs)
	e.RecordedAt = fromMs(recordedMs)
	e.Processed = processed == 1
	if processedMs.Valid {
		t := fromMs(processedMs.Int64)
		e.ProcessedAt = &t
	}
	return e, nil
}

func (s *EventStore) query(ctx context.Context, q string, args ...any) ([]types.LedgerEvent, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.LedgerEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *EventStore) Append(ctx context.Context, in types.ScanInput) (types.LedgerEvent, error) {
	if in.RecordedAt.IsZero() {
		in.RecordedAt = time.Now().UTC()
	}
	// Millisecond storage; seal what will be read back.
	base := types.LedgerEvent{
		EmployeeRFID:  in.EmployeeRFID,
		DeviceID:      in.DeviceID,
		EventType:     in.EventType,
		ScanTimestamp: fromMs(toMs(in.ScanTimestamp)),
		RecordedAt:    fromMs(toMs(in.RecordedAt)),
	}

	var sealed types.LedgerEvent
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var (
			lastSeq  int64
			lastHash string
		)
		err := tx.QueryRowContext(ctx, `
SELECT sequence_id, hash_chain FROM ledger_events
ORDER BY sequence_id DESC LIMIT 1;
`).Scan(&lastSeq, &lastHash)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("Append read tail: %w", err)
		}

		e := base
		e.SequenceID = lastSeq + 1
		if err := chain.Seal(lastHash, &e); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO ledger_events(
  sequence_id, employee_rfid, device_id, event_type,
  scan_ts_ms, recorded_at_ms, prev_hash, hash_chain, processed
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0);
`,
			e.SequenceID, e.EmployeeRFID, e.DeviceID, string(e.EventType),
			toMs(e.ScanTimestamp), toMs(e.RecordedAt), e.PrevHash, e.HashChain,
		); err != nil {
			return fmt.Errorf("Append insert: %w", err)
		}
		sealed = e
		return nil
	})
	if err != nil {
		return types.LedgerEvent{}, err
	}
	return sealed, nil
}

func (s *EventStore) Get(ctx context.Context, sequenceID int64) (types.LedgerEvent, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT`+eventColumns+eventFrom+` WHERE e.sequence_id = ?;`, sequenceID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.LedgerEvent{}, store.ErrNotFound
	}
	if err != nil {
		return types.LedgerEvent{}, fmt.Errorf("Get %d: %w", sequenceID, err)
	}
	return e, nil
}

func buildWhere(f types.EventFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !f.From.IsZero() {
		conds = append(conds, "e.scan_ts_ms >= ?")
		args = append(args, toMs(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "e.scan_ts_ms < ?")
		args = append(args, toMs(f.To))
	}
	if f.DeviceID != "" {
		conds = append(conds, "e.device_id = ?")
		args = append(args, f.DeviceID)
	}
	if f.EventType != "" {
		conds = append(conds, "e.event_type = ?")
		args = append(args, string(f.EventType))
	}
	if f.EmployeeRFID != "" {
		conds = append(conds, "e.employee_rfid = ?")
		args = append(args, f.EmployeeRFID)
	}
	if q := strings.TrimSpace(f.EmployeeSearch); q != "" {
		conds = append(conds, `(
  LOWER(e.employee_rfid) LIKE ? ESCAPE '\'
  OR LOWER(COALESCE(b.employee_name, '')) LIKE ? ESCAPE '\'
  OR LOWER(COALESCE(b.employee_id, '')) LIKE ? ESCAPE '\')`)
		p := containsPattern(q)
		args = append(args, p, p, p)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *EventStore) List(ctx context.Context, f types.EventFilter, limit, offset int) ([]types.LedgerEvent, int, error) {
	where, args := buildWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+eventFrom+where+`;`, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("List count: %w", err)
	}
	if total == 0 || offset >= total {
		return []types.LedgerEvent{}, total, nil
	}

	if limit <= 0 {
		limit = -1
	}
	out, err := s.query(ctx,
		`SELECT`+eventColumns+eventFrom+where+` ORDER BY e.sequence_id DESC LIMIT ? OFFSET ?;`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	return out, total, nil
}

func (s *EventStore) Neighbors(ctx context.Context, sequenceID int64) (*types.LedgerEvent, *types.LedgerEvent, error) {
	one := func(q string) (*types.LedgerEvent, error) {
		e, err := scanEvent(s.db.QueryRowContext(ctx, q, sequenceID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &e, nil
	}

	prev, err := one(`SELECT` + eventColumns + eventFrom +
		` WHERE e.sequence_id < ? ORDER BY e.sequence_id DESC LIMIT 1;`)
	if err != nil {
		return nil, nil, fmt.Errorf("Neighbors prev: %w", err)
	}
	next, err := one(`SELECT` + eventColumns + eventFrom +
		` WHERE e.sequence_id > ? ORDER BY e.sequence_id ASC LIMIT 1;`)
	if err != nil {
		return nil, nil, fmt.Errorf("Neighbors next: %w", err)
	}
	return prev, next, nil
}

func (s *EventStore) ForEmployeeBetween(ctx context.Context, employeeRFID string, from, to time.Time) ([]types.LedgerEvent, error) {
	out, err := s.query(ctx, `SELECT`+eventColumns+eventFrom+`
WHERE e.employee_rfid = ? AND e.scan_ts_ms >= ? AND e.scan_ts_ms < ?
ORDER BY e.scan_ts_ms ASC, e.sequence_id ASC;`,
		employeeRFID, toMs(from), toMs(to))
	if err != nil {
		return nil, fmt.Errorf("ForEmployeeBetween: %w", err)
	}
	return out, nil
}

func (s *EventStore) Tail(ctx context.Context, n int) ([]types.LedgerEvent, error) {
	if n <= 0 {
		n = -1
	}
	out, err := s.query(ctx, `
SELECT * FROM (
  SELECT`+eventColumns+eventFrom+`
  ORDER BY e.sequence_id DESC LIMIT ?
) ORDER BY sequence_id ASC;`, n)
	if err != nil {
		return nil, fmt.Errorf("Tail: %w", err)
	}
	return out, nil
}

func (s *EventStore) Range(ctx context.Context, from int64, limit int) ([]types.LedgerEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	out, err := s.query(ctx, `SELECT`+eventColumns+eventFrom+`
WHERE e.sequence_id >= ?
ORDER BY e.sequence_id ASC LIMIT ?;`, from, limit)
	if err != nil {
		return nil, fmt.Errorf("Range: %w", err)
	}
	return out, nil
}

func (s *EventStore) ProcessingStats(ctx context.Context) (types.ProcessingStats, error) {
	var (
		st     types.ProcessingStats
		oldest sql.NullInt64
	)
	if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), MIN(recorded_at_ms) FROM ledger_events WHERE processed = 0;
`).Scan(&st.QueueDepth, &oldest); err != nil {
		return types.ProcessingStats{}, fmt.Errorf("ProcessingStats queue: %w", err)
	}
	if oldest.Valid {
		t := fromMs(oldest.Int64)
		st.OldestUnprocessedAt = &t
	}

	var recordedMs, processedMs int64
	err := s.db.QueryRowContext(ctx, `
SELECT recorded_at_ms, processed_at_ms FROM ledger_events
WHERE processed = 1 AND processed_at_ms IS NOT NULL
ORDER BY processed_at_ms DESC, (processed_at_ms - recorded_at_ms) DESC, sequence_id DESC
LIMIT 1;
`).Scan(&recordedMs, &processedMs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return types.ProcessingStats{}, fmt.Errorf("ProcessingStats last processed: %w", err)
	default:
		d := time.Duration(processedMs-recordedMs) * time.Millisecond
		st.LastProcessedDelay = &d
	}
	return st, nil
}

func (s *EventStore) CountRecordedSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_events WHERE recorded_at_ms >= ?;`, toMs(since),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountRecordedSince: %w", err)
	}
	return n, nil
}

func (s *EventStore) MarkProcessed(ctx context.Context, sequenceIDs []int64, at time.Time) (int64, error) {
	if len(sequenceIDs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(sequenceIDs)+1)
	args = append(args, toMs(at))
	for _, id := range sequenceIDs {
		args = append(args, id)
	}

	var updated int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE ledger_events
SET processed = 1, processed_at_ms = ?
WHERE processed = 0 AND sequence_id IN (`+placeholders(len(sequenceIDs))+`);
`, args...)
		if err != nil {
			return fmt.Errorf("MarkProcessed: %w", err)
		}
		updated, _ = res.RowsAffected()
		return nil
	})
	return updated, err
}

func (s *EventStore) BadgeScans(ctx context.Context, cardUID string) ([]types.BadgeScan, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT device_id, event_type, scan_ts_ms FROM ledger_events
WHERE employee_rfid = ?
ORDER BY scan_ts_ms ASC, sequence_id ASC;
`, cardUID)
	if err != nil {
		return nil, fmt.Errorf("BadgeScans: %w", err)
	}
	defer rows.Close()

	out := []types.BadgeScan{}
	for rows.Next() {
		var (
			sc        types.BadgeScan
			eventType string
			scanMs    int64
		)
		if err := rows.Scan(&sc.DeviceID, &eventType, &scanMs); err != nil {
			return nil, fmt.Errorf("BadgeScans scan: %w", err)
		}
		sc.EventType = types.EventType(eventType)
		sc.ScanTimestamp = fromMs(scanMs)
		out = append(out, sc)
	}
	return out, rows.Err()
}
