package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/ledgerwatch/internal/db"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// HealthLogStore keeps one snapshot per UTC hour as JSON.
type HealthLogStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewHealthLogStore(db *sql.DB, writer *dbpkg.Worker) *HealthLogStore {
	return &HealthLogStore{db: db, writer: writer}
}

func (s *HealthLogStore) UpsertHourly(ctx context.Context, snap types.HealthSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("UpsertHourly encode: %w", err)
	}
	hour := toMs(snap.Timestamp.UTC().Truncate(time.Hour))

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO health_logs(hour_ms, status, snapshot_at_ms, snapshot)
VALUES (?, ?, ?, ?)
ON CONFLICT(hour_ms) DO UPDATE SET
  status         = excluded.status,
  snapshot_at_ms = excluded.snapshot_at_ms,
  snapshot       = excluded.snapshot;
`, hour, string(snap.Status), toMs(snap.Timestamp), string(payload)); err != nil {
			return fmt.Errorf("UpsertHourly: %w", err)
		}
		return nil
	})
}

func (s *HealthLogStore) ListSince(ctx context.Context, since time.Time) ([]types.HealthSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT snapshot FROM health_logs
WHERE snapshot_at_ms >= ?
ORDER BY snapshot_at_ms ASC;
`, toMs(since))
	if err != nil {
		return nil, fmt.Errorf("ListSince: %w", err)
	}
	defer rows.Close()

	out := []types.HealthSnapshot{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("ListSince scan: %w", err)
		}
		var snap types.HealthSnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			return nil, fmt.Errorf("ListSince decode: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// PruneOlderThan deletes hourly entries taken before cutoff and returns the
// number of rows deleted.
func (s *HealthLogStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM health_logs WHERE snapshot_at_ms < ?;`, toMs(cutoff))
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
