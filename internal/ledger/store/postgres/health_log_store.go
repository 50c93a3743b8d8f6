package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// HealthLogStore keeps one snapshot per UTC hour in a JSONB column.
type HealthLogStore struct {
	db *sqlx.DB
}

func NewHealthLogStore(db *sqlx.DB) *HealthLogStore {
	return &HealthLogStore{db: db}
}

func (s *HealthLogStore) UpsertHourly(ctx context.Context, snap types.HealthSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO health_logs (hour, status, snapshot_at, snapshot)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hour) DO UPDATE SET
			status = EXCLUDED.status,
			snapshot_at = EXCLUDED.snapshot_at,
			snapshot = EXCLUDED.snapshot`,
		snap.Timestamp.UTC().Truncate(time.Hour), string(snap.Status), snap.Timestamp.UTC(), payload)
	if err != nil {
		return fmt.Errorf("upsert health log: %w", err)
	}
	return nil
}

func (s *HealthLogStore) ListSince(ctx context.Context, since time.Time) ([]types.HealthSnapshot, error) {
	var raw [][]byte
	if err := s.db.SelectContext(ctx, &raw, `
		SELECT snapshot FROM health_logs
		WHERE snapshot_at >= $1
		ORDER BY snapshot_at ASC`, since.UTC()); err != nil {
		return nil, fmt.Errorf("list health logs: %w", err)
	}
	out := make([]types.HealthSnapshot, 0, len(raw))
	for _, b := range raw {
		var snap types.HealthSnapshot
		if err := json.Unmarshal(b, &snap); err != nil {
			return nil, fmt.Errorf("decode health log: %w", err)
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *HealthLogStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM health_logs WHERE snapshot_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune health logs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
