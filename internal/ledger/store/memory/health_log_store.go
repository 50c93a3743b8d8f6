package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// HealthLogStore keeps one snapshot per hour.
type HealthLogStore struct {
	mu   sync.RWMutex
	data map[int64]types.HealthSnapshot
}

func NewHealthLogStore() *HealthLogStore {
	return &HealthLogStore{data: make(map[int64]types.HealthSnapshot)}
}

func hourKey(t time.Time) int64 {
	return t.UTC().Truncate(time.Hour).UnixMilli()
}

func (s *HealthLogStore) UpsertHourly(_ context.Context, snap types.HealthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[hourKey(snap.Timestamp)] = snap
	return nil
}

func (s *HealthLogStore) ListSince(_ context.Context, since time.Time) ([]types.HealthSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []types.HealthSnapshot{}
	for _, snap := range s.data {
		if !snap.Timestamp.Before(since) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *HealthLogStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, snap := range s.data {
		if snap.Timestamp.Before(cutoff) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

// Len reports how many hours are stored.
func (s *HealthLogStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
