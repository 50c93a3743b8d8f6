package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

type BadgeStore struct {
	mu     sync.RWMutex
	badges map[string]types.Badge
}

func NewBadgeStore(badges ...types.Badge) *BadgeStore {
	s := &BadgeStore{badges: make(map[string]types.Badge, len(badges))}
	for _, b := range badges {
		s.badges[b.CardUID] = b
	}
	return s
}

// lookup is nil-safe so an EventStore without a badge registry works.
func (s *BadgeStore) lookup(cardUID string) *types.Badge {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.badges[cardUID]
	if !ok {
		return nil
	}
	return &b
}

func (s *BadgeStore) GetBadge(_ context.Context, cardUID string) (types.Badge, error) {
	if b := s.lookup(strings.TrimSpace(cardUID)); b != nil {
		return *b, nil
	}
	return types.Badge{}, store.ErrNotFound
}

func (s *BadgeStore) UpsertBadge(_ context.Context, b types.Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badges[b.CardUID] = b
	return nil
}
