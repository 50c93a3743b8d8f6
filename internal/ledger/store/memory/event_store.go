package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/chain"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/store"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// EventStore keeps the ledger in a slice ordered by sequence id.
type EventStore struct {
	mu     sync.RWMutex
	events []types.LedgerEvent
	badges *BadgeStore
}

// NewEventStore returns an empty ledger. badges may be nil, in which case
// employee names are not resolved.
func NewEventStore(badges *BadgeStore) *EventStore {
	return &EventStore{badges: badges}
}

func (s *EventStore) Append(_ context.Context, in types.ScanInput) (types.LedgerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.RecordedAt.IsZero() {
		in.RecordedAt = time.Now().UTC()
	}
	e := types.LedgerEvent{
		SequenceID:    1,
		EmployeeRFID:  in.EmployeeRFID,
		DeviceID:      in.DeviceID,
		EventType:     in.EventType,
		ScanTimestamp: in.ScanTimestamp.UTC(),
		RecordedAt:    in.RecordedAt.UTC(),
	}
	prev := ""
	if n := len(s.events); n > 0 {
		last := s.events[n-1]
		e.SequenceID = last.SequenceID + 1
		prev = last.HashChain
	}
	if err := chain.Seal(prev, &e); err != nil {
		return types.LedgerEvent{}, err
	}
	s.events = append(s.events, e)
	return e, nil
}

// Insert stores e verbatim, keeping sequence order. Tests use it to build
// ledgers with gaps or broken links.
func (s *EventStore) Insert(e types.LedgerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.search(e.SequenceID)
	if i < len(s.events) && s.events[i].SequenceID == e.SequenceID {
		s.events[i] = e
		return
	}
	s.events = append(s.events, types.LedgerEvent{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = e
}

func (s *EventStore) search(seq int64) int {
	return sort.Search(len(s.events), func(i int) bool { return s.events[i].SequenceID >= seq })
}

func (s *EventStore) index(seq int64) int {
	i := s.search(seq)
	if i < len(s.events) && s.events[i].SequenceID == seq {
		return i
	}
	return -1
}

func (s *EventStore) withName(e types.LedgerEvent) types.LedgerEvent {
	if b := s.badges.lookup(e.EmployeeRFID); b != nil {
		e.EmployeeName = b.EmployeeName
	}
	return e
}

func (s *EventStore) Get(_ context.Context, sequenceID int64) (types.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.index(sequenceID)
	if i < 0 {
		return types.LedgerEvent{}, store.ErrNotFound
	}
	return s.withName(s.events[i]), nil
}

func (s *EventStore) List(_ context.Context, f types.EventFilter, limit, offset int) ([]types.LedgerEvent, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []types.LedgerEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if matches(e, f, s.badges.lookup(e.EmployeeRFID)) {
			matched = append(matched, e)
		}
	}
	total := len(matched)
	if offset >= total {
		return []types.LedgerEvent{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	out := make([]types.LedgerEvent, 0, end-offset)
	for _, e := range matched[offset:end] {
		out = append(out, s.withName(e))
	}
	return out, total, nil
}

func (s *EventStore) Neighbors(_ context.Context, sequenceID int64) (*types.LedgerEvent, *types.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var prev, next *types.LedgerEvent
	i := s.search(sequenceID)
	if i > 0 {
		p := s.withName(s.events[i-1])
		prev = &p
	}
	j := i
	if j < len(s.events) && s.events[j].SequenceID == sequenceID {
		j++
	}
	if j < len(s.events) {
		n := s.withName(s.events[j])
		next = &n
	}
	return prev, next, nil
}

func (s *EventStore) ForEmployeeBetween(_ context.Context, employeeRFID string, from, to time.Time) ([]types.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []types.LedgerEvent{}
	for _, e := range s.events {
		if e.EmployeeRFID == employeeRFID && !e.ScanTimestamp.Before(from) && e.ScanTimestamp.Before(to) {
			out = append(out, s.withName(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScanTimestamp.Before(out[j].ScanTimestamp) })
	return out, nil
}

func (s *EventStore) Tail(_ context.Context, n int) ([]types.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.events) - n
	if start < 0 || n <= 0 {
		start = 0
	}
	return append([]types.LedgerEvent(nil), s.events[start:]...), nil
}

func (s *EventStore) Range(_ context.Context, from int64, limit int) ([]types.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.search(from)
	end := len(s.events)
	if limit > 0 && i+limit < end {
		end = i + limit
	}
	return append([]types.LedgerEvent(nil), s.events[i:end]...), nil
}

func (s *EventStore) ProcessingStats(_ context.Context) (types.ProcessingStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st types.ProcessingStats
	var last *types.LedgerEvent
	for i := range s.events {
		e := &s.events[i]
		if !e.Processed {
			st.QueueDepth++
			if st.OldestUnprocessedAt == nil || e.RecordedAt.Before(*st.OldestUnprocessedAt) {
				t := e.RecordedAt
				st.OldestUnprocessedAt = &t
			}
			continue
		}
		if e.ProcessedAt == nil {
			continue
		}
		// A batch shares one processed_at; report its slowest event.
		if last == nil || e.ProcessedAt.After(*last.ProcessedAt) ||
			(e.ProcessedAt.Equal(*last.ProcessedAt) && e.ProcessedAt.Sub(e.RecordedAt) > last.ProcessedAt.Sub(last.RecordedAt)) {
			last = e
		}
	}
	if last != nil {
		d := last.ProcessedAt.Sub(last.RecordedAt)
		st.LastProcessedDelay = &d
	}
	return st, nil
}

func (s *EventStore) CountRecordedSince(_ context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.events {
		if !e.RecordedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *EventStore) MarkProcessed(_ context.Context, sequenceIDs []int64, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at = at.UTC()
	var n int64
	for _, id := range sequenceIDs {
		i := s.index(id)
		if i < 0 || s.events[i].Processed {
			continue
		}
		t := at
		s.events[i].Processed = true
		s.events[i].ProcessedAt = &t
		n++
	}
	return n, nil
}

func (s *EventStore) BadgeScans(_ context.Context, cardUID string) ([]types.BadgeScan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []types.BadgeScan{}
	for _, e := range s.events {
		if e.EmployeeRFID == cardUID {
			out = append(out, types.BadgeScan{DeviceID: e.DeviceID, EventType: e.EventType, ScanTimestamp: e.ScanTimestamp})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScanTimestamp.Before(out[j].ScanTimestamp) })
	return out, nil
}

// Events returns a copy of the ledger in sequence order.
func (s *EventStore) Events() []types.LedgerEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.LedgerEvent(nil), s.events...)
}
