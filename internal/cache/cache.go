// Package cache stores computed snapshots between requests.
package cache

import (
	"context"
	"time"
)

// Entry is a cached value and the time it was written.
type Entry struct {
	Value    []byte
	StoredAt time.Time
}

// FreshAt reports whether the entry is younger than ttl at now.
func (e Entry) FreshAt(now time.Time, ttl time.Duration) bool {
	return !e.StoredAt.IsZero() && now.Sub(e.StoredAt) < ttl
}

// Store is a keyed byte cache. Concurrent writers to the same key are
// last-writer-wins.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Set stores value. A ttl <= 0 keeps the entry until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes keys; deleting a missing key is not an error.
	Delete(ctx context.Context, keys ...string) error
	// HasFresh reports whether key holds an entry younger than ttl.
	HasFresh(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
