// Package events publishes ledger health notifications to a message bus.
package events

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// Event topic constants
const (
	TopicHealthStatusChanged = "ledgerwatch.health.status_changed"
	TopicHealthAlert         = "ledgerwatch.health.alert"
)

// Publisher sends JSON-encoded events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// HealthStatusChanged is published when a freshly computed snapshot's status
// differs from the previous one. Previous is empty for the first snapshot
// seen by the process.
type HealthStatusChanged struct {
	Previous   types.Status  `json:"previous,omitempty"`
	Current    types.Status  `json:"current"`
	SnapshotID string        `json:"snapshot_id"`
	Timestamp  time.Time     `json:"timestamp"`
	Alerts     []types.Alert `json:"alerts"`
}

// HealthAlert is published for every critical alert of a snapshot whose
// status changed.
type HealthAlert struct {
	SnapshotID string      `json:"snapshot_id"`
	Alert      types.Alert `json:"alert"`
}
