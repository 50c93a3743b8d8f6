package types

import (
	"fmt"
	"time"
)

// EventType is the kind of badge scan a reader recorded.
type EventType string

const (
	EventTimeIn     EventType = "time_in"
	EventTimeOut    EventType = "time_out"
	EventBreakStart EventType = "break_start"
	EventBreakEnd   EventType = "break_end"
)

var eventTypes = []EventType{EventTimeIn, EventTimeOut, EventBreakStart, EventBreakEnd}

// EventTypes returns every valid event type in display order.
func EventTypes() []EventType {
	out := make([]EventType, len(eventTypes))
	copy(out, eventTypes)
	return out
}

func (t EventType) Valid() bool {
	for _, v := range eventTypes {
		if t == v {
			return true
		}
	}
	return false
}

func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// LedgerEvent is one immutable entry of the timekeeping ledger.
type LedgerEvent struct {
	SequenceID    int64      `json:"sequence_id"`
	EmployeeRFID  string     `json:"employee_rfid"`
	DeviceID      string     `json:"device_id"`
	EventType     EventType  `json:"event_type"`
	ScanTimestamp time.Time  `json:"scan_timestamp"`
	RecordedAt    time.Time  `json:"recorded_at"`
	PrevHash      string     `json:"prev_hash"`
	HashChain     string     `json:"hash_chain"`
	Processed     bool       `json:"processed"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`

	// Resolved from the badge registry when listing; empty if the card is
	// not registered.
	EmployeeName string `json:"employee_name,omitempty"`
}

// ScanInput is what a reader submits; the ledger assigns sequence and hashes.
type ScanInput struct {
	EmployeeRFID  string
	DeviceID      string
	EventType     EventType
	ScanTimestamp time.Time
	RecordedAt    time.Time
}

// EventFilter narrows ListEvents. Zero values mean "no constraint".
type EventFilter struct {
	From           time.Time // inclusive
	To             time.Time // exclusive
	DeviceID       string
	EventType      EventType
	EmployeeRFID   string
	EmployeeSearch string
}

// EventDetail is a single event with its neighbours in sequence order and
// the same employee's events for that calendar day.
type EventDetail struct {
	Event    LedgerEvent   `json:"event"`
	Previous *LedgerEvent  `json:"previous"`
	Next     *LedgerEvent  `json:"next"`
	SameDay  []LedgerEvent `json:"same_day"`
}

// ProcessingStats feeds the processing-lag and queue-depth metrics.
type ProcessingStats struct {
	QueueDepth          int64
	OldestUnprocessedAt *time.Time
	LastProcessedDelay  *time.Duration
}
