package types

import "time"

type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"

	// StatusUnknown is reported when no snapshot could be computed and none
	// was cached. It is never produced by threshold evaluation.
	StatusUnknown Status = "unknown"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// GapDetail describes a run of missing sequence ids.
type GapDetail struct {
	MissingStart int64     `json:"missing_start"`
	MissingEnd   int64     `json:"missing_end"`
	GapSize      int64     `json:"gap_size"`
	DetectedAt   time.Time `json:"detected_at"`
}

type Alert struct {
	Severity  Severity  `json:"severity"`
	Metric    string    `json:"metric"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthSnapshot is one point-in-time evaluation of the ledger.
type HealthSnapshot struct {
	ID                   string      `json:"id"`
	Status               Status      `json:"status"`
	Timestamp            time.Time   `json:"timestamp"`
	ProcessingLagSeconds float64     `json:"processing_lag_seconds"`
	SequenceGapsCount    int         `json:"sequence_gaps_count"`
	GapDetails           []GapDetail `json:"gap_details"`
	HashFailuresCount    int         `json:"hash_failures_count"`
	HashTotalChecked     int         `json:"hash_total_checked"`
	QueueDepth           int64       `json:"queue_depth"`
	EventsPerHour        int64       `json:"events_per_hour"`
	DevicesOnline        int         `json:"devices_online"`
	DevicesOffline       int         `json:"devices_offline"`
	DevicesTotal         int         `json:"devices_total"`
	Alerts               []Alert     `json:"alerts"`
}

// UnknownSnapshot is the placeholder returned when the ledger could not be
// read and nothing was cached.
func UnknownSnapshot(at time.Time) HealthSnapshot {
	return HealthSnapshot{
		Status:     StatusUnknown,
		Timestamp:  at,
		GapDetails: []GapDetail{},
		Alerts: []Alert{{
			Severity:  SeverityCritical,
			Metric:    "data_source",
			Message:   "ledger data unavailable; health cannot be determined",
			Timestamp: at,
		}},
	}
}
