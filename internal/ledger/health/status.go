package health

import (
	"fmt"
	"time"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// Thresholds. Critical limits are evaluated before warning limits.
const (
	CriticalHashFailures = 3
	CriticalSequenceGaps = 3
	CriticalLagSeconds   = 300.0
	CriticalQueueDepth   = 1000

	WarningHashFailures   = 1
	WarningSequenceGaps   = 1
	WarningLagSeconds     = 120.0
	WarningQueueDepth     = 200
	WarningDevicesOffline = 1
)

// Metrics are the inputs to status derivation.
type Metrics struct {
	HashFailures         int
	SequenceGaps         int
	ProcessingLagSeconds float64
	QueueDepth           int64
	DevicesOffline       int
}

func metricsOf(s types.HealthSnapshot) Metrics {
	return Metrics{
		HashFailures:         s.HashFailuresCount,
		SequenceGaps:         s.SequenceGapsCount,
		ProcessingLagSeconds: s.ProcessingLagSeconds,
		QueueDepth:           s.QueueDepth,
		DevicesOffline:       s.DevicesOffline,
	}
}

// DeriveStatus maps metrics to a health tier. It is pure and never returns
// StatusUnknown.
func DeriveStatus(m Metrics) types.Status {
	if m.HashFailures >= CriticalHashFailures ||
		m.SequenceGaps >= CriticalSequenceGaps ||
		m.ProcessingLagSeconds > CriticalLagSeconds ||
		m.QueueDepth > CriticalQueueDepth {
		return types.StatusCritical
	}
	if m.HashFailures >= WarningHashFailures ||
		m.SequenceGaps >= WarningSequenceGaps ||
		m.ProcessingLagSeconds > WarningLagSeconds ||
		m.QueueDepth > WarningQueueDepth ||
		m.DevicesOffline > WarningDevicesOffline {
		return types.StatusWarning
	}
	return types.StatusHealthy
}

// BuildAlerts returns one alert per breached metric, at the severity of the
// highest threshold that metric crossed.
func BuildAlerts(m Metrics, at time.Time) []types.Alert {
	alerts := []types.Alert{}
	add := func(sev types.Severity, metric, format string, args ...any) {
		alerts = append(alerts, types.Alert{
			Severity:  sev,
			Metric:    metric,
			Message:   fmt.Sprintf(format, args...),
			Timestamp: at,
		})
	}

	switch {
	case m.HashFailures >= CriticalHashFailures:
		add(types.SeverityCritical, "hash_failures", "%d hash chain verification failures", m.HashFailures)
	case m.HashFailures >= WarningHashFailures:
		add(types.SeverityWarning, "hash_failures", "%d hash chain verification failure(s)", m.HashFailures)
	}

	switch {
	case m.SequenceGaps >= CriticalSequenceGaps:
		add(types.SeverityCritical, "sequence_gaps", "%d sequence gaps detected", m.SequenceGaps)
	case m.SequenceGaps >= WarningSequenceGaps:
		add(types.SeverityWarning, "sequence_gaps", "%d sequence gap(s) detected", m.SequenceGaps)
	}

	switch {
	case m.ProcessingLagSeconds > CriticalLagSeconds:
		add(types.SeverityCritical, "processing_lag", "processing lag %.0fs exceeds %.0fs", m.ProcessingLagSeconds, CriticalLagSeconds)
	case m.ProcessingLagSeconds > WarningLagSeconds:
		add(types.SeverityWarning, "processing_lag", "processing lag %.0fs exceeds %.0fs", m.ProcessingLagSeconds, WarningLagSeconds)
	}

	switch {
	case m.QueueDepth > CriticalQueueDepth:
		add(types.SeverityCritical, "queue_depth", "%d unprocessed events (limit %d)", m.QueueDepth, CriticalQueueDepth)
	case m.QueueDepth > WarningQueueDepth:
		add(types.SeverityWarning, "queue_depth", "%d unprocessed events (limit %d)", m.QueueDepth, WarningQueueDepth)
	}

	if m.DevicesOffline > WarningDevicesOffline {
		add(types.SeverityWarning, "devices_offline", "%d devices offline or in maintenance", m.DevicesOffline)
	}

	return alerts
}
