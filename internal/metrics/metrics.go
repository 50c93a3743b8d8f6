// Package metrics exposes ledger health and API traffic in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

var statuses = []types.Status{types.StatusHealthy, types.StatusWarning, types.StatusCritical, types.StatusUnknown}

var (
	// HealthStatus is 1 for the current status label and 0 for the others.
	HealthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledgerwatch_health_status",
			Help: "Current ledger health status (1 for the active status)",
		},
		[]string{"status"},
	)

	ProcessingLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgerwatch_processing_lag_seconds",
		Help: "Age of the oldest unprocessed ledger event",
	})

	SequenceGaps = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgerwatch_sequence_gaps",
		Help: "Sequence gaps in the most recent verification window",
	})

	HashFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgerwatch_hash_failures",
		Help: "Hash chain failures in the most recent verification window",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgerwatch_queue_depth",
		Help: "Ledger events not yet processed",
	})

	EventsPerHour = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgerwatch_events_per_hour",
		Help: "Ledger events recorded in the trailing hour",
	})

	Devices = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledgerwatch_devices",
			Help: "RFID readers by effective state",
		},
		[]string{"state"},
	)

	HealthComputations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerwatch_health_computations_total",
		Help: "Fresh health snapshot computations",
	})

	// ScansTotal counts scan submissions by outcome.
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerwatch_scans_total",
			Help: "Scan submissions by result",
		},
		[]string{"result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerwatch_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)

	HTTPLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledgerwatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one finished HTTP request.
func ObserveRequest(method, route string, code int, d time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	HTTPLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// HealthObserver mirrors every fresh snapshot into the health gauges.
type HealthObserver struct{}

func (HealthObserver) ObserveHealth(_ context.Context, snap types.HealthSnapshot) {
	HealthComputations.Inc()
	for _, st := range statuses {
		v := 0.0
		if st == snap.Status {
			v = 1
		}
		HealthStatus.WithLabelValues(string(st)).Set(v)
	}
	ProcessingLag.Set(snap.ProcessingLagSeconds)
	SequenceGaps.Set(float64(snap.SequenceGapsCount))
	HashFailures.Set(float64(snap.HashFailuresCount))
	QueueDepth.Set(float64(snap.QueueDepth))
	EventsPerHour.Set(float64(snap.EventsPerHour))
	Devices.WithLabelValues("online").Set(float64(snap.DevicesOnline))
	Devices.WithLabelValues("offline").Set(float64(snap.DevicesOffline))
}
