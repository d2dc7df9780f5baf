// Package metrics holds the mempool's Prometheus instrumentation,
// registered and shaped the way the teacher's facilitator service
// registers its request/verify/settle metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the core emits.
type Metrics struct {
	admissionsTotal    *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec
	poolSize           *prometheus.GaugeVec
	reputationStatus   *prometheus.GaugeVec
	decayTotal         prometheus.Counter
}

// New creates and registers the mempool's collectors.
func New() *Metrics {
	m := &Metrics{
		admissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aa_mempool_admissions_total",
				Help: "Total number of add() calls by outcome",
			},
			[]string{"entry_point", "result"},
		),
		validationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aa_mempool_validation_duration_seconds",
				Help:    "validate() duration in seconds by phase",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		poolSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aa_mempool_pool_size",
				Help: "Current number of pending UserOperations",
			},
			[]string{"entry_point"},
		),
		reputationStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aa_mempool_reputation_status",
				Help: "Number of entities by derived reputation status",
			},
			[]string{"entry_point", "status"},
		),
		decayTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aa_mempool_reputation_decay_total",
				Help: "Total number of hourly reputation decay passes applied",
			},
		),
	}

	prometheus.MustRegister(
		m.admissionsTotal,
		m.validationDuration,
		m.poolSize,
		m.reputationStatus,
		m.decayTotal,
	)

	return m
}

// RecordAdmission records one add() outcome for entryPoint.
func (m *Metrics) RecordAdmission(entryPoint string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.admissionsTotal.WithLabelValues(entryPoint, result).Inc()
}

// ObserveValidationPhase records how long a validation phase took.
func (m *Metrics) ObserveValidationPhase(phase string, start time.Time) {
	m.validationDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

// SetPoolSize reports the current pending-UO count for entryPoint.
func (m *Metrics) SetPoolSize(entryPoint string, size int) {
	m.poolSize.WithLabelValues(entryPoint).Set(float64(size))
}

// SetReputationStatusCount reports how many entities currently sit in
// a given derived status (ok/throttled/banned) for entryPoint.
func (m *Metrics) SetReputationStatusCount(entryPoint, status string, count int) {
	m.reputationStatus.WithLabelValues(entryPoint, status).Set(float64(count))
}

// RecordDecayPass increments the hourly decay counter.
func (m *Metrics) RecordDecayPass() {
	m.decayTotal.Inc()
}

// Handler exposes the registered collectors for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
