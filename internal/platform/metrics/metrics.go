package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics shared across the permission core.
type Metrics struct {
	ChecksTotal     *prometheus.CounterVec
	DenialsTotal    *prometheus.CounterVec
	MutationsTotal  *prometheus.CounterVec
	CacheHitsTotal  prometheus.Counter
	CacheMissTotal  prometheus.Counter
	CheckDurationMs prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "permit_checks_total",
			Help: "Total permission checks by decision outcome",
		}, []string{"allowed"}),
		DenialsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "permit_denials_total",
			Help: "Denied permission checks by reason",
		}, []string{"reason"}),
		MutationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "permit_mutations_total",
			Help: "Permission mutations by audit action type",
		}, []string{"action_type"}),
		CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "permit_snapshot_cache_hits_total",
			Help: "Effective-permission snapshot cache hits",
		}),
		CacheMissTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "permit_snapshot_cache_misses_total",
			Help: "Effective-permission snapshot cache misses",
		}),
		CheckDurationMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "permit_check_duration_ms",
			Help:    "Latency of permission checks in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),
	}
}

// IncrementCheck records one resolved check.
func (m *Metrics) IncrementCheck(allowed bool) {
	if m == nil {
		return
	}
	if allowed {
		m.ChecksTotal.WithLabelValues("true").Inc()
	} else {
		m.ChecksTotal.WithLabelValues("false").Inc()
	}
}

// IncrementDenial records a denied check by reason.
func (m *Metrics) IncrementDenial(reason string) {
	if m == nil {
		return
	}
	m.DenialsTotal.WithLabelValues(reason).Inc()
}

// IncrementMutation records a committed mutation by audit action type.
func (m *Metrics) IncrementMutation(actionType string) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(actionType).Inc()
}
