package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Membership ring metrics
	RingRebuilds  *prometheus.CounterVec
	RingNodes     *prometheus.GaugeVec
	SlatedNodes   *prometheus.GaugeVec
	PurgeAttempts *prometheus.CounterVec

	// Commit engine metrics
	PendingRecords   prometheus.Gauge
	ExecutedRecords  prometheus.Gauge
	CoordinateTotal  *prometheus.CounterVec
	ObviationsTotal  *prometheus.CounterVec
	SweepDuration    prometheus.Histogram
	ExpiredPrevDrops prometheus.Counter
}

// NewMetrics creates and registers Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RingRebuilds: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconfig_ring_rebuilds_total",
				Help: "Total number of consistent hash ring rebuilds",
			},
			[]string{"role"},
		),

		RingNodes: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reconfig_ring_nodes",
				Help: "Number of nodes currently placed on the ring",
			},
			[]string{"role"},
		),

		SlatedNodes: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reconfig_slated_nodes",
				Help: "Number of nodes slated for removal",
			},
			[]string{"role"},
		),

		PurgeAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconfig_purge_attempts_total",
				Help: "Total number of slated-node purge attempts",
			},
			[]string{"role", "status"},
		),

		PendingRecords: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "reconfig_pending_records",
				Help: "Number of reconfiguration records awaiting commit",
			},
		),

		ExecutedRecords: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "reconfig_executed_records",
				Help: "Number of records retained in the executed cache",
			},
		),

		CoordinateTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconfig_coordinate_total",
				Help: "Total number of coordinate submissions to the log",
			},
			[]string{"kind", "status"},
		),

		ObviationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconfig_obviations_total",
				Help: "Total number of records dropped as obviated",
			},
			[]string{"kind"},
		),

		SweepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reconfig_sweep_duration_seconds",
				Help:    "Duration of commit retry sweeps",
				Buckets: prometheus.DefBuckets,
			},
		),

		ExpiredPrevDrops: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "reconfig_expired_prev_drops_total",
				Help: "Total number of prev-drop records abandoned after the maximum attempt window",
			},
		),
	}
}

// RecordRingRebuild records a ring rebuild for a role
func (m *Metrics) RecordRingRebuild(role string, nodes int) {
	if m == nil {
		return
	}
	m.RingRebuilds.WithLabelValues(role).Inc()
	m.RingNodes.WithLabelValues(role).Set(float64(nodes))
}

// RecordSlated updates the slated-node gauge for a role
func (m *Metrics) RecordSlated(role string, slated int) {
	if m == nil {
		return
	}
	m.SlatedNodes.WithLabelValues(role).Set(float64(slated))
}

// RecordPurge records a purge attempt outcome
func (m *Metrics) RecordPurge(role, status string) {
	if m == nil {
		return
	}
	m.PurgeAttempts.WithLabelValues(role, status).Inc()
}

// RecordQueueSizes updates the pending and executed gauges
func (m *Metrics) RecordQueueSizes(pending, executed int) {
	if m == nil {
		return
	}
	m.PendingRecords.Set(float64(pending))
	m.ExecutedRecords.Set(float64(executed))
}

// RecordCoordinate records one coordinate submission
func (m *Metrics) RecordCoordinate(kind, status string) {
	if m == nil {
		return
	}
	m.CoordinateTotal.WithLabelValues(kind, status).Inc()
}

// RecordObviation records a record dropped as obviated
func (m *Metrics) RecordObviation(kind string) {
	if m == nil {
		return
	}
	m.ObviationsTotal.WithLabelValues(kind).Inc()
}

// RecordSweep records the duration of one retry sweep
func (m *Metrics) RecordSweep(seconds float64) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(seconds)
}

// RecordExpiredPrevDrop records an abandoned prev-drop record
func (m *Metrics) RecordExpiredPrevDrop() {
	if m == nil {
		return
	}
	m.ExpiredPrevDrops.Inc()
}
