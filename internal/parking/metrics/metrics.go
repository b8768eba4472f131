// Package metrics exposes Prometheus counters for node transitions, badge
// checks, use case outcomes and absorbed side-effect failures.
package metrics

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the service layer reports into.
type Recorder interface {
	RecordTransition(from, to domain.NodeStatus)
	RecordBadgeResult(result string)
	RecordUseCase(name, result string)
	RecordSideEffectFailure(kind string)
	RecordLockWait(d time.Duration)
}

// Nop discards everything. Used when metrics are not wired, e.g. in tests.
type Nop struct{}

func (Nop) RecordTransition(domain.NodeStatus, domain.NodeStatus) {}
func (Nop) RecordBadgeResult(string)                              {}
func (Nop) RecordUseCase(string, string)                          {}
func (Nop) RecordSideEffectFailure(string)                        {}
func (Nop) RecordLockWait(time.Duration)                          {}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	transitions  *prometheus.CounterVec
	badgeResults *prometheus.CounterVec
	useCases     *prometheus.CounterVec
	sideEffects  *prometheus.CounterVec
	lockWait     prometheus.Histogram
}

// NewCollector builds a Collector and registers it against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_node_transitions_total",
			Help: "Node status transitions applied, by source and target status.",
		}, []string{"from", "to"}),
		badgeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_badge_authentications_total",
			Help: "Badge secret checks, by outcome.",
		}, []string{"result"}),
		useCases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_use_cases_total",
			Help: "Coordinator use case invocations, by name and result tag.",
		}, []string{"use_case", "result"}),
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_side_effect_failures_total",
			Help: "Notifications and node commands that failed and were dropped.",
		}, []string{"kind"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "parking_lock_wait_seconds",
			Help:    "Time spent waiting for per-node and per-user locks.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}

	reg.MustRegister(
		c.transitions,
		c.badgeResults,
		c.useCases,
		c.sideEffects,
		c.lockWait,
	)

	return c
}

func (c *Collector) RecordTransition(from, to domain.NodeStatus) {
	c.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (c *Collector) RecordBadgeResult(result string) {
	c.badgeResults.WithLabelValues(result).Inc()
}

func (c *Collector) RecordUseCase(name, result string) {
	c.useCases.WithLabelValues(name, result).Inc()
}

func (c *Collector) RecordSideEffectFailure(kind string) {
	c.sideEffects.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordLockWait(d time.Duration) {
	c.lockWait.Observe(d.Seconds())
}

// Handler serves the gatherer in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
