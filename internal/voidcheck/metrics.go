package voidcheck

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup failure kinds.
const (
	failureProfile = "profile"
	failureAlias   = "alias"
)

// statusError labels checks that ended in an error rather than a Status.
const statusError = "error"

// Metrics counts check outcomes and per-user lookup failures. A nil *Metrics is valid and records nothing.
type Metrics struct {
	checks         *prometheus.CounterVec
	lookupFailures *prometheus.CounterVec
	aggregation    prometheus.Histogram
}

// NewMetrics registers the void-check collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zrebot_voidcheck_checks_total",
			Help: "Void checks by outcome",
		}, []string{"status"}),
		lookupFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zrebot_voidcheck_lookup_failures_total",
			Help: "Per-user lookups that failed during aggregation",
		}, []string{"kind"}),
		aggregation: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "zrebot_voidcheck_aggregation_seconds",
			Help:    "Time spent collecting reactor identities for one message",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
	}
}

func (m *Metrics) observeCheck(status string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(status).Inc()
}

func (m *Metrics) lookupFailed(kind string) {
	if m == nil {
		return
	}
	m.lookupFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeAggregation(d time.Duration) {
	if m == nil {
		return
	}
	m.aggregation.Observe(d.Seconds())
}
