package branching

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Retry outcome labels
const (
	outcomeCreated   = "created"
	outcomeLimit     = "limit_exceeded"
	outcomeNotFound  = "not_found"
	outcomeTransient = "transient"
	outcomeError     = "error"
)

// Metrics holds the retry path's prometheus collectors
type Metrics struct {
	retries   *prometheus.CounterVec
	conflicts prometheus.Counter
	forks     prometheus.Counter
	duration  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil registerer leaves them unregistered (useful in tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "variantree",
			Name:      "retries_total",
			Help:      "Retry operations by outcome.",
		}, []string{"outcome"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "variantree",
			Name:      "sequence_conflicts_total",
			Help:      "Conditional variant inserts that lost a race and were re-derived.",
		}),
		forks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "variantree",
			Name:      "branch_forks_total",
			Help:      "Conversation branches minted by retries off the main timeline.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "variantree",
			Name:      "retry_duration_seconds",
			Help:      "Wall time of a retry including storage round trips.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.retries, m.conflicts, m.forks, m.duration)
	}
	return m
}

func (m *Metrics) observeRetry(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(outcome).Inc()
	m.duration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *Metrics) fork() {
	if m == nil {
		return
	}
	m.forks.Inc()
}
