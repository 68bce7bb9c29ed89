package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity pipeline.
type Metrics struct {
	// Outcomes by terminal stage ("verified", or the failing stage name)
	Outcomes *prometheus.CounterVec

	// Degraded successes (registry unreachable)
	DegradedVerifications prometheus.Counter

	// Full pipeline latency
	VerifyLatency prometheus.Histogram
}

// New creates and registers all identity pipeline metrics.
func New() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skillpass_identity_verifications_total",
			Help: "Verification attempts by outcome stage",
		}, []string{"outcome"}),

		DegradedVerifications: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skillpass_identity_degraded_verifications_total",
			Help: "Verifications that succeeded without a reachable civil registry",
		}),

		VerifyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "skillpass_identity_verify_duration_seconds",
			Help:    "Duration of the full verification pipeline",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// IncOutcome records a terminal pipeline outcome.
func (m *Metrics) IncOutcome(outcome string) {
	if m != nil {
		m.Outcomes.WithLabelValues(outcome).Inc()
	}
}

// IncDegraded records a degraded success.
func (m *Metrics) IncDegraded() {
	if m != nil {
		m.DegradedVerifications.Inc()
	}
}

// ObserveVerifyLatency records the total pipeline duration.
func (m *Metrics) ObserveVerifyLatency(d time.Duration) {
	if m != nil {
		m.VerifyLatency.Observe(d.Seconds())
	}
}
