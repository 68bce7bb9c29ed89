package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for credential issuance and revocation.
type Metrics struct {
	// Issued credentials by outcome ("issued", "duplicate", "not_eligible",
	// "signing_failed", "error")
	Issuance *prometheus.CounterVec

	// Revocations
	Revocations prometheus.Counter

	// HSM signing latency
	SignLatency prometheus.Histogram
}

// New creates and registers all credential metrics.
func New() *Metrics {
	return &Metrics{
		Issuance: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skillpass_credential_issuance_total",
			Help: "Credential issuance attempts by outcome",
		}, []string{"outcome"}),

		Revocations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skillpass_credential_revocations_total",
			Help: "Credentials revoked",
		}),

		SignLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "skillpass_credential_sign_duration_seconds",
			Help:    "Duration of HSM signing calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncIssuance records an issuance attempt outcome.
func (m *Metrics) IncIssuance(outcome string) {
	if m != nil {
		m.Issuance.WithLabelValues(outcome).Inc()
	}
}

// IncRevocation records a successful revocation.
func (m *Metrics) IncRevocation() {
	if m != nil {
		m.Revocations.Inc()
	}
}

// ObserveSignLatency records one HSM signing round trip.
func (m *Metrics) ObserveSignLatency(d time.Duration) {
	if m != nil {
		m.SignLatency.Observe(d.Seconds())
	}
}
