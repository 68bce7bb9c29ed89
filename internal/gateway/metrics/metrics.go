package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts public lookups. The gateway is the only unauthenticated
// surface, so lookup volume and miss rate are the load signals worth watching.
type Metrics struct {
	// Lookups by outcome ("hit", "miss", "error") and credential status on hit
	Lookups *prometheus.CounterVec
}

// New creates and registers all gateway metrics.
func New() *Metrics {
	return &Metrics{
		Lookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skillpass_gateway_lookups_total",
			Help: "Public credential lookups by outcome",
		}, []string{"outcome"}),
	}
}

// IncLookup records one lookup outcome.
func (m *Metrics) IncLookup(outcome string) {
	if m != nil {
		m.Lookups.WithLabelValues(outcome).Inc()
	}
}
