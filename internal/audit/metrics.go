package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the health of the audit trail. Write failures are the alert
// signal that replaces per-call error propagation.
type Metrics struct {
	Recorded      *prometheus.CounterVec
	WriteFailures *prometheus.CounterVec
	RelayLag      prometheus.Gauge
}

// NewMetrics creates and registers all audit metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Recorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skillpass_audit_recorded_total",
			Help: "Audit entries successfully appended, by action",
		}, []string{"action"}),
		WriteFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skillpass_audit_write_failures_total",
			Help: "Audit entries dropped because the store rejected the append, by action",
		}, []string{"action"}),
		RelayLag: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "skillpass_audit_relay_outbox_pending",
			Help: "Outbox rows waiting to be published to Kafka",
		}),
	}
}

// IncRecorded counts a successful append.
func (m *Metrics) IncRecorded(action string) {
	if m != nil {
		m.Recorded.WithLabelValues(action).Inc()
	}
}

// IncWriteFailure counts a dropped entry.
func (m *Metrics) IncWriteFailure(action string) {
	if m != nil {
		m.WriteFailures.WithLabelValues(action).Inc()
	}
}

// SetRelayLag records the current outbox backlog.
func (m *Metrics) SetRelayLag(pending int) {
	if m != nil {
		m.RelayLag.Set(float64(pending))
	}
}
