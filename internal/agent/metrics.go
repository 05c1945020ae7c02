package agent

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records per-role model call counts and latency. A nil *Metrics
// records nothing.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the agent collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openclaw",
			Subsystem: "agent",
			Name:      "calls_total",
			Help:      "Model calls by role and outcome (ok, error).",
		}, []string{"role", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "openclaw",
			Subsystem: "agent",
			Name:      "call_duration_seconds",
			Help:      "Model call latency by role.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"role"}),
	}
	reg.MustRegister(m.calls, m.duration)
	return m
}

func (m *Metrics) observe(role Role, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(string(role), outcome).Inc()
	m.duration.WithLabelValues(string(role)).Observe(d.Seconds())
}
