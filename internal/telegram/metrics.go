package telegram

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts outbound messages. A nil *Metrics records nothing.
type Metrics struct {
	messages *prometheus.CounterVec
}

// NewMetrics registers the notifier collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openclaw",
			Subsystem: "notify",
			Name:      "messages_total",
			Help:      "Outbound Telegram messages by kind (broadcast, private) and outcome (ok, error).",
		}, []string{"kind", "outcome"}),
	}
	reg.MustRegister(m.messages)
	return m
}

func (m *Metrics) observe(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.messages.WithLabelValues(kind, outcome).Inc()
}
