package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a prometheus Observer for workflow runs. It also counts audits
// and revisions, which the orchestrator reports directly. A nil *Metrics
// records nothing.
type Metrics struct {
	runs      *prometheus.CounterVec
	audits    *prometheus.CounterVec
	revisions prometheus.Counter
	duration  prometheus.Histogram
	active    prometheus.Gauge

	mu      sync.Mutex
	started map[string]time.Time
}

// NewMetrics registers the workflow collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openclaw",
			Subsystem: "workflow",
			Name:      "runs_total",
			Help:      "Finished workflow runs by outcome (completed, failed) and category.",
		}, []string{"outcome", "category"}),
		audits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openclaw",
			Subsystem: "workflow",
			Name:      "audits_total",
			Help:      "Audit verdicts.",
		}, []string{"verdict"}),
		revisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openclaw",
			Subsystem: "workflow",
			Name:      "revisions_total",
			Help:      "Revision requests sent to executors.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "openclaw",
			Subsystem: "workflow",
			Name:      "run_duration_seconds",
			Help:      "Wall time from planning to a terminal status.",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 9),
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "openclaw",
			Subsystem: "workflow",
			Name:      "active_runs",
			Help:      "Runs between planning and a terminal status (0 or 1).",
		}),
		started: make(map[string]time.Time),
	}
	reg.MustRegister(m.runs, m.audits, m.revisions, m.duration, m.active)
	return m
}

// OnTransition implements Observer.
func (m *Metrics) OnTransition(_ context.Context, t Transition) {
	if m == nil {
		return
	}
	switch {
	case t.To == StatusPlanning:
		m.mu.Lock()
		m.started[t.RunID] = t.At
		m.mu.Unlock()
		m.active.Inc()
	case t.To.Terminal():
		m.mu.Lock()
		start, ok := m.started[t.RunID]
		delete(m.started, t.RunID)
		m.mu.Unlock()
		if ok {
			m.active.Dec()
			m.duration.Observe(t.At.Sub(start).Seconds())
		}
		outcome := "completed"
		if t.To == StatusFailed {
			outcome = "failed"
		}
		m.runs.WithLabelValues(outcome, string(t.Category)).Inc()
	}
}

func (m *Metrics) observeAudit(v Verdict) {
	if m == nil {
		return
	}
	m.audits.WithLabelValues(string(v)).Inc()
}

func (m *Metrics) observeRevision() {
	if m == nil {
		return
	}
	m.revisions.Inc()
}
