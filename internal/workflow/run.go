package workflow

import (
	"sync"
	"sync/atomic"
	"time"
)

// Run is the execution context of one admitted task. Its mutable fields are
// written only by the orchestrator goroutine executing it; readers use
// Snapshot.
type Run struct {
	ID        string
	Task      Task
	Recipient string
	StartedAt time.Time

	mu         sync.RWMutex
	status     Status
	history    []Status
	route      Route
	routed     bool
	plan       string
	solution   string
	final      string
	attempts   int
	audits     int
	revisions  int
	approved   bool
	delivered  *bool
	finishedAt time.Time

	// started is set by the first Execute; later calls return at once.
	started atomic.Bool
	done    chan struct{}
}

func newRun(id string, task Task, recipient string, now time.Time) *Run {
	return &Run{
		ID:        id,
		Task:      task,
		Recipient: recipient,
		StartedAt: now,
		status:    StatusIdle,
		history:   []Status{StatusIdle},
		done:      make(chan struct{}),
	}
}

// Done is closed when the run reaches a terminal status.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Status returns the run's current status.
func (r *Run) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Run) update(fn func(r *Run)) {
	r.mu.Lock()
	fn(r)
	r.mu.Unlock()
}

// RunSnapshot is a point-in-time copy of a Run.
type RunSnapshot struct {
	ID              string     `json:"id"`
	Task            Task       `json:"task"`
	Status          Status     `json:"status"`
	History         []Status   `json:"history"`
	Route           *Route     `json:"route,omitempty"`
	Plan            string     `json:"plan,omitempty"`
	CurrentSolution string     `json:"current_solution,omitempty"`
	Final           string     `json:"final,omitempty"`
	Attempts        int        `json:"attempts"`
	Audits          int        `json:"audits"`
	Revisions       int        `json:"revisions"`
	Approved        bool       `json:"approved"`
	Recipient       string     `json:"recipient,omitempty"`
	Delivered       *bool      `json:"delivered,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// Snapshot copies the run state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := RunSnapshot{
		ID:              r.ID,
		Task:            r.Task,
		Status:          r.status,
		History:         append([]Status(nil), r.history...),
		Plan:            r.plan,
		CurrentSolution: r.solution,
		Final:           r.final,
		Attempts:        r.attempts,
		Audits:          r.audits,
		Revisions:       r.revisions,
		Approved:        r.approved,
		Recipient:       r.Recipient,
		StartedAt:       r.StartedAt,
	}
	if r.routed {
		route := r.route
		s.Route = &route
	}
	if r.delivered != nil {
		d := *r.delivered
		s.Delivered = &d
	}
	if !r.finishedAt.IsZero() {
		f := r.finishedAt
		s.FinishedAt = &f
	}
	return s
}
