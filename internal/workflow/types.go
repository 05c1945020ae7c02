// Package workflow coordinates one task at a time through planning,
// execution, a bounded audit-and-revise loop, packaging and private
// delivery.
//
// The Orchestrator owns the single active Run. Collaborator failures never
// surface as errors: the agent gateway returns placeholder text and the
// notifier reports delivery as a boolean, so every admitted run reaches
// COMPLETED or FAILED.
package workflow

import (
	"errors"
	"time"

	"github.com/hlabs/openclaw/internal/agent"
	"github.com/hlabs/openclaw/internal/conversation"
)

var (
	// ErrBusy is returned when a task arrives while another run is active.
	ErrBusy = errors.New("workflow busy")
	// ErrEmptyTask is returned for a task with no text.
	ErrEmptyTask = errors.New("empty task")
)

// Status is the orchestrator state.
type Status string

const (
	StatusIdle       Status = "IDLE"
	StatusPlanning   Status = "PLANNING"
	StatusExecuting  Status = "EXECUTING"
	StatusAuditing   Status = "AUDITING"
	StatusFinalizing Status = "FINALIZING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AcceptsTasks reports whether a new task may be admitted in s.
func (s Status) AcceptsTasks() bool {
	return s == StatusIdle || s.Terminal()
}

// Category is the routing decision taken from the plan.
type Category string

const (
	// CategoryEngineering is category A and the default.
	CategoryEngineering Category = "engineering"
	// CategoryCopy is category B.
	CategoryCopy Category = "copy"
)

// Route is the executor and auditor pairing bound to a category.
type Route struct {
	Category        Category             `json:"category"`
	Executor        agent.Role           `json:"executor"`
	ExecutorChannel conversation.Channel `json:"executor_channel"`
	Auditor         agent.Role           `json:"auditor"`
	AuditorChannel  conversation.Channel `json:"auditor_channel"`
	// Search grants the executor web search.
	Search bool `json:"search"`
}

// RouteFor returns the pairing for c. Unknown categories get category A.
func RouteFor(c Category) Route {
	if c == CategoryCopy {
		return Route{
			Category:        CategoryCopy,
			Executor:        agent.RoleCopywriter,
			ExecutorChannel: conversation.CopyBoard,
			Auditor:         agent.RoleGrowthLead,
			AuditorChannel:  conversation.GrowthReview,
			Search:          true,
		}
	}
	return Route{
		Category:        CategoryEngineering,
		Executor:        agent.RoleEngineer,
		ExecutorChannel: conversation.DevLog,
		Auditor:         agent.RoleCritic,
		AuditorChannel:  conversation.QualityControl,
	}
}

// Task is one submitted instruction.
type Task struct {
	Text string `json:"text"`
	// SubmitterID receives the private delivery. Empty falls back to the
	// configured default recipient.
	SubmitterID string    `json:"submitter_id,omitempty"`
	Source      string    `json:"source,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Command is a task read from an inbound source.
type Command struct {
	Text        string
	SubmitterID string
	Source      string
}

// Task converts the command into a Task stamped with now.
func (c Command) Task(now time.Time) Task {
	return Task{Text: c.Text, SubmitterID: c.SubmitterID, Source: c.Source, SubmittedAt: now}
}

// Transition describes one committed status change.
type Transition struct {
	RunID    string    `json:"run_id"`
	From     Status    `json:"from"`
	To       Status    `json:"to"`
	Category Category  `json:"category,omitempty"`
	Attempt  int       `json:"attempt"`
	At       time.Time `json:"at"`
}
