// Package events connects the workflow to NATS: status transitions are
// published as JSON events and tasks can be submitted on a command subject.
//
// Transition events are published to:
//
//	{prefix}.{run_id}.{status}
//
// for example openclaw.workflow.6f1c....completed, so a consumer can follow
// one run with {prefix}.{run_id}.> or every outcome with {prefix}.*.failed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hlabs/openclaw/internal/workflow"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is used when the publisher is given no prefix.
const DefaultSubjectPrefix = "openclaw.workflow"

// EventTypeTransition tags transition events.
const EventTypeTransition = "workflow.transition"

// Event is the JSON payload of a transition event.
type Event struct {
	Type string `json:"type"`
	workflow.Transition
}

// Publisher is a workflow.Observer that publishes transitions to NATS.
// Publish failures are logged and never reach the workflow.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

// NewPublisher creates a publisher on nc.
func NewPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{nc: nc, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

// Subject returns the subject a transition into status is published on.
func Subject(prefix, runID string, status workflow.Status) string {
	return fmt.Sprintf("%s.%s.%s", prefix, runID, strings.ToLower(string(status)))
}

// OnTransition implements workflow.Observer.
func (p *Publisher) OnTransition(_ context.Context, t workflow.Transition) {
	data, err := json.Marshal(Event{Type: EventTypeTransition, Transition: t})
	if err != nil {
		p.logger.Error("marshal transition event", zap.Error(err))
		return
	}
	subject := Subject(p.prefix, t.RunID, t.To)
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn("publish transition event",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}

var _ workflow.Observer = (*Publisher)(nil)
