package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hlabs/openclaw/internal/workflow"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SourceName tags commands read from NATS.
const SourceName = "nats"

const defaultPollWait = 500 * time.Millisecond

// CommandPayload is the JSON form of a task command. A message that is not
// a JSON object is taken as the task text.
type CommandPayload struct {
	Text        string `json:"text"`
	SubmitterID string `json:"submitter_id,omitempty"`
}

// CommandSource is a workflow.CommandSource backed by a synchronous NATS
// subscription.
type CommandSource struct {
	sub    *nats.Subscription
	wait   time.Duration
	logger *zap.Logger
}

// NewCommandSource subscribes to subject. wait bounds each Poll.
func NewCommandSource(nc *nats.Conn, subject string, wait time.Duration, logger *zap.Logger) (*CommandSource, error) {
	sub, err := nc.SubscribeSync(subject)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	if wait <= 0 {
		wait = defaultPollWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandSource{sub: sub, wait: wait, logger: logger}, nil
}

// Poll returns the oldest pending command and discards the rest of the
// backlog, matching the one-command-per-tick contract.
func (s *CommandSource) Poll(ctx context.Context) (*workflow.Command, error) {
	ctx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()

	msg, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
			return nil, nil
		}
		return nil, fmt.Errorf("next command: %w", err)
	}

	for {
		extra, err := s.sub.NextMsg(time.Millisecond)
		if err != nil {
			break
		}
		s.logger.Debug("ignored: command already taken from backlog", zap.Int("bytes", len(extra.Data)))
	}

	cmd := parseCommand(msg.Data)
	if cmd.Text == "" {
		return nil, nil
	}
	return cmd, nil
}

// Close unsubscribes.
func (s *CommandSource) Close() error {
	return s.sub.Unsubscribe()
}

func parseCommand(data []byte) *workflow.Command {
	var p CommandPayload
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal(data, &p) == nil {
		return &workflow.Command{Text: strings.TrimSpace(p.Text), SubmitterID: p.SubmitterID, Source: SourceName}
	}
	return &workflow.Command{Text: trimmed, Source: SourceName}
}

var _ workflow.CommandSource = (*CommandSource)(nil)
