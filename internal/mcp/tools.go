package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/hlabs/openclaw/internal/conversation"
	"github.com/hlabs/openclaw/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const defaultWaitTimeout = 10 * time.Minute

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "submit_task",
		Description: "Submit a task to the agent workflow. The director plans it, an executor drafts it, " +
			"an auditor reviews it (up to three attempts) and the creator packages the result. " +
			"Fails when another task is in progress.",
	}, s.submitTask)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workflow_status",
		Description: "Report the workflow status and the active and most recent runs",
	}, s.workflowStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_channels",
		Description: "List the conversation channels with their message counts",
	}, s.listChannels)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_messages",
		Description: "Read one conversation channel, oldest first",
	}, s.listMessages)
}

// ===== TYPES =====

type runView struct {
	ID         string          `json:"id" jsonschema:"Run ID"`
	Status     workflow.Status `json:"status" jsonschema:"Run status"`
	Category   string          `json:"category,omitempty" jsonschema:"Routed category: engineering or copy"`
	Attempts   int             `json:"attempts" jsonschema:"Rejected audits so far"`
	Audits     int             `json:"audits" jsonschema:"Audits performed"`
	Revisions  int             `json:"revisions" jsonschema:"Revision requests issued"`
	Approved   bool            `json:"approved" jsonschema:"Whether an audit approved the work"`
	Delivery   string          `json:"delivery,omitempty" jsonschema:"delivered, failed or empty when not attempted"`
	Final      string          `json:"final,omitempty" jsonschema:"Packaged deliverable"`
	StartedAt  string          `json:"started_at" jsonschema:"RFC 3339 start time"`
	FinishedAt string          `json:"finished_at,omitempty" jsonschema:"RFC 3339 finish time"`
}

func (s *Server) viewRun(snap *workflow.RunSnapshot) *runView {
	if snap == nil {
		return nil
	}
	v := &runView{
		ID:        snap.ID,
		Status:    snap.Status,
		Attempts:  snap.Attempts,
		Audits:    snap.Audits,
		Revisions: snap.Revisions,
		Approved:  snap.Approved,
		Final:     s.scrub(snap.Final),
		StartedAt: snap.StartedAt.Format(time.RFC3339),
	}
	if snap.Route != nil {
		v.Category = string(snap.Route.Category)
	}
	if snap.Delivered != nil {
		v.Delivery = "failed"
		if *snap.Delivered {
			v.Delivery = "delivered"
		}
	}
	if snap.FinishedAt != nil {
		v.FinishedAt = snap.FinishedAt.Format(time.RFC3339)
	}
	return v
}

// ===== SUBMIT =====

type submitTaskInput struct {
	Text        string `json:"text" jsonschema:"Task description"`
	SubmitterID string `json:"submitter_id,omitempty" jsonschema:"Chat user that receives the private delivery"`
	Wait        bool   `json:"wait,omitempty" jsonschema:"Block until the run finishes"`
	TimeoutSecs int    `json:"timeout_seconds,omitempty" jsonschema:"Wait limit in seconds (default 600)"`
}

type submitTaskOutput struct {
	RunID    string   `json:"run_id" jsonschema:"Run ID"`
	Finished bool     `json:"finished" jsonschema:"Whether the run reached a terminal status"`
	Run      *runView `json:"run,omitempty" jsonschema:"Run state when the call returned"`
}

func (s *Server) submitTask(ctx context.Context, _ *mcp.CallToolRequest, args submitTaskInput) (_ *mcp.CallToolResult, _ submitTaskOutput, err error) {
	done := s.metrics.track(ctx, "submit_task")
	defer func() { done(err) }()

	run, err := s.workflow.Submit(ctx, workflow.Task{
		Text:        args.Text,
		SubmitterID: args.SubmitterID,
		Source:      SourceName,
	})
	if err != nil {
		return nil, submitTaskOutput{}, fmt.Errorf("submit task: %w", err)
	}
	s.logger.Info("task submitted", zap.String("run.id", run.ID))

	out := submitTaskOutput{RunID: run.ID}
	if args.Wait {
		timeout := defaultWaitTimeout
		if args.TimeoutSecs > 0 {
			timeout = time.Duration(args.TimeoutSecs) * time.Second
		}
		select {
		case <-run.Done():
			out.Finished = true
		case <-time.After(timeout):
		case <-ctx.Done():
			return nil, submitTaskOutput{}, fmt.Errorf("wait for run %s: %w", run.ID, ctx.Err())
		}
	}
	snap := run.Snapshot()
	out.Run = s.viewRun(&snap)

	text := fmt.Sprintf("Task accepted: run %s", run.ID)
	if out.Finished {
		text = fmt.Sprintf("Run %s finished: %s", run.ID, snap.Status)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, out, nil
}

// ===== STATUS =====

type workflowStatusInput struct{}

type workflowStatusOutput struct {
	Status workflow.Status `json:"status" jsonschema:"Orchestrator status"`
	Busy   bool            `json:"busy" jsonschema:"Whether a run is in progress"`
	Active *runView        `json:"active,omitempty" jsonschema:"Run in progress"`
	Last   *runView        `json:"last,omitempty" jsonschema:"Most recently admitted run"`
}

func (s *Server) workflowStatus(ctx context.Context, _ *mcp.CallToolRequest, _ workflowStatusInput) (*mcp.CallToolResult, workflowStatusOutput, error) {
	done := s.metrics.track(ctx, "workflow_status")
	defer done(nil)

	out := workflowStatusOutput{
		Status: s.workflow.Status(),
		Busy:   s.workflow.Busy(),
		Active: s.viewRun(s.workflow.Active()),
		Last:   s.viewRun(s.workflow.Last()),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Workflow is %s", out.Status)}},
	}, out, nil
}

// ===== CHANNELS =====

type listChannelsInput struct{}

type channelView struct {
	ID          string `json:"id" jsonschema:"Channel ID"`
	Name        string `json:"name" jsonschema:"Display name"`
	Description string `json:"description" jsonschema:"What happens in the channel"`
	Owner       string `json:"owner" jsonschema:"Role that owns the channel"`
	Messages    int    `json:"messages" jsonschema:"Message count"`
}

type listChannelsOutput struct {
	Channels []channelView `json:"channels" jsonschema:"Channels in display order"`
}

func (s *Server) listChannels(ctx context.Context, _ *mcp.CallToolRequest, _ listChannelsInput) (*mcp.CallToolResult, listChannelsOutput, error) {
	done := s.metrics.track(ctx, "list_channels")
	defer done(nil)

	infos := conversation.Channels()
	out := listChannelsOutput{Channels: make([]channelView, len(infos))}
	for i, info := range infos {
		out.Channels[i] = channelView{
			ID:          string(info.ID),
			Name:        info.Name,
			Description: info.Description,
			Owner:       string(info.Owner),
			Messages:    s.messages.Len(info.ID),
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Found %d channels", len(out.Channels))}},
	}, out, nil
}

// ===== MESSAGES =====

type listMessagesInput struct {
	Channel string `json:"channel" jsonschema:"Channel ID, e.g. general or dev-log"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Return only the newest N messages"`
}

type messageView struct {
	ID         string `json:"id" jsonschema:"Message ID"`
	Role       string `json:"role" jsonschema:"Author role"`
	Content    string `json:"content" jsonschema:"Message text"`
	CreatedAt  string `json:"created_at" jsonschema:"RFC 3339 creation time"`
	InProgress bool   `json:"in_progress" jsonschema:"Whether the author is still working"`
}

type listMessagesOutput struct {
	Channel  string        `json:"channel" jsonschema:"Channel ID"`
	Messages []messageView `json:"messages" jsonschema:"Messages, oldest first"`
	Count    int           `json:"count" jsonschema:"Number of messages returned"`
}

func (s *Server) listMessages(ctx context.Context, _ *mcp.CallToolRequest, args listMessagesInput) (_ *mcp.CallToolResult, _ listMessagesOutput, err error) {
	done := s.metrics.track(ctx, "list_messages")
	defer func() { done(err) }()

	ch, err := conversation.ParseChannel(args.Channel)
	if err != nil {
		return nil, listMessagesOutput{}, err
	}
	if args.Limit < 0 {
		return nil, listMessagesOutput{}, fmt.Errorf("invalid limit %d", args.Limit)
	}

	msgs, err := s.messages.Messages(ch)
	if err != nil {
		return nil, listMessagesOutput{}, fmt.Errorf("read %s: %w", ch, err)
	}
	if args.Limit > 0 && args.Limit < len(msgs) {
		msgs = msgs[len(msgs)-args.Limit:]
	}

	out := listMessagesOutput{
		Channel:  string(ch),
		Messages: make([]messageView, len(msgs)),
		Count:    len(msgs),
	}
	for i, m := range msgs {
		out.Messages[i] = messageView{
			ID:         m.ID,
			Role:       string(m.Role),
			Content:    s.scrub(m.Content),
			CreatedAt:  m.CreatedAt.Format(time.RFC3339),
			InProgress: m.InProgress,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Found %d messages in %s", out.Count, ch)}},
	}, out, nil
}
