package http

import (
	"github.com/hlabs/openclaw/internal/conversation"
	"github.com/hlabs/openclaw/internal/workflow"
)

// SubmitRequest is the request body for POST /api/v1/tasks.
type SubmitRequest struct {
	Text        string `json:"text"`
	SubmitterID string `json:"submitter_id,omitempty"`
}

// SubmitResponse is the response body for an accepted task.
type SubmitResponse struct {
	RunID     string          `json:"run_id"`
	Status    workflow.Status `json:"status"`
	Recipient string          `json:"recipient,omitempty"`
}

// ErrorResponse is returned with 4xx/5xx statuses.
type ErrorResponse struct {
	Message string          `json:"message"`
	Status  workflow.Status `json:"status,omitempty"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status workflow.Status       `json:"status"`
	Busy   bool                  `json:"busy"`
	Active *workflow.RunSnapshot `json:"active,omitempty"`
	Last   *workflow.RunSnapshot `json:"last,omitempty"`
}

// ChannelsResponse is the response body for GET /api/v1/channels.
type ChannelsResponse struct {
	Channels []ChannelSummary `json:"channels"`
}

// ChannelSummary is one channel with its message count.
type ChannelSummary struct {
	conversation.ChannelInfo
	Messages int `json:"messages"`
}

// MessagesResponse is the response body for GET /api/v1/channels/:id/messages.
type MessagesResponse struct {
	Channel  conversation.Channel   `json:"channel"`
	Messages []conversation.Message `json:"messages"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Workflow workflow.Status   `json:"workflow"`
	Checks   map[string]string `json:"checks,omitempty"`
}
