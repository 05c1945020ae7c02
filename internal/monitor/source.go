package monitor

import (
	"context"

	httpapi "github.com/hlabs/openclaw/internal/http"
)

// Source reads workflow state from a running daemon.
type Source interface {
	Status(ctx context.Context) (*httpapi.StatusResponse, error)
	Channels(ctx context.Context) (*httpapi.ChannelsResponse, error)
}
