package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hlabs/openclaw/internal/config"
)

// Request is a single stateless completion request.
type Request struct {
	System      string
	Input       string
	Temperature float64
	Search      bool
}

// Source is a web citation returned by a search-grounded completion.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Response is a provider completion.
type Response struct {
	Text    string
	Sources []Source
}

// Provider performs completions against a model backend.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Name() string
}

const (
	defaultTimeout     = 120 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = time.Second
	defaultRateLimit   = 2.0
	defaultBurst       = 1
)

// ErrNoAPIKey is returned when a provider is built without credentials.
var ErrNoAPIKey = errors.New("api key required")

// NewProvider builds the provider selected by cfg.
func NewProvider(cfg config.GatewayConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "gemini":
		return NewGemini(cfg)
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// retryableError marks transport failures, 429s and 5xx responses.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
