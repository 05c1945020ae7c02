package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/hlabs/openclaw/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// openAIProvider completes through langchaingo's OpenAI-compatible client.
// Search is not available on this backend; requests with Search set are
// answered without sources.
type openAIProvider struct {
	llm llms.Model
}

// NewOpenAI creates an OpenAI-compatible provider. BaseURL may point at any
// compatible endpoint.
func NewOpenAI(cfg config.GatewayConfig) (Provider, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("openai: %w", ErrNoAPIKey)
	}
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey.Value()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return &openAIProvider{llm: llm}, nil
}

func (p *openAIProvider) Name() string { return "openai" }

func (p *openAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, req.Input))

	resp, err := p.llm.GenerateContent(ctx, messages, llms.WithTemperature(req.Temperature))
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("openai completion: no choices returned")
	}
	return &Response{Text: resp.Choices[0].Content}, nil
}
