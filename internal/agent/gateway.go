// Package agent turns a role and an input into model-generated text.
//
// The Gateway never fails: provider errors and empty completions are
// replaced with fixed placeholder text, and the caller treats whatever comes
// back as ordinary content.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/hlabs/openclaw/internal/agent"

// EmptyResponseText replaces a completion with no text.
const EmptyResponseText = "I apologize, I could not generate a response."

// ErrorText returns the placeholder used when role's call fails.
func ErrorText(role Role) string {
	return fmt.Sprintf("[System Error]: Failed to contact %s agent. Check the API key or network connection.", role)
}

// Gateway applies role profiles and calls the provider.
type Gateway struct {
	provider Provider
	profiles *ProfileSet
	logger   *zap.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

// NewGateway creates a gateway. profiles, logger and metrics may be nil.
func NewGateway(provider Provider, profiles *ProfileSet, logger *zap.Logger, metrics *Metrics) *Gateway {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		provider: provider,
		profiles: profiles,
		logger:   logger,
		metrics:  metrics,
		tracer:   otel.Tracer(instrumentationName),
	}
}

// Profiles returns the profile set used by the gateway.
func (g *Gateway) Profiles() *ProfileSet {
	return g.profiles
}

// Generate runs one stateless completion for role. When search is set the
// provider may ground the answer on the web and the citations are appended
// as a Sources list.
func (g *Gateway) Generate(ctx context.Context, role Role, input string, search bool) string {
	profile := g.profiles.Get(role)

	ctx, span := g.tracer.Start(ctx, "agent.generate", trace.WithAttributes(
		attribute.String("agent.role", string(role)),
		attribute.Bool("agent.search", search),
		attribute.String("agent.provider", g.provider.Name()),
	))
	defer span.End()

	start := time.Now()
	resp, err := g.provider.Complete(ctx, Request{
		System:      profile.Instruction,
		Input:       "Current Task/Input:\n" + input,
		Temperature: profile.Temperature,
		Search:      search,
	})
	g.metrics.observe(role, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		g.logger.Warn("agent call failed",
			zap.String("role", string(role)),
			zap.String("provider", g.provider.Name()),
			zap.Error(err),
		)
		return ErrorText(role)
	}

	text := resp.Text
	if strings.TrimSpace(text) == "" {
		text = EmptyResponseText
	}
	if search && len(resp.Sources) > 0 {
		text += "\n\n" + FormatSources(resp.Sources)
	}
	span.SetAttributes(attribute.Int("agent.sources", len(resp.Sources)))
	return text
}

// FormatSources renders citations as a Markdown list under a Sources label.
// Sources without a URI are skipped; a missing title becomes "Source".
func FormatSources(sources []Source) string {
	var b strings.Builder
	b.WriteString("**Sources:**")
	for _, s := range sources {
		if s.URI == "" {
			continue
		}
		title := s.Title
		if title == "" {
			title = "Source"
		}
		fmt.Fprintf(&b, "\n- [%s](%s)", title, s.URI)
	}
	return b.String()
}
