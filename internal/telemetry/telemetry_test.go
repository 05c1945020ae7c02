package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hlabs/openclaw/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNew_DisabledTelemetry(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.Enabled())
	assert.NoError(t, tel.Check(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := &Config{Enabled: true}

	tel, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNew_EnabledLocalCollector(t *testing.T) {
	// Exporters connect lazily, so no collector is needed.
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	tel, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.True(t, tel.Enabled())
	assert.NotNil(t, tel.tracerProvider)
	assert.NotNil(t, tel.meterProvider)
	assert.NoError(t, tel.Check(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = tel.Shutdown(ctx)
	assert.False(t, tel.Enabled())
	assert.EqualError(t, tel.Check(context.Background()), "telemetry stopped")
}

func TestCheck_Degraded(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), nil)
	require.NoError(t, err)

	tel.markDegraded("meter", errors.New("dial failed"))
	err = tel.Check(context.Background())
	require.ErrorIs(t, err, ErrDegraded)
	assert.Contains(t, err.Error(), "meter")
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.Enabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})
	assert.ErrorIs(t, tel.Check(context.Background()), ErrDegraded)
}

func TestTelemetry_ShutdownDisabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Shutdown.Timeout = config.Duration(100 * time.Millisecond)

	tel, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	require.NoError(t, tel.ForceFlush(context.Background()))
	require.NoError(t, tel.Shutdown(context.Background()))
	// Disabled telemetry has nothing to report after shutdown.
	assert.NoError(t, tel.Check(context.Background()))
}

func TestTestTelemetry_Spans(t *testing.T) {
	tt := NewTestTelemetry()
	tracer := tt.Tracer("test")

	_, run := tracer.Start(context.Background(), "workflow.run")
	for i := 1; i <= 2; i++ {
		_, audit := tracer.Start(context.Background(), "workflow.audit")
		audit.SetAttributes(
			attribute.Int64("attempt", int64(i)),
			attribute.String("verdict", "rejected"),
			attribute.Bool("search", false),
			attribute.Float64("temperature", 0.2),
		)
		audit.End()
	}
	run.End()

	assert.Equal(t, []string{"workflow.audit", "workflow.audit", "workflow.run"}, tt.SpanNames())
	assert.Equal(t, 2, tt.SpanCount("workflow.audit"))
	assert.Nil(t, tt.SpanByName("workflow.deliver"))
	tt.AssertSpanExists(t, "workflow.run")
	tt.AssertSpanAttribute(t, "workflow.audit", "attempt", int64(1))
	tt.AssertSpanAttribute(t, "workflow.audit", "verdict", "rejected")
	tt.AssertSpanAttribute(t, "workflow.audit", "search", false)
	tt.AssertSpanAttribute(t, "workflow.audit", "temperature", 0.2)
}

func TestTestTelemetry_Metrics(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	assert.False(t, tt.HasMetric(ctx, "openclaw.tasks"))

	counter, err := tt.Meter("test").Int64Counter("openclaw.tasks")
	require.NoError(t, err)
	counter.Add(ctx, 1)

	assert.True(t, tt.HasMetric(ctx, "openclaw.tasks"))
	require.NoError(t, tt.ForceFlush(ctx))
	require.NoError(t, tt.Shutdown(ctx))
	assert.False(t, tt.Enabled())
}
