package workflow

import (
	"context"
	"testing"

	"github.com/hlabs/openclaw/internal/conversation"
	"github.com/hlabs/openclaw/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrchestrator_Spans(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	gen := newStubGateway(planA, approveOn(2))
	o, err := New(Config{MaxRetries: 3}, Deps{
		Gateway:  gen,
		Notifier: &stubNotifier{deliverOK: true},
		Store:    conversation.NewStore(),
		Tracer:   tt.Tracer("test"),
	})
	require.NoError(t, err)

	run, err := o.RunTask(context.Background(), Task{Text: "design a caching layer", SubmitterID: "42"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, run.Status())

	assert.Equal(t, 1, tt.SpanCount("workflow.run"))
	assert.Equal(t, 1, tt.SpanCount("workflow.plan"))
	assert.Equal(t, 1, tt.SpanCount("workflow.execute"))
	assert.Equal(t, 2, tt.SpanCount("workflow.audit"))
	assert.Equal(t, 1, tt.SpanCount("workflow.revise"))
	assert.Equal(t, 1, tt.SpanCount("workflow.finalize"))
	assert.Equal(t, 1, tt.SpanCount("workflow.deliver"))

	tt.AssertSpanAttribute(t, "workflow.run", "run.id", run.ID)
	tt.AssertSpanAttribute(t, "workflow.run", "run.category", string(CategoryEngineering))
	tt.AssertSpanAttribute(t, "workflow.plan", "agent.role", "director")
	tt.AssertSpanAttribute(t, "workflow.deliver", "delivery.ok", true)

	root := tt.SpanByName("workflow.run")
	for _, s := range tt.Spans() {
		if s.Name() != "workflow.run" {
			assert.Equal(t, root.SpanContext().TraceID(), s.SpanContext().TraceID(), s.Name())
		}
	}
}
