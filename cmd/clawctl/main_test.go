package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hlabs/openclaw/internal/agent"
	"github.com/hlabs/openclaw/internal/conversation"
	httpapi "github.com/hlabs/openclaw/internal/http"
	"github.com/hlabs/openclaw/internal/secrets"
	"github.com/hlabs/openclaw/internal/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// gatedGateway blocks the first generation until release is closed.
type gatedGateway struct {
	release chan struct{}
	once    sync.Once
}

func (g *gatedGateway) Generate(ctx context.Context, _ agent.Role, _ string, _ bool) string {
	g.once.Do(func() {
		select {
		case <-g.release:
		case <-ctx.Done():
		}
	})
	return "looks good"
}

type fixture struct {
	url     string
	orch    *workflow.Orchestrator
	gateway *gatedGateway
	checks  map[string]httpapi.HealthCheck
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := &gatedGateway{release: make(chan struct{})}
	store := conversation.NewStore()
	orch, err := workflow.New(workflow.Config{}, workflow.Deps{Gateway: gw, Store: store})
	require.NoError(t, err)

	f := &fixture{orch: orch, gateway: gw, checks: map[string]httpapi.HealthCheck{}}
	srv, err := httpapi.NewServer(orch, store, secrets.MustNew(nil), zap.NewNop(), &httpapi.Config{
		Version:  "test",
		Gatherer: prometheus.NewRegistry(),
		Checks:   f.checks,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		select {
		case <-gw.release:
		default:
			close(gw.release)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Wait(ctx)
		ts.Close()
	})
	f.url = ts.URL
	return f
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", f.url}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (f *fixture) finish(t *testing.T) {
	t.Helper()
	close(f.gateway.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.orch.Wait(ctx))
}

func TestSubmitAndStatus(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "submit", "--submitter", "42", "design", "a", "caching", "layer")
	require.NoError(t, err)
	assert.Contains(t, out, "Run:    ")
	assert.Contains(t, out, "Deliver to: 42")

	out, err = f.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Busy:   true")
	assert.Contains(t, out, "Active:")

	_, err = f.run(t, "submit", "another task")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "already in progress")

	f.finish(t)

	out, err = f.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: COMPLETED")
	assert.Contains(t, out, "Busy:   false")
	assert.Contains(t, out, "Last:")
	assert.Contains(t, out, "(audits 1, revisions 0)")

	out, err = f.run(t, "status", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "COMPLETED"`)
}

func TestSubmit_FromStdin(t *testing.T) {
	f := newFixture(t)
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("write a launch tweet thread\n"))
	cmd.SetArgs([]string{"--server", f.url, "submit", "-"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Run:")
	f.finish(t)
}

func TestSubmit_EmptyStdin(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("  \n"))
	cmd.SetArgs([]string{"--server", "http://127.0.0.1:1", "submit", "-"})
	assert.ErrorContains(t, cmd.Execute(), "no task text")
}

func TestChannelsAndMessages(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, "submit", "design a caching layer")
	require.NoError(t, err)
	f.finish(t)

	out, err := f.run(t, "channels")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "quality-control")
	assert.Contains(t, out, "final-output")

	out, err = f.run(t, "messages", "general")
	require.NoError(t, err)
	assert.Contains(t, out, "[user] design a caching layer")

	out, err = f.run(t, "messages", "general", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "[director]")
	assert.Contains(t, out, "Handing the task to the engineer")
	assert.NotContains(t, out, "[user]")

	_, err = f.run(t, "messages", "nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Server Status: ok")
	assert.Contains(t, out, "Version: test")
	assert.Contains(t, out, "Workflow: IDLE")

	f.checks["nats"] = func(context.Context) error { return errors.New("nats RECONNECTING") }
	out, err = f.run(t, "health")
	require.Error(t, err)
	assert.Contains(t, out, "Server Status: degraded")
	assert.Contains(t, out, "nats: nats RECONNECTING")
}

func TestHealth_Unreachable(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--server", "http://127.0.0.1:1", "--timeout", "1s", "health"})
	assert.ErrorContains(t, cmd.Execute(), "failed to send request")
}

func TestAPIClient_Source(t *testing.T) {
	f := newFixture(t)
	c := (&rootOptions{serverURL: f.url + "/", timeout: time.Second}).client()

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusIdle, status.Status)

	chans, err := c.Channels(context.Background())
	require.NoError(t, err)
	require.Len(t, chans.Channels, len(conversation.Channels()))
	assert.Equal(t, 1, chans.Channels[0].Messages, "welcome message")
}

func TestRootCmd_Subcommands(t *testing.T) {
	var names []string
	for _, c := range newRootCmd().Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"submit", "status", "channels", "messages", "health", "watch"} {
		assert.Contains(t, names, want)
	}
}
