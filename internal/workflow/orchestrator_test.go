package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hlabs/openclaw/internal/agent"
	"github.com/hlabs/openclaw/internal/config"
	"github.com/hlabs/openclaw/internal/conversation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	planA   = "1. Define cache keys\n2. Pick eviction\n[ROUTE: ENGINEER]"
	planB   = "Angle: build in public\n[ROUTE: COPYWRITER]"
	approve = "通过 ✅\nShip it."
	reject  = "不通过 ❌\n1. Fix the obvious issue."
)

type genCall struct {
	Role   agent.Role
	Input  string
	Search bool
}

// stubGateway records calls and answers per role. reply receives the
// 1-based call count for the role.
type stubGateway struct {
	mu    sync.Mutex
	calls []genCall
	reply map[agent.Role]func(n int) string

	// When set, the director call signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func newStubGateway(plan string, audit func(n int) string) *stubGateway {
	return &stubGateway{reply: map[agent.Role]func(int) string{
		agent.RoleDirector:   always(plan),
		agent.RoleCritic:     audit,
		agent.RoleGrowthLead: audit,
		agent.RoleEngineer:   drafts("engineer"),
		agent.RoleCopywriter: drafts("copy"),
		agent.RoleCreator:    always("final package"),
	}}
}

func (g *stubGateway) Generate(_ context.Context, role agent.Role, input string, search bool) string {
	g.mu.Lock()
	g.calls = append(g.calls, genCall{Role: role, Input: input, Search: search})
	n := 0
	for _, c := range g.calls {
		if c.Role == role {
			n++
		}
	}
	fn := g.reply[role]
	g.mu.Unlock()

	if role == agent.RoleDirector && g.entered != nil {
		g.entered <- struct{}{}
		<-g.release
	}
	if fn == nil {
		return ""
	}
	return fn(n)
}

func (g *stubGateway) callsFor(role agent.Role) []genCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []genCall
	for _, c := range g.calls {
		if c.Role == role {
			out = append(out, c)
		}
	}
	return out
}

type broadcast struct {
	Channel conversation.Channel
	Role    agent.Role
	Text    string
}

type stubNotifier struct {
	mu         sync.Mutex
	broadcasts []broadcast
	deliveries []string
	deliverOK  bool
}

func (n *stubNotifier) Broadcast(_ context.Context, ch conversation.Channel, role agent.Role, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts = append(n.broadcasts, broadcast{ch, role, text})
}

func (n *stubNotifier) DeliverPrivate(_ context.Context, _ string, recipient string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, recipient)
	return n.deliverOK
}

func always(s string) func(int) string { return func(int) string { return s } }

func drafts(prefix string) func(int) string {
	return func(n int) string { return fmt.Sprintf("%s draft v%d", prefix, n) }
}

func approveOn(k int) func(int) string {
	return func(n int) string {
		if n >= k {
			return approve
		}
		return reject
	}
}

func newTestOrchestrator(t *testing.T, gen Generator, n Notifier, cfg Config, observers ...Observer) (*Orchestrator, *conversation.Store) {
	t.Helper()
	store := conversation.NewStore()
	o, err := New(cfg, Deps{Gateway: gen, Notifier: n, Store: store, Observers: observers})
	require.NoError(t, err)
	return o, store
}

func lastMessage(t *testing.T, store *conversation.Store, ch conversation.Channel) conversation.Message {
	t.Helper()
	msgs, err := store.Messages(ch)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func TestOrchestrator_AlwaysRejectFails(t *testing.T) {
	gen := newStubGateway(planA, always(reject))
	notifier := &stubNotifier{deliverOK: true}
	o, store := newTestOrchestrator(t, gen, notifier, Config{FallbackRecipient: "42"})

	run, err := o.RunTask(context.Background(), Task{Text: "design a caching layer"})
	require.NoError(t, err)

	snap := run.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, StatusFailed, o.Status())
	assert.Len(t, gen.callsFor(agent.RoleCritic), 3, "three audits")
	assert.Len(t, gen.callsFor(agent.RoleEngineer), 3, "initial execution plus two revisions")
	assert.Equal(t, 3, snap.Audits)
	assert.Equal(t, 2, snap.Revisions)
	assert.Equal(t, 3, snap.Attempts)
	assert.False(t, snap.Approved)
	assert.Empty(t, gen.callsFor(agent.RoleCreator))
	assert.Empty(t, notifier.deliveries)
	assert.Nil(t, snap.Delivered)

	fail := lastMessage(t, store, conversation.QualityControl)
	assert.Contains(t, fail.Content, "After 3 attempts")
	assert.Equal(t, agent.RoleCritic, fail.Role)
	assert.Equal(t, 0, store.Len(conversation.FinalOutput))

	assert.Equal(t, []Status{
		StatusIdle, StatusPlanning, StatusExecuting,
		StatusAuditing, StatusExecuting,
		StatusAuditing, StatusExecuting,
		StatusAuditing, StatusFailed,
	}, snap.History)
}

func TestOrchestrator_ApproveOnNthAttempt(t *testing.T) {
	for k := 1; k <= 3; k++ {
		t.Run(fmt.Sprintf("approve on %d", k), func(t *testing.T) {
			gen := newStubGateway(planA, approveOn(k))
			o, _ := newTestOrchestrator(t, gen, &stubNotifier{deliverOK: true}, Config{})

			run, err := o.RunTask(context.Background(), Task{Text: "task", SubmitterID: "7"})
			require.NoError(t, err)

			snap := run.Snapshot()
			assert.Equal(t, StatusCompleted, snap.Status)
			assert.Len(t, gen.callsFor(agent.RoleCritic), k)
			assert.Equal(t, k-1, snap.Revisions)
			assert.Len(t, gen.callsFor(agent.RoleEngineer), k)
			assert.Len(t, gen.callsFor(agent.RoleCreator), 1)
		})
	}
}

func TestOrchestrator_RevisionCarriesFeedback(t *testing.T) {
	gen := newStubGateway(planB, approveOn(2))
	o, store := newTestOrchestrator(t, gen, &stubNotifier{}, Config{})

	_, err := o.RunTask(context.Background(), Task{Text: "write a launch tweet thread"})
	require.NoError(t, err)

	calls := gen.callsFor(agent.RoleCopywriter)
	require.Len(t, calls, 2)
	assert.Equal(t, planB, calls[0].Input)
	assert.Contains(t, calls[1].Input, reject)
	assert.Contains(t, calls[1].Input, "Google Search")
	assert.True(t, calls[1].Search)

	audits := gen.callsFor(agent.RoleGrowthLead)
	require.Len(t, audits, 2)
	assert.Equal(t, "copy draft v1", audits[0].Input)
	assert.Equal(t, "copy draft v2", audits[1].Input)
	assert.Equal(t, "copy draft v2", gen.callsFor(agent.RoleCreator)[0].Input)

	msgs, err := store.Messages(conversation.CopyBoard)
	require.NoError(t, err)
	var requests []string
	for _, m := range msgs {
		if strings.Contains(m.Content, "review") {
			requests = append(requests, m.Content)
		}
	}
	require.Len(t, requests, 2)
	assert.Contains(t, requests[0], "Requesting review")
	assert.Contains(t, requests[1], "Revised (v2)")

	growth, err := store.Messages(conversation.GrowthReview)
	require.NoError(t, err)
	var notices int
	for _, m := range growth {
		if strings.Contains(m.Content, "attempt 1/3") {
			notices++
		}
	}
	assert.Equal(t, 1, notices)
}

func TestOrchestrator_ScenarioEngineering(t *testing.T) {
	gen := newStubGateway(planA, always(approve))
	notifier := &stubNotifier{deliverOK: true}
	o, store := newTestOrchestrator(t, gen, notifier, Config{FallbackRecipient: "1001"})

	run, err := o.RunTask(context.Background(), Task{Text: "design a caching layer"})
	require.NoError(t, err)

	snap := run.Snapshot()
	assert.Equal(t, []Status{
		StatusIdle, StatusPlanning, StatusExecuting, StatusAuditing, StatusFinalizing, StatusCompleted,
	}, snap.History)
	require.NotNil(t, snap.Route)
	assert.Equal(t, CategoryEngineering, snap.Route.Category)

	assert.Len(t, gen.callsFor(agent.RoleDirector), 1)
	assert.Len(t, gen.callsFor(agent.RoleEngineer), 1)
	assert.Len(t, gen.callsFor(agent.RoleCritic), 1)
	assert.Len(t, gen.callsFor(agent.RoleCreator), 1)
	assert.Empty(t, gen.callsFor(agent.RoleCopywriter))
	assert.Empty(t, gen.callsFor(agent.RoleGrowthLead))
	assert.False(t, gen.callsFor(agent.RoleEngineer)[0].Search)

	assert.Equal(t, "design a caching layer", gen.callsFor(agent.RoleDirector)[0].Input)
	assert.Equal(t, planA, gen.callsFor(agent.RoleEngineer)[0].Input)

	general, err := store.Messages(conversation.General)
	require.NoError(t, err)
	require.Len(t, general, 4, "welcome, task, plan, handoff")
	assert.Equal(t, agent.RoleUser, general[1].Role)
	assert.Equal(t, planA, general[2].Content)
	assert.False(t, general[2].InProgress)
	assert.Contains(t, general[3].Content, "#dev-log")

	assert.Equal(t, "final package", snap.Final)
	assert.Equal(t, []string{"1001"}, notifier.deliveries)
	require.NotNil(t, snap.Delivered)
	assert.True(t, *snap.Delivered)
	assert.Contains(t, lastMessage(t, store, conversation.FinalOutput).Content, "Delivered")
	assert.Contains(t, lastMessage(t, store, conversation.FinalOutput).Content, "1001")
	assert.Contains(t, lastMessage(t, store, conversation.QualityControl).Content, "Review passed")

	assert.Nil(t, o.Active())
	assert.Equal(t, run.ID, o.Last().ID)
}

func TestOrchestrator_ScenarioCopy(t *testing.T) {
	gen := newStubGateway(planB, always(approve))
	notifier := &stubNotifier{deliverOK: true}
	o, store := newTestOrchestrator(t, gen, notifier, Config{FallbackRecipient: "1001"})

	run, err := o.RunTask(context.Background(), Task{Text: "write a launch tweet thread", SubmitterID: "555"})
	require.NoError(t, err)

	snap := run.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	require.NotNil(t, snap.Route)
	assert.Equal(t, CategoryCopy, snap.Route.Category)

	exec := gen.callsFor(agent.RoleCopywriter)
	require.Len(t, exec, 1)
	assert.True(t, exec[0].Search)
	assert.Len(t, gen.callsFor(agent.RoleGrowthLead), 1)
	assert.False(t, gen.callsFor(agent.RoleGrowthLead)[0].Search)
	assert.Empty(t, gen.callsFor(agent.RoleEngineer))
	assert.Empty(t, gen.callsFor(agent.RoleCritic))

	assert.Equal(t, []string{"555"}, notifier.deliveries, "submitter wins over fallback")
	require.NotNil(t, snap.Delivered)
	assert.True(t, *snap.Delivered)
	assert.Equal(t, 2, store.Len(conversation.CopyBoard), "draft and review request")
	assert.Equal(t, 2, store.Len(conversation.GrowthReview), "audit and approval notice")
}

func TestOrchestrator_DeliveryFailureStillCompletes(t *testing.T) {
	gen := newStubGateway(planA, always(approve))
	notifier := &stubNotifier{deliverOK: false}
	o, store := newTestOrchestrator(t, gen, notifier, Config{})

	run, err := o.RunTask(context.Background(), Task{Text: "task", SubmitterID: "99"})
	require.NoError(t, err)

	snap := run.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	require.NotNil(t, snap.Delivered)
	assert.False(t, *snap.Delivered)

	status := lastMessage(t, store, conversation.FinalOutput)
	assert.Contains(t, status.Content, "Delivery failed")
	assert.NotContains(t, status.Content, "Delivered**")
	assert.Contains(t, status.Content, "99")
}

func TestOrchestrator_NoRecipientSkipsDelivery(t *testing.T) {
	gen := newStubGateway(planA, always(approve))
	notifier := &stubNotifier{deliverOK: true}
	o, store := newTestOrchestrator(t, gen, notifier, Config{})

	run, err := o.RunTask(context.Background(), Task{Text: "task"})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, run.Status())
	assert.Empty(t, notifier.deliveries)
	assert.Nil(t, run.Snapshot().Delivered)
	assert.Equal(t, 1, store.Len(conversation.FinalOutput), "only the creator output")
}

func TestOrchestrator_Mirroring(t *testing.T) {
	gen := newStubGateway(planA, approveOn(2))
	notifier := &stubNotifier{deliverOK: true}
	o, _ := newTestOrchestrator(t, gen, notifier, Config{})

	_, err := o.RunTask(context.Background(), Task{Text: "task"})
	require.NoError(t, err)

	var got []agent.Role
	for _, b := range notifier.broadcasts {
		got = append(got, b.Role)
	}
	// plan, draft, audit, rejection notice, revision, audit, approval, final
	assert.Equal(t, []agent.Role{
		agent.RoleDirector, agent.RoleEngineer, agent.RoleCritic, agent.RoleCritic,
		agent.RoleEngineer, agent.RoleCritic, agent.RoleCritic, agent.RoleCreator,
	}, got)
	for _, b := range notifier.broadcasts {
		assert.NotEqual(t, "task", b.Text, "the user's own message is not mirrored")
	}
	assert.Equal(t, conversation.FinalOutput, notifier.broadcasts[len(notifier.broadcasts)-1].Channel)
}

func TestOrchestrator_AdmissionGuard(t *testing.T) {
	gen := newStubGateway(planA, always(approve))
	gen.entered = make(chan struct{})
	gen.release = make(chan struct{})
	notifier := &stubNotifier{deliverOK: true}
	o, store := newTestOrchestrator(t, gen, notifier, Config{})

	first, err := o.Submit(context.Background(), Task{Text: "first"})
	require.NoError(t, err)
	<-gen.entered

	assert.Equal(t, StatusPlanning, o.Status())
	assert.True(t, o.Busy())
	require.NotNil(t, o.Active())
	assert.Equal(t, first.ID, o.Active().ID)

	before := make(map[conversation.Channel]int)
	for _, info := range conversation.Channels() {
		before[info.ID] = store.Len(info.ID)
	}
	broadcasts := len(notifier.broadcasts)

	second, err := o.Admit(Task{Text: "second"})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Nil(t, second)
	_, err = o.Submit(context.Background(), Task{Text: "third"})
	assert.ErrorIs(t, err, ErrBusy)

	for _, info := range conversation.Channels() {
		assert.Equal(t, before[info.ID], store.Len(info.ID), info.ID)
	}
	assert.Equal(t, first.ID, o.Last().ID)

	close(gen.release)
	<-first.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Wait(ctx))
	assert.Equal(t, StatusCompleted, o.Status())
	assert.Greater(t, len(notifier.broadcasts), broadcasts)
	assert.Len(t, gen.callsFor(agent.RoleDirector), 1, "busy submissions never reached the planner")

	next, err := o.Admit(Task{Text: "after"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, next.ID)
}

func TestOrchestrator_EmptyTask(t *testing.T) {
	o, store := newTestOrchestrator(t, newStubGateway(planA, always(approve)), nil, Config{})
	_, err := o.Admit(Task{Text: "  \n"})
	assert.ErrorIs(t, err, ErrEmptyTask)
	assert.False(t, o.Busy())
	assert.Equal(t, 1, store.Len(conversation.General))
}

func TestOrchestrator_ExecuteRunsOnce(t *testing.T) {
	gen := newStubGateway(planA, always(approve))
	o, store := newTestOrchestrator(t, gen, nil, Config{})

	run, err := o.RunTask(context.Background(), Task{Text: "task"})
	require.NoError(t, err)
	calls := len(gen.calls)
	messages := store.Len(conversation.General)

	assert.NotPanics(t, func() {
		assert.Same(t, run, o.Execute(context.Background(), run))
	})
	assert.Len(t, gen.calls, calls)
	assert.Equal(t, messages, store.Len(conversation.General))
	assert.Equal(t, StatusCompleted, run.Status())
	assert.False(t, o.Busy())

	next, err := o.Admit(Task{Text: "next"})
	require.NoError(t, err)
	assert.NotEqual(t, run.ID, next.ID)
}

func TestOrchestrator_NilCollaborators(t *testing.T) {
	_, err := New(Config{}, Deps{Store: conversation.NewStore()})
	assert.Error(t, err)
	_, err = New(Config{}, Deps{Gateway: newStubGateway("", nil)})
	assert.Error(t, err)
}

func TestOrchestrator_GatewayPlaceholdersAreContent(t *testing.T) {
	gen := &stubGateway{reply: map[agent.Role]func(int) string{
		agent.RoleDirector: always(agent.ErrorText(agent.RoleDirector)),
		agent.RoleEngineer: always(agent.ErrorText(agent.RoleEngineer)),
		agent.RoleCritic:   always(agent.ErrorText(agent.RoleCritic)),
		agent.RoleCreator:  always(agent.ErrorText(agent.RoleCreator)),
	}}
	o, _ := newTestOrchestrator(t, gen, nil, Config{})

	run, err := o.RunTask(context.Background(), Task{Text: "task"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status(), "placeholder audits carry no reject marker")
	assert.Equal(t, CategoryEngineering, run.Snapshot().Route.Category)
}

func TestOrchestrator_ObserversSeeEveryTransition(t *testing.T) {
	var mu sync.Mutex
	var seen []Transition
	rec := ObserverFunc(func(_ context.Context, tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, tr)
	})
	panicky := ObserverFunc(func(context.Context, Transition) { panic("boom") })

	gen := newStubGateway(planB, approveOn(2))
	o, _ := newTestOrchestrator(t, gen, nil, Config{}, panicky, rec)

	run, err := o.RunTask(context.Background(), Task{Text: "task"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status())

	require.Len(t, seen, 7)
	assert.Equal(t, StatusIdle, seen[0].From)
	assert.Equal(t, StatusPlanning, seen[0].To)
	assert.Empty(t, seen[0].Category, "category is unknown while planning")
	assert.Equal(t, CategoryCopy, seen[1].Category)
	assert.Equal(t, StatusExecuting, seen[3].To)
	assert.Equal(t, 1, seen[3].Attempt)
	assert.Equal(t, StatusCompleted, seen[6].To)
	for i, tr := range seen {
		assert.Equal(t, run.ID, tr.RunID)
		if i > 0 {
			assert.Equal(t, seen[i-1].To, tr.From)
		}
	}
}

func TestOrchestrator_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	store := conversation.NewStore()
	o, err := New(Config{}, Deps{
		Gateway: newStubGateway(planA, always(reject)),
		Store:   store,
		Metrics: metrics,
	})
	require.NoError(t, err)

	_, err = o.RunTask(context.Background(), Task{Text: "task"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("failed", "engineering")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.audits.WithLabelValues("rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.revisions))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.active))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.duration))
}

func TestOrchestrator_PacingHonorsConfig(t *testing.T) {
	gen := newStubGateway(planA, approveOn(2))
	o, _ := newTestOrchestrator(t, gen, nil, Config{Pacing: config.DefaultPacing()})

	var mu sync.Mutex
	var slept []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		slept = append(slept, d)
	}

	_, err := o.RunTask(context.Background(), Task{Text: "task"})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{
		time.Second,             // after plan
		1500 * time.Millisecond, // after execute
		1500 * time.Millisecond, // after rejection notice
		time.Second,             // after revision
		1500 * time.Millisecond, // before finalize
	}, slept)
}
