package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hlabs/openclaw/internal/agent"
	"github.com/hlabs/openclaw/internal/config"
	"github.com/hlabs/openclaw/internal/conversation"
	"github.com/hlabs/openclaw/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/hlabs/openclaw/internal/workflow"

// DefaultMaxRetries is the audit budget when Config.MaxRetries is unset.
const DefaultMaxRetries = 3

// Generator produces text for a role. Implementations never fail; errors
// come back as placeholder text.
type Generator interface {
	Generate(ctx context.Context, role agent.Role, input string, search bool) string
}

// Notifier mirrors messages to an external surface and delivers final
// artifacts privately. Broadcast is best effort.
type Notifier interface {
	Broadcast(ctx context.Context, ch conversation.Channel, role agent.Role, text string)
	DeliverPrivate(ctx context.Context, text, recipient string) bool
}

// Config tunes the orchestrator.
type Config struct {
	MaxRetries int
	// FallbackRecipient receives the delivery when the task has no submitter.
	FallbackRecipient string
	// Pacing delays are cosmetic. Zero disables them.
	Pacing config.PacingConfig
}

// Deps are the orchestrator's collaborators. Gateway and Store are
// required; the rest may be nil.
type Deps struct {
	Gateway   Generator
	Notifier  Notifier
	Store     *conversation.Store
	Observers []Observer
	Logger    *zap.Logger
	Metrics   *Metrics
	Tracer    trace.Tracer
}

// Orchestrator runs at most one task at a time.
type Orchestrator struct {
	cfg       Config
	gateway   Generator
	notifier  Notifier
	store     *conversation.Store
	observers []Observer
	logger    *zap.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration)

	mu     sync.Mutex
	status Status
	busy   bool // reentrancy flag, set at admission and cleared last
	active *Run
	last   *Run
	idle   chan struct{}
}

// New creates an orchestrator in IDLE.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Gateway == nil {
		return nil, fmt.Errorf("workflow: gateway is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("workflow: store is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	o := &Orchestrator{
		cfg:       cfg,
		gateway:   deps.Gateway,
		notifier:  deps.Notifier,
		store:     deps.Store,
		observers: deps.Observers,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		now:       time.Now,
		sleep:     sleepContext,
		status:    StatusIdle,
		idle:      closedChan(),
	}
	if o.notifier == nil {
		o.notifier = nopNotifier{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}
	if o.metrics != nil {
		o.observers = append(o.observers, o.metrics)
	}
	return o, nil
}

// Status returns the orchestrator status. It stays at the last terminal
// status until the next run is admitted.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Busy reports whether a run holds the reentrancy flag.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// Active returns a snapshot of the running task, or nil.
func (o *Orchestrator) Active() *RunSnapshot {
	o.mu.Lock()
	r := o.active
	o.mu.Unlock()
	if r == nil {
		return nil
	}
	s := r.Snapshot()
	return &s
}

// Last returns a snapshot of the most recently admitted run, or nil.
func (o *Orchestrator) Last() *RunSnapshot {
	o.mu.Lock()
	r := o.last
	o.mu.Unlock()
	if r == nil {
		return nil
	}
	s := r.Snapshot()
	return &s
}

// Wait blocks until no run is active or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	idle := o.idle
	o.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Admit claims the orchestrator for task. While another run is active it
// returns ErrBusy and changes nothing.
func (o *Orchestrator) Admit(task Task) (*Run, error) {
	task.Text = strings.TrimSpace(task.Text)
	if task.Text == "" {
		return nil, ErrEmptyTask
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy || !o.status.AcceptsTasks() {
		return nil, ErrBusy
	}

	now := o.now()
	if task.SubmittedAt.IsZero() {
		task.SubmittedAt = now
	}
	recipient := task.SubmitterID
	if recipient == "" {
		recipient = o.cfg.FallbackRecipient
	}

	run := newRun(uuid.NewString(), task, recipient, now)
	o.busy = true
	o.active = run
	o.last = run
	o.idle = make(chan struct{})
	return run, nil
}

// Submit admits task and executes it on a new goroutine. The run is
// detached from ctx cancellation; it always reaches a terminal status.
func (o *Orchestrator) Submit(ctx context.Context, task Task) (*Run, error) {
	run, err := o.Admit(task)
	if err != nil {
		return nil, err
	}
	go o.Execute(context.WithoutCancel(ctx), run)
	return run, nil
}

// RunTask admits task and executes it synchronously.
func (o *Orchestrator) RunTask(ctx context.Context, task Task) (*Run, error) {
	run, err := o.Admit(task)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, run), nil
}

// Execute drives an admitted run to COMPLETED or FAILED. A run executes
// once; calling Execute again returns it unchanged.
func (o *Orchestrator) Execute(ctx context.Context, run *Run) *Run {
	if !run.started.CompareAndSwap(false, true) {
		return run
	}
	ctx = logging.WithRunID(ctx, run.ID)
	if run.Task.Source != "" {
		ctx = logging.WithSource(ctx, run.Task.Source)
	}
	ctx, span := o.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.String("run.source", run.Task.Source),
	))
	defer span.End()
	defer o.release(run)

	log := o.logger.With(zap.String("run.id", run.ID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("workflow panicked", zap.String("panic", fmt.Sprint(r)))
			if !run.Status().Terminal() {
				o.transition(ctx, run, StatusFailed)
			}
		}
	}()
	log.Info("workflow started", zap.String("source", run.Task.Source), zap.Int("task_len", len(run.Task.Text)))

	// Planning.
	o.post(conversation.General, agent.RoleUser, run.Task.Text)
	o.transition(ctx, run, StatusPlanning)
	plan := o.phase(ctx, "workflow.plan", conversation.General, agent.RoleDirector, run.Task.Text, false)

	route := RouteFor(ClassifyRoute(plan))
	run.update(func(r *Run) {
		r.plan = plan
		r.route = route
		r.routed = true
	})
	span.SetAttributes(attribute.String("run.category", string(route.Category)))
	log.Info("task routed",
		zap.String("category", string(route.Category)),
		zap.String("executor", string(route.Executor)),
		zap.String("auditor", string(route.Auditor)),
	)
	o.pause(ctx, o.cfg.Pacing.AfterPlan)

	// Initial execution.
	o.transition(ctx, run, StatusExecuting)
	o.post(conversation.General, agent.RoleDirector, handoffMessage(route))
	solution := o.phase(ctx, "workflow.execute", route.ExecutorChannel, route.Executor, plan, route.Search)
	run.update(func(r *Run) { r.solution = solution })
	o.pause(ctx, o.cfg.Pacing.AfterExecute)

	// Audit loop.
	budget := o.cfg.MaxRetries
	approved := false
	for attempt := 0; attempt < budget; {
		o.transition(ctx, run, StatusAuditing)
		o.post(route.ExecutorChannel, route.Executor, auditRequestMessage(route, attempt))

		audit := o.phase(ctx, "workflow.audit", route.AuditorChannel, route.Auditor, solution, false)
		verdict := ClassifyVerdict(audit)
		run.update(func(r *Run) { r.audits++ })
		o.metrics.observeAudit(verdict)
		log.Info("audit verdict", zap.String("verdict", string(verdict)), zap.Int("attempt", attempt+1))

		if verdict == VerdictApproved {
			approved = true
			break
		}

		attempt++
		run.update(func(r *Run) { r.attempts = attempt })
		if attempt >= budget {
			break
		}

		o.postAndMirror(ctx, route.AuditorChannel, route.Auditor, rejectionNotice(route, attempt, budget))
		o.pause(ctx, o.cfg.Pacing.AfterReject)

		o.transition(ctx, run, StatusExecuting)
		solution = o.phase(ctx, "workflow.revise", route.ExecutorChannel, route.Executor, RevisionPrompt(route, audit), route.Search)
		run.update(func(r *Run) {
			r.solution = solution
			r.revisions++
		})
		o.metrics.observeRevision()
		o.pause(ctx, o.cfg.Pacing.AfterRevision)
	}

	o.pause(ctx, o.cfg.Pacing.BeforeFinalize)

	if !approved {
		o.transition(ctx, run, StatusFailed)
		o.postAndMirror(ctx, route.AuditorChannel, route.Auditor, failedMessage(budget))
		return run
	}

	// Finalizing.
	run.update(func(r *Run) { r.approved = true })
	o.transition(ctx, run, StatusFinalizing)
	o.postAndMirror(ctx, route.AuditorChannel, route.Auditor, approvalNotice())

	final := o.phase(ctx, "workflow.finalize", conversation.FinalOutput, agent.RoleCreator, solution, false)
	run.update(func(r *Run) { r.final = final })

	if run.Recipient != "" {
		o.deliver(ctx, run, final, log)
	} else {
		log.Info("no recipient, skipping private delivery")
	}

	o.transition(ctx, run, StatusCompleted)
	return run
}

func (o *Orchestrator) deliver(ctx context.Context, run *Run, final string, log *zap.Logger) {
	ctx, span := o.tracer.Start(ctx, "workflow.deliver")
	defer span.End()

	status, err := o.store.Post(conversation.FinalOutput, agent.RoleCreator, deliveringMessage)
	if err != nil {
		log.Error("store write failed", zap.Error(err))
	}

	ok := o.safeDeliver(ctx, final, run.Recipient, log)
	run.update(func(r *Run) { r.delivered = &ok })
	span.SetAttributes(attribute.Bool("delivery.ok", ok))

	if err == nil {
		if err := o.store.Complete(conversation.FinalOutput, status.ID, deliveryResultMessage(run.Recipient, ok)); err != nil {
			log.Error("store write failed", zap.Error(err))
		}
	}
	if !ok {
		log.Warn("private delivery failed", zap.String("recipient", run.Recipient))
	}
}

// phase records an in-progress message in ch, generates role's reply,
// completes the message and mirrors it.
func (o *Orchestrator) phase(ctx context.Context, name string, ch conversation.Channel, role agent.Role, input string, search bool) string {
	ctx, span := o.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("agent.role", string(role)),
		attribute.String("channel", string(ch)),
		attribute.Bool("agent.search", search),
	))
	defer span.End()

	id, err := o.store.Begin(ch, role)
	if err != nil {
		o.logger.Error("store write failed", zap.String("channel", string(ch)), zap.Error(err))
	}
	text := o.gateway.Generate(ctx, role, input, search)
	if err == nil {
		if err := o.store.Complete(ch, id, text); err != nil {
			o.logger.Error("store write failed", zap.String("channel", string(ch)), zap.Error(err))
		}
	}
	o.mirror(ctx, ch, role, text)
	return text
}

func (o *Orchestrator) post(ch conversation.Channel, role agent.Role, text string) {
	if _, err := o.store.Post(ch, role, text); err != nil {
		o.logger.Error("store write failed", zap.String("channel", string(ch)), zap.Error(err))
	}
}

func (o *Orchestrator) postAndMirror(ctx context.Context, ch conversation.Channel, role agent.Role, text string) {
	o.post(ch, role, text)
	o.mirror(ctx, ch, role, text)
}

func (o *Orchestrator) mirror(ctx context.Context, ch conversation.Channel, role agent.Role, text string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("notifier panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	o.notifier.Broadcast(ctx, ch, role, text)
}

func (o *Orchestrator) safeDeliver(ctx context.Context, text, recipient string, log *zap.Logger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("notifier panicked", zap.String("panic", fmt.Sprint(r)))
			ok = false
		}
	}()
	return o.notifier.DeliverPrivate(ctx, text, recipient)
}

// transition commits a status change and then notifies observers.
func (o *Orchestrator) transition(ctx context.Context, run *Run, to Status) {
	now := o.now()

	o.mu.Lock()
	from := o.status
	o.status = to
	o.mu.Unlock()

	var t Transition
	run.update(func(r *Run) {
		r.status = to
		r.history = append(r.history, to)
		if to.Terminal() {
			r.finishedAt = now
		}
		t = Transition{RunID: r.ID, From: from, To: to, Attempt: r.attempts, At: now}
		if r.routed {
			t.Category = r.route.Category
		}
	})
	trace.SpanFromContext(ctx).AddEvent("status", trace.WithAttributes(attribute.String("status", string(to))))
	notifyObservers(ctx, o.observers, t, o.logger)
}

// release clears the reentrancy flag. It runs last.
func (o *Orchestrator) release(run *Run) {
	o.mu.Lock()
	o.busy = false
	o.active = nil
	idle := o.idle
	o.mu.Unlock()
	close(run.done)
	close(idle)
}

func (o *Orchestrator) pause(ctx context.Context, d config.Duration) {
	if d.Duration() > 0 {
		o.sleep(ctx, d.Duration())
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(context.Context, conversation.Channel, agent.Role, string) {}

func (nopNotifier) DeliverPrivate(context.Context, string, string) bool { return false }
