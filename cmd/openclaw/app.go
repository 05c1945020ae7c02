package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hlabs/openclaw/internal/agent"
	"github.com/hlabs/openclaw/internal/config"
	"github.com/hlabs/openclaw/internal/conversation"
	"github.com/hlabs/openclaw/internal/events"
	"github.com/hlabs/openclaw/internal/logging"
	"github.com/hlabs/openclaw/internal/secrets"
	"github.com/hlabs/openclaw/internal/telegram"
	"github.com/hlabs/openclaw/internal/telemetry"
	"github.com/hlabs/openclaw/internal/workflow"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/hlabs/openclaw"

// appOptions select how much of the runtime a command needs.
type appOptions struct {
	configPath string
	// logStderr keeps stdout free for command output or a protocol stream.
	logStderr bool
	// pacing enables the cosmetic delays between workflow steps.
	pacing bool
}

// app holds the wired runtime shared by serve, run and mcp.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	tel      *telemetry.Telemetry
	registry *prometheus.Registry
	profiles *agent.ProfileSet
	scrubber secrets.Scrubber
	store    *conversation.Store
	orch     *workflow.Orchestrator

	bot    *telegram.Client
	poller *telegram.Poller
	nc     *nats.Conn
}

// newApp loads configuration and wires every dependency:
//  1. Config, logger and telemetry
//  2. Prometheus registry with Go and process collectors
//  3. Role profiles, model provider and agent gateway
//  4. Secret scrubber
//  5. Telegram notifier and poller (if enabled)
//  6. NATS connection and event publisher (if enabled)
//  7. Conversation store and orchestrator
func newApp(ctx context.Context, opts appOptions) (_ *app, err error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	logCfg, err := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	if opts.logStderr {
		logCfg.Output.Stdout = false
		logCfg.Output.Stderr = true
	}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()
	zl := logger.Underlying()

	a.tel, err = telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version), zl.Named("telemetry"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.Profiles.Path != "" {
		a.profiles, err = agent.LoadProfiles(cfg.Profiles.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load profiles: %w", err)
		}
	} else {
		a.profiles = agent.DefaultProfiles()
	}

	provider, err := agent.NewProvider(cfg.Gateway)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", cfg.Gateway.Provider, err)
	}
	gateway := agent.NewGateway(provider, a.profiles, zl.Named("agent"), agent.NewMetrics(a.registry))

	a.scrubber, err = secrets.New(&secrets.Config{
		Enabled:         cfg.Scrubber.Enabled,
		RedactionString: cfg.Scrubber.RedactionString,
		Rules:           secrets.DefaultRules(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scrubber: %w", err)
	}

	var notifier workflow.Notifier
	if cfg.Telegram.Enabled {
		n, err := a.initTelegram(ctx, zl)
		if err != nil {
			return nil, err
		}
		notifier = n
	}

	observers := []workflow.Observer{workflow.LogObserver{Logger: zl.Named("transitions")}}
	if cfg.Events.Enabled {
		a.nc, err = events.Connect(cfg.Events.URL, zl.Named("nats"))
		if err != nil {
			return nil, err
		}
		observers = append(observers, events.NewPublisher(a.nc, cfg.Events.SubjectPrefix, zl.Named("events")))
		zl.Info("connected to nats", zap.String("url", a.nc.ConnectedUrlRedacted()))
	}

	pacing := config.PacingConfig{}
	if opts.pacing {
		pacing = cfg.Workflow.Pacing
	}

	a.store = conversation.NewStore()
	a.orch, err = workflow.New(workflow.Config{
		MaxRetries:        cfg.Workflow.MaxRetries,
		FallbackRecipient: cfg.Telegram.DefaultUserID,
		Pacing:            pacing,
	}, workflow.Deps{
		Gateway:   gateway,
		Notifier:  notifier,
		Store:     a.store,
		Observers: observers,
		Logger:    zl.Named("workflow"),
		Metrics:   workflow.NewMetrics(a.registry),
		Tracer:    a.tel.Tracer(instrumentationName + "/internal/workflow"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	zl.Info("openclaw initialized",
		zap.String("version", version),
		zap.String("provider", provider.Name()),
		zap.String("model", cfg.Gateway.Model),
		zap.Bool("telegram", cfg.Telegram.Enabled),
		zap.Bool("events", cfg.Events.Enabled),
		zap.Bool("telemetry", a.tel.Enabled()),
	)
	return a, nil
}

// initTelegram creates the Bot API client, the notifier and the poller.
func (a *app) initTelegram(ctx context.Context, zl *zap.Logger) (*telegram.Notifier, error) {
	tc := a.cfg.Telegram
	// Requests must outlive the long poll.
	client, err := telegram.NewClient(tc.APIBaseURL, tc.BotToken.Value(), tc.PollTimeout.Duration()+20*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client: %w", err)
	}

	meCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if me, err := client.GetMe(meCtx); err != nil {
		zl.Warn("telegram getMe failed", zap.Error(err))
	} else {
		zl.Info("telegram bot ready", zap.String("username", me.Username))
	}

	opts, err := telegram.OptionsFromConfig(tc)
	if err != nil {
		return nil, err
	}
	opts.Profiles = a.profiles
	opts.Scrubber = a.scrubber
	opts.Logger = zl.Named("telegram")
	opts.Metrics = telegram.NewMetrics(a.registry)

	a.bot = client
	a.poller = telegram.NewPoller(client, tc.ChatID, tc.GeneralTopicID, tc.PollTimeout.Duration(), zl.Named("telegram"))
	return telegram.NewNotifier(client, opts), nil
}

// intakes returns one intake per configured command source.
func (a *app) intakes() ([]*workflow.Intake, error) {
	zl := a.logger.Underlying()
	var out []*workflow.Intake
	if a.poller != nil {
		out = append(out, &workflow.Intake{
			Orchestrator: a.orch,
			Source:       a.poller,
			Interval:     a.cfg.Telegram.PollInterval.Duration(),
			Logger:       zl.Named("intake.telegram"),
		})
	}
	if a.nc != nil {
		src, err := events.NewCommandSource(a.nc, a.cfg.Events.CommandSubject, 0, zl.Named("intake.nats"))
		if err != nil {
			return nil, err
		}
		out = append(out, &workflow.Intake{
			Orchestrator: a.orch,
			Source:       src,
			Interval:     a.cfg.Workflow.IntakeInterval.Duration(),
			Logger:       zl.Named("intake.nats"),
		})
	}
	return out, nil
}

// Close releases infrastructure resources. Safe on a partially built app.
func (a *app) Close(ctx context.Context) {
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.nc.Close()
		}
	}
	if a.tel != nil {
		if err := a.tel.Shutdown(ctx); err != nil {
			a.logger.Underlying().Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync() // Best-effort sync on shutdown
}
