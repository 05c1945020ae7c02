package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrDegraded is returned by Check when an exporter failed to start.
var ErrDegraded = errors.New("telemetry degraded")

// Telemetry owns the tracer and meter providers of one openclaw process.
type Telemetry struct {
	config *Config
	logger *zap.Logger

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	stopped  atomic.Bool
	degraded atomic.Bool
	// failures names the providers that could not be built.
	failures []string
}

// New validates cfg and installs the providers globally. A disabled config
// yields an instance whose Tracer and Meter fall back to the global no-op
// providers. A provider that fails to build degrades the instance; New
// itself only fails on invalid configuration.
func New(ctx context.Context, cfg *Config, logger *zap.Logger) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Telemetry{config: cfg, logger: logger}
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)

	if tp, err := newTracerProvider(ctx, cfg, res); err != nil {
		t.markDegraded("tracer", err)
	} else {
		t.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	if mp, err := newMeterProvider(ctx, cfg, res); err != nil {
		t.markDegraded("meter", err)
	} else if mp != nil {
		t.meterProvider = mp
		otel.SetMeterProvider(mp)
	}

	// Run ids travel as baggage next to the W3C trace context.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("protocol", cfg.Protocol),
		zap.Float64("sample_rate", cfg.Sampling.Rate),
		zap.Bool("metrics", t.meterProvider != nil),
	)
	return t, nil
}

// Tracer returns a tracer for scope. Workflow runs and agent calls are
// traced through it.
func (t *Telemetry) Tracer(scope string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(scope, opts...)
	}
	return t.tracerProvider.Tracer(scope, opts...)
}

// Meter returns a meter for scope. The HTTP and MCP surfaces record their
// request metrics through it.
func (t *Telemetry) Meter(scope string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(scope, opts...)
	}
	return t.meterProvider.Meter(scope, opts...)
}

// Enabled reports whether telemetry was configured on and has not been shut
// down.
func (t *Telemetry) Enabled() bool {
	if t == nil || t.config == nil {
		return false
	}
	return t.config.Enabled && !t.stopped.Load()
}

// Check is a health probe: nil while the exporters run, ErrDegraded
// naming the failed providers otherwise.
func (t *Telemetry) Check(context.Context) error {
	if t == nil {
		return ErrDegraded
	}
	if t.degraded.Load() {
		return fmt.Errorf("%w: %v", ErrDegraded, t.failures)
	}
	if t.config.Enabled && t.stopped.Load() {
		return errors.New("telemetry stopped")
	}
	return nil
}

// Shutdown flushes pending spans and metrics and stops the providers.
// Without a deadline on ctx the configured shutdown timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	defer t.stopped.Store(true)

	if _, ok := ctx.Deadline(); !ok && t.config != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Shutdown.Timeout.Duration())
		defer cancel()
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ForceFlush exports pending spans and metrics without stopping.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.tracerProvider != nil {
		errs = append(errs, t.tracerProvider.ForceFlush(ctx))
	}
	if t.meterProvider != nil {
		errs = append(errs, t.meterProvider.ForceFlush(ctx))
	}
	return errors.Join(errs...)
}

func (t *Telemetry) markDegraded(provider string, err error) {
	t.degraded.Store(true)
	t.failures = append(t.failures, provider)
	t.logger.Warn("telemetry degraded", zap.String("provider", provider), zap.Error(err))
}
