package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Observer is told about every committed status change. Observers run
// synchronously on the run goroutine; a panic is recovered and logged.
type Observer interface {
	OnTransition(ctx context.Context, t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, t Transition)

func (f ObserverFunc) OnTransition(ctx context.Context, t Transition) { f(ctx, t) }

// LogObserver logs transitions.
type LogObserver struct {
	Logger *zap.Logger
}

func (o LogObserver) OnTransition(_ context.Context, t Transition) {
	if o.Logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("run.id", t.RunID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.Int("attempt", t.Attempt),
	}
	if t.Category != "" {
		fields = append(fields, zap.String("category", string(t.Category)))
	}
	switch t.To {
	case StatusFailed:
		o.Logger.Warn("workflow failed", fields...)
	case StatusCompleted:
		o.Logger.Info("workflow completed", fields...)
	default:
		o.Logger.Debug("workflow transition", fields...)
	}
}

func notifyObservers(ctx context.Context, observers []Observer, t Transition, logger *zap.Logger) {
	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("observer panicked",
						zap.String("run.id", t.RunID),
						zap.String("to", string(t.To)),
						zap.String("panic", fmt.Sprint(r)),
					)
				}
			}()
			obs.OnTransition(ctx, t)
		}()
	}
}
