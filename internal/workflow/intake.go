package workflow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultIntakeInterval is the poll period when Intake.Interval is unset.
const DefaultIntakeInterval = 2 * time.Second

// CommandSource yields at most one task command per Poll. A nil command
// with a nil error means nothing actionable arrived.
type CommandSource interface {
	Poll(ctx context.Context) (*Command, error)
}

// Intake polls a CommandSource on a fixed period and submits what it reads.
// The source is polled on every tick, so a command that arrives while a run
// is active is consumed and dropped rather than left for a later tick.
type Intake struct {
	Orchestrator *Orchestrator
	Source       CommandSource
	Interval     time.Duration
	Logger       *zap.Logger
}

// Run polls until ctx is done.
func (i *Intake) Run(ctx context.Context) error {
	interval := i.Interval
	if interval <= 0 {
		interval = DefaultIntakeInterval
	}
	logger := i.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			i.tick(ctx, logger)
		}
	}
}

func (i *Intake) tick(ctx context.Context, logger *zap.Logger) {
	cmd, err := i.Source.Poll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("command poll failed", zap.Error(err))
		}
		return
	}
	if cmd == nil {
		return
	}

	run, err := i.Orchestrator.Submit(ctx, cmd.Task(time.Now()))
	switch {
	case errors.Is(err, ErrBusy):
		logger.Info("command dropped, workflow busy", zap.String("source", cmd.Source))
	case errors.Is(err, ErrEmptyTask):
		logger.Debug("empty command ignored", zap.String("source", cmd.Source))
	case err != nil:
		logger.Error("command submit failed", zap.Error(err))
	default:
		logger.Info("command accepted",
			zap.String("run.id", run.ID),
			zap.String("source", cmd.Source),
			zap.String("submitter", cmd.SubmitterID),
		)
	}
}
