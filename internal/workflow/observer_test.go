package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/hlabs/openclaw/internal/logging"
	"go.uber.org/zap/zapcore"
)

func TestLogObserver(t *testing.T) {
	logger := logging.NewTestLogger()
	obs := LogObserver{Logger: logger.Underlying()}
	ctx := context.Background()

	obs.OnTransition(ctx, Transition{RunID: "r1", From: StatusIdle, To: StatusPlanning, At: time.Now()})
	obs.OnTransition(ctx, Transition{RunID: "r1", From: StatusAuditing, To: StatusFailed, Category: CategoryCopy, Attempt: 3})
	obs.OnTransition(ctx, Transition{RunID: "r2", From: StatusFinalizing, To: StatusCompleted, Category: CategoryEngineering})

	logger.AssertLogged(t, zapcore.DebugLevel, "workflow transition")
	logger.AssertLogged(t, zapcore.WarnLevel, "workflow failed")
	logger.AssertLogged(t, zapcore.InfoLevel, "workflow completed")
	logger.AssertField(t, "workflow failed", "category", "copy")
	logger.AssertField(t, "workflow completed", "run.id", "r2")

	// A nil logger is a no-op.
	LogObserver{}.OnTransition(ctx, Transition{To: StatusCompleted})
}
