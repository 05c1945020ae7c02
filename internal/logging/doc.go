// Package logging provides structured logging for openclaw.
//
// The package wraps zap with:
//   - a Trace level (-2, below Debug)
//   - stdout and OpenTelemetry outputs
//   - run and request correlation fields pulled from context
//   - key- and pattern-based secret redaction
//   - level-aware sampling (errors are never sampled)
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, run.ID)
//	logger.Info(ctx, "run admitted", zap.String("source", "telegram"))
//
// Components that only need a *zap.Logger receive logger.Underlying().
package logging
