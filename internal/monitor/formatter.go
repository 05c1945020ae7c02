package monitor

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hlabs/openclaw/internal/workflow"
)

// FormatDuration formats a duration as "Xh Ym", "Xm Ys" or "Xs".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d / time.Second)
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// FormatRoute formats a route as "executor → auditor".
func FormatRoute(r *workflow.Route) string {
	if r == nil {
		return "unrouted"
	}
	return fmt.Sprintf("%s → %s", r.Executor, r.Auditor)
}

// Truncate shortens s to limit runes on one line, marking the cut with "…".
func Truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}
	return string([]rune(s)[:limit-1]) + "…"
}

// PhaseProgress maps a status onto the pipeline, 0 at IDLE and 1 at a
// terminal status.
func PhaseProgress(s workflow.Status) float64 {
	switch s {
	case workflow.StatusPlanning:
		return 0.2
	case workflow.StatusExecuting:
		return 0.4
	case workflow.StatusAuditing:
		return 0.6
	case workflow.StatusFinalizing:
		return 0.8
	case workflow.StatusCompleted, workflow.StatusFailed:
		return 1
	default:
		return 0
	}
}
