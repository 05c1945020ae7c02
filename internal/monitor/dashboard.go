// Package monitor renders a live terminal dashboard of a running openclaw
// daemon: workflow status, the active run's progress through the pipeline,
// per-channel message counts and recent activity.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	httpapi "github.com/hlabs/openclaw/internal/http"
	"github.com/hlabs/openclaw/internal/workflow"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	fetchTimeout    = 5 * time.Second
	taskWidth       = 48
)

// Model represents the BubbleTea dashboard model
type Model struct {
	source     Source
	target     string
	interval   time.Duration
	maxAudits  int
	lastUpdate time.Time
	snapshot   Snapshot
	err        error
	quitting   bool
	now        func() time.Time

	phaseProgress progress.Model
	auditProgress progress.Model
}

// Snapshot holds the state shown by the dashboard.
type Snapshot struct {
	Status workflow.Status
	Busy   bool
	// Run is the active run, or the last finished one when idle.
	Run      *workflow.RunSnapshot
	Channels []httpapi.ChannelSummary

	TotalMessages int
	// ActivityHistory holds new messages per refresh (last N points).
	ActivityHistory []float64
	fetched         bool
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard polling source every interval. target names
// the daemon in the error view.
func NewModel(source Source, target string, interval time.Duration) Model {
	return Model{
		source:    source,
		target:    target,
		interval:  interval,
		maxAudits: workflow.DefaultMaxRetries,
		now:       time.Now,
		phaseProgress: progress.New(
			progress.WithGradient("#00ffff", "#00ff00"),
			progress.WithWidth(40),
		),
		auditProgress: progress.New(
			progress.WithGradient("#ffff00", "#ff0000"),
			progress.WithWidth(40),
		),
		snapshot: Snapshot{
			ActivityHistory: make([]float64, 0, historySize),
		},
	}
}

// getStatusBadge returns a colored badge for a workflow status
func getStatusBadge(s workflow.Status) string {
	switch s {
	case workflow.StatusCompleted:
		return healthyStyle.Render("✓ " + string(s))
	case workflow.StatusFailed:
		return errorStyle.Render("✗ " + string(s))
	case workflow.StatusIdle, "":
		return dimStyle.Render("● IDLE")
	default:
		return warningStyle.Render("◐ " + string(s))
	}
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}

	return sparklineStyle.Render(spark.View())
}

// Message types
type tickMsg time.Time
type snapshotMsg Snapshot
type errMsg error

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchSnapshot(m.source),
	)
}

// tick creates a tick command for auto-refresh
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchSnapshot reads status and channel counts from source.
func fetchSnapshot(source Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		status, err := source.Status(ctx)
		if err != nil {
			return errMsg(err)
		}
		channels, err := source.Channels(ctx)
		if err != nil {
			return errMsg(err)
		}

		snap := Snapshot{
			Status:   status.Status,
			Busy:     status.Busy,
			Run:      status.Active,
			Channels: channels.Channels,
			fetched:  true,
		}
		if snap.Run == nil {
			snap.Run = status.Last
		}
		for _, ch := range channels.Channels {
			snap.TotalMessages += ch.Messages
		}
		return snapshotMsg(snap)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchSnapshot(m.source)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchSnapshot(m.source),
		)

	case snapshotMsg:
		next := Snapshot(msg)

		delta := 0.0
		if m.snapshot.fetched && next.TotalMessages >= m.snapshot.TotalMessages {
			delta = float64(next.TotalMessages - m.snapshot.TotalMessages)
		}
		next.ActivityHistory = appendToHistory(m.snapshot.ActivityHistory, delta)

		m.snapshot = next
		m.lastUpdate = m.now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

// renderError renders the error view
func (m Model) renderError() string {
	header := headerStyle.Render("openclaw Monitor")

	var content string
	content += "\n"
	content += errorStyle.Render("⚠ Cannot reach the openclaw daemon") + "\n"
	content += "\n"
	content += dimStyle.Render("URL: ") + valueStyle.Render(m.target) + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n"
	content += "\n"
	content += dimStyle.Render("Please ensure:") + "\n"
	content += dimStyle.Render("  1. openclaw serve is running") + "\n"
	content += dimStyle.Render("  2. server.enabled is true in the config") + "\n"
	content += "\n"
	content += footerStyle.Render("[q] quit  [r] retry") + "\n"

	return containerStyle.Render(header + "\n" + content)
}

// renderDashboard renders the main dashboard view
func (m Model) renderDashboard() string {
	var content string
	snap := m.snapshot

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}
	busy := dimStyle.Render("idle")
	if snap.Busy {
		busy = warningStyle.Render("busy")
	}

	content += headerStyle.Render(" openclaw Monitor ") + "\n"
	content += fmt.Sprintf("%s   %s   %s",
		getStatusBadge(snap.Status),
		busy,
		dimStyle.Render(lastUpdateStr)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Run") + "\n"
	if snap.Run == nil {
		content += dimStyle.Render("  No task has run yet") + "\n"
	} else {
		content += m.renderRun(snap.Run)
	}

	content += "\n" + sectionStyle.Render("┃ Channels") + "\n"
	for _, ch := range snap.Channels {
		content += labelStyle.Render(fmt.Sprintf("  %-16s", ch.ID)) +
			valueStyle.Render(fmt.Sprintf("%4d", ch.Messages)) +
			dimStyle.Render("  "+ch.Name) + "\n"
	}
	content += labelStyle.Render("  Activity: ") +
		valueStyle.Render(fmt.Sprintf("%d msgs", snap.TotalMessages)) +
		"   " + createSparkline(snap.ActivityHistory) + "\n"

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
	content += "\n" + footer

	return containerStyle.Render(content)
}

func (m Model) renderRun(r *workflow.RunSnapshot) string {
	var content string

	elapsed := m.now().Sub(r.StartedAt)
	if r.FinishedAt != nil {
		elapsed = r.FinishedAt.Sub(r.StartedAt)
	}

	content += labelStyle.Render("  ID: ") + valueStyle.Render(r.ID) +
		"  " + getStatusBadge(r.Status) + "\n"
	content += labelStyle.Render("  Task: ") + valueStyle.Render(Truncate(r.Task.Text, taskWidth)) + "\n"
	content += labelStyle.Render("  Route: ") + valueStyle.Render(FormatRoute(r.Route)) +
		"  " + labelStyle.Render("Elapsed: ") + valueStyle.Render(FormatDuration(elapsed)) + "\n"

	content += labelStyle.Render("  Phase: ") +
		m.phaseProgress.ViewAs(PhaseProgress(r.Status)) + "\n"

	auditPercent := 0.0
	if m.maxAudits > 0 {
		auditPercent = float64(r.Audits) / float64(m.maxAudits)
		if auditPercent > 1.0 {
			auditPercent = 1.0
		}
	}
	content += labelStyle.Render("  Audits: ") +
		m.auditProgress.ViewAs(auditPercent) +
		" " + dimStyle.Render(fmt.Sprintf("%d/%d, %d revisions", r.Audits, m.maxAudits, r.Revisions)) + "\n"

	switch {
	case r.Delivered == nil:
	case *r.Delivered:
		content += labelStyle.Render("  Delivery: ") + healthyStyle.Render("sent to "+r.Recipient) + "\n"
	default:
		content += labelStyle.Render("  Delivery: ") + errorStyle.Render("failed") + "\n"
	}
	return content
}

// Run starts the dashboard on the terminal and blocks until the user quits.
func Run(ctx context.Context, source Source, target string, interval time.Duration) error {
	p := tea.NewProgram(NewModel(source, target, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
