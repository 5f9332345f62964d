package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
)

// Model represents the BubbleTea dashboard model for `ctxctl status --watch`.
type Model struct {
	daemonURL  string
	interval   time.Duration
	lastUpdate time.Time
	metrics    MetricsSnapshot
	err        error
	quitting   bool

	// Progress bars
	usageProgress progress.Model
	syncProgress  progress.Model
}

// MetricsSnapshot holds the dashboard's view of the daemon's current state,
// polled from GET /status and GET /sync.
type MetricsSnapshot struct {
	HasSession       bool
	SessionID        string
	ProjectHash      string
	LifecycleStatus  string
	TokenCount       int
	MaxContextTokens int
	UsagePercent     int
	FCCount          int

	SyncTotal   int
	SyncPending int
	SyncSyncing int
	SyncSynced  int
	SyncFailed  int

	// Historical data for sparklines (last N points)
	UsageHistory       []float64
	TokenCountHistory  []float64
	SyncPendingHistory []float64
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

// NewModel creates a new dashboard model polling the daemon at daemonURL.
func NewModel(daemonURL string, interval time.Duration) Model {
	usageProg := progress.New(
		progress.WithGradient("#00ff00", "#ff0000"),
		progress.WithWidth(40),
	)

	syncProg := progress.New(
		progress.WithGradient("#00ffff", "#ff00ff"),
		progress.WithWidth(40),
	)

	return Model{
		daemonURL:     daemonURL,
		interval:      interval,
		quitting:      false,
		usageProgress: usageProg,
		syncProgress:  syncProg,
		metrics: MetricsSnapshot{
			UsageHistory:       make([]float64, 0, historySize),
			TokenCountHistory:  make([]float64, 0, historySize),
			SyncPendingHistory: make([]float64, 0, historySize),
		},
	}
}

// getUsageBadge returns context usage badge based on percentage
func getUsageBadge(usagePercent int) string {
	switch {
	case usagePercent < 70:
		return healthyStyle.Render("[✓]")
	case usagePercent < 90:
		return warningStyle.Render("[⚠]")
	default:
		return errorStyle.Render("[✗]")
	}
}

// getStatusBadge returns overall daemon status badge
func getStatusBadge(err error, hasSession bool) string {
	if err != nil {
		return errorStyle.Render("✗ UNREACHABLE")
	}
	if !hasSession {
		return dimStyle.Render("○ IDLE")
	}
	return healthyStyle.Render("✓ ACTIVE")
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
type metricsMsg MetricsSnapshot
type errMsg error

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchMetrics(m.daemonURL),
	)
}

// tick creates a tick command for auto-refresh
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchMetrics polls the daemon's status and sync endpoints
func fetchMetrics(daemonURL string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		client := NewStatusClient(daemonURL)

		status, err := client.Status(ctx)
		if err != nil {
			return errMsg(err)
		}

		syncResp, err := client.Sync(ctx)
		if err != nil {
			return errMsg(err)
		}

		snap := MetricsSnapshot{
			SyncTotal:   syncResp.Stats.Total,
			SyncPending: syncResp.Stats.Pending,
			SyncSyncing: syncResp.Stats.Syncing,
			SyncSynced:  syncResp.Stats.Synced,
			SyncFailed:  syncResp.Stats.Failed,
		}

		if status.Session != nil {
			snap.HasSession = true
			snap.SessionID = status.Session.SessionID
			snap.ProjectHash = status.Session.ProjectHash
			snap.LifecycleStatus = status.Session.LifecycleStatus
			snap.TokenCount = status.Session.TokenCount
			snap.MaxContextTokens = status.Session.MaxContextTokens
			snap.UsagePercent = status.Session.UsagePercent
			snap.FCCount = status.Session.FCCount
		}

		return metricsMsg(snap)
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
			return m, fetchMetrics(m.daemonURL)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchMetrics(m.daemonURL),
		)

	case metricsMsg:
		newMetrics := MetricsSnapshot(msg)

		newMetrics.UsageHistory = appendToHistory(m.metrics.UsageHistory, float64(newMetrics.UsagePercent))
		newMetrics.TokenCountHistory = appendToHistory(m.metrics.TokenCountHistory, float64(newMetrics.TokenCount))
		newMetrics.SyncPendingHistory = appendToHistory(m.metrics.SyncPendingHistory, float64(newMetrics.SyncPending))

		m.metrics = newMetrics
		m.lastUpdate = time.Now()
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
	header := headerStyle.Render("ctxrd Monitor")

	var content string
	content += "\n"
	content += errorStyle.Render("⚠ Cannot connect to ctxrd daemon") + "\n"
	content += "\n"
	content += dimStyle.Render("URL: ") + valueStyle.Render(m.daemonURL) + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n"
	content += "\n"
	content += dimStyle.Render("Please ensure:") + "\n"
	content += dimStyle.Render("  1. ctxrd is running") + "\n"
	content += dimStyle.Render("  2. its HTTP surface is reachable at the URL above") + "\n"
	content += "\n"
	content += footerStyle.Render("[q] quit  [r] retry") + "\n"

	box := containerStyle.Render(header + "\n" + content)
	return box
}

// renderDashboard renders the main dashboard view with sparklines and progress bars
func (m Model) renderDashboard() string {
	var content string

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}

	header := headerStyle.Render(" ctxrd Monitor ")
	statusBadge := getStatusBadge(m.err, m.metrics.HasSession)
	headerLine := fmt.Sprintf("%s   %s", statusBadge, dimStyle.Render(lastUpdateStr))

	content += header + "\n"
	content += headerLine + "\n"

	content += "\n" + sectionStyle.Render("┃ Session") + "\n"
	if !m.metrics.HasSession {
		content += labelStyle.Render("  No active session") + "\n"
	} else {
		content += labelStyle.Render("  Project: ") +
			valueStyle.Render(m.metrics.ProjectHash) +
			"  " + dimStyle.Render(m.metrics.LifecycleStatus) + "\n"
		content += labelStyle.Render("  Function calls: ") +
			valueStyle.Render(fmt.Sprintf("%d", m.metrics.FCCount)) + "\n"
	}

	// Context Window section
	content += "\n" + sectionStyle.Render("┃ Context Window") + "\n"

	usageSparkline := createSparkline(m.metrics.UsageHistory)
	usageBadge := getUsageBadge(m.metrics.UsagePercent)
	content += labelStyle.Render("  Usage: ") +
		valueStyle.Render(fmt.Sprintf("%dK / %dK tokens", m.metrics.TokenCount/1000, m.metrics.MaxContextTokens/1000)) +
		" " + usageBadge +
		"   " + usageSparkline + "\n"

	usagePercent := float64(m.metrics.UsagePercent) / 100.0
	if usagePercent > 1.0 {
		usagePercent = 1.0
	}
	content += labelStyle.Render("  Progress: ") +
		m.usageProgress.ViewAs(usagePercent) +
		" " + dimStyle.Render(FormatPercentage(usagePercent)) + "\n"

	tokenSparkline := createSparkline(m.metrics.TokenCountHistory)
	content += labelStyle.Render("  Tokens: ") +
		valueStyle.Render(fmt.Sprintf("%d", m.metrics.TokenCount)) +
		"            " + tokenSparkline + "\n"

	// Sync Queue section
	content += "\n" + sectionStyle.Render("┃ Sync Queue") + "\n"

	syncSparkline := createSparkline(m.metrics.SyncPendingHistory)
	content += labelStyle.Render("  Pending: ") +
		valueStyle.Render(fmt.Sprintf("%d", m.metrics.SyncPending)) +
		"            " + syncSparkline + "\n"

	syncPercent := 0.0
	if m.metrics.SyncTotal > 0 {
		syncPercent = float64(m.metrics.SyncSynced) / float64(m.metrics.SyncTotal)
	}
	content += labelStyle.Render("  Synced: ") +
		m.syncProgress.ViewAs(syncPercent) +
		" " + dimStyle.Render(fmt.Sprintf("%d/%d", m.metrics.SyncSynced, m.metrics.SyncTotal)) + "\n"

	content += labelStyle.Render("  Syncing: ") +
		valueStyle.Render(fmt.Sprintf("%d", m.metrics.SyncSyncing)) +
		"  " +
		labelStyle.Render("Failed: ") +
		valueStyle.Render(fmt.Sprintf("%d", m.metrics.SyncFailed)) + "\n"

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %s", FormatDuration(int64(m.interval.Seconds()))))

	content += "\n" + footer

	return containerStyle.Render(content)
}
