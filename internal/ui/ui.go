// Package ui provides a terminal dashboard for taskpulse.
// Uses Bubbletea for interactive display of tasks and metric health.
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/taskpulse/internal/metrics"
	"github.com/marcus/taskpulse/internal/tasks"
)

// Panel represents which panel is currently focused.
type Panel int

const (
	PanelTasks Panel = iota
	PanelMetrics
)

// MetricRow is one metric's latest reading for display.
type MetricRow struct {
	Name      string
	Unit      string
	Value     float64
	Timestamp time.Time
	Breach    metrics.BreachLevel
	HasSample bool
}

// Snapshot is one refresh worth of dashboard data.
type Snapshot struct {
	Tasks     []tasks.Task
	Earnings  float64
	Metrics   []MetricRow
	Refreshed time.Time
}

// SnapshotFunc produces a fresh Snapshot. Called on every tick.
type SnapshotFunc func() (Snapshot, error)

// Model holds the TUI state.
type Model struct {
	width       int
	height      int
	activePanel Panel
	quitting    bool

	snapshot Snapshot
	loadErr  error
	refresh  SnapshotFunc

	taskScroll   int
	selectedTask int
	metricScroll int

	progressTick int

	styles *Styles
}

// Styles holds lipgloss styles for the UI.
type Styles struct {
	ActiveBorder   lipgloss.Style
	InactiveBorder lipgloss.Style

	Title     lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Highlight lipgloss.Style
	Muted     lipgloss.Style

	StatusOK      lipgloss.Style
	StatusWarn    lipgloss.Style
	StatusError   lipgloss.Style
	StatusRunning lipgloss.Style

	RowSelected lipgloss.Style

	HelpKey  lipgloss.Style
	HelpText lipgloss.Style
}

// newStyles creates the default style set.
func newStyles() *Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#666", Dark: "#888"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	green := lipgloss.AdaptiveColor{Light: "#22863a", Dark: "#3fb950"}
	yellow := lipgloss.AdaptiveColor{Light: "#b08800", Dark: "#d29922"}
	red := lipgloss.AdaptiveColor{Light: "#cb2431", Dark: "#f85149"}
	blue := lipgloss.AdaptiveColor{Light: "#0366d6", Dark: "#58a6ff"}

	return &Styles{
		ActiveBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlight),

		InactiveBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight).
			MarginBottom(1),

		Label: lipgloss.NewStyle().
			Foreground(subtle),

		Value: lipgloss.NewStyle().
			Bold(true),

		Highlight: lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true),

		Muted: lipgloss.NewStyle().
			Foreground(subtle),

		StatusOK: lipgloss.NewStyle().
			Foreground(green).
			Bold(true),

		StatusWarn: lipgloss.NewStyle().
			Foreground(yellow).
			Bold(true),

		StatusError: lipgloss.NewStyle().
			Foreground(red).
			Bold(true),

		StatusRunning: lipgloss.NewStyle().
			Foreground(blue).
			Bold(true),

		RowSelected: lipgloss.NewStyle().
			Background(highlight).
			Foreground(lipgloss.Color("#fff")).
			Bold(true),

		HelpKey: lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true),

		HelpText: lipgloss.NewStyle().
			Foreground(subtle),
	}
}

// tickMsg is sent periodically to update the UI.
type tickMsg time.Time

// snapshotMsg carries the result of a refresh.
type snapshotMsg struct {
	snapshot Snapshot
	err      error
}

// New creates a new dashboard model.
func New(refresh SnapshotFunc) *Model {
	return &Model{
		width:       80,
		height:      24,
		activePanel: PanelTasks,
		refresh:     refresh,
		styles:      newStyles(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.refreshCmd(),
		tickCmd(),
		tea.EnterAltScreen,
	)
}

// tickCmd returns a command that ticks every second.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refreshCmd() tea.Cmd {
	refresh := m.refresh
	if refresh == nil {
		return nil
	}
	return func() tea.Msg {
		snapshot, err := refresh()
		return snapshotMsg{snapshot: snapshot, err: err}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.progressTick++
		return m, tea.Batch(tickCmd(), m.refreshCmd())

	case snapshotMsg:
		m.loadErr = msg.err
		if msg.err == nil {
			m.snapshot = msg.snapshot
			if m.selectedTask >= len(m.snapshot.Tasks) {
				m.selectedTask = max(len(m.snapshot.Tasks)-1, 0)
			}
		}
		return m, nil
	}

	return m, nil
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab", "right", "l":
		m.activePanel = (m.activePanel + 1) % 2
		return m, nil

	case "shift+tab", "left", "h":
		m.activePanel = (m.activePanel + 1) % 2
		return m, nil

	case "up", "k":
		return m.handleUp(), nil

	case "down", "j":
		return m.handleDown(), nil

	case "r":
		return m, m.refreshCmd()
	}

	return m, nil
}

// handleUp handles up arrow / k key.
func (m Model) handleUp() Model {
	switch m.activePanel {
	case PanelTasks:
		if m.selectedTask > 0 {
			m.selectedTask--
		}
	case PanelMetrics:
		if m.metricScroll > 0 {
			m.metricScroll--
		}
	}
	return m
}

// handleDown handles down arrow / j key.
func (m Model) handleDown() Model {
	switch m.activePanel {
	case PanelTasks:
		if m.selectedTask < len(m.snapshot.Tasks)-1 {
			m.selectedTask++
		}
	case PanelMetrics:
		if m.metricScroll < len(m.snapshot.Metrics)-1 {
			m.metricScroll++
		}
	}
	return m
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	contentHeight := m.height - 3 // help bar and padding
	leftWidth := m.width / 2
	rightWidth := m.width - leftWidth

	taskPanel := m.renderTaskPanel(leftWidth-2, contentHeight-2)
	metricPanel := m.renderMetricPanel(rightWidth-2, contentHeight-2)

	taskBorder := m.getBorder(PanelTasks).Width(leftWidth - 2).Height(contentHeight - 2)
	metricBorder := m.getBorder(PanelMetrics).Width(rightWidth - 2).Height(contentHeight - 2)

	row := lipgloss.JoinHorizontal(
		lipgloss.Top,
		taskBorder.Render(taskPanel),
		metricBorder.Render(metricPanel),
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		row,
		m.renderHelpBar(),
	)
}

// getBorder returns the appropriate border style for a panel.
func (m Model) getBorder(panel Panel) lipgloss.Style {
	if m.activePanel == panel {
		return m.styles.ActiveBorder
	}
	return m.styles.InactiveBorder
}

// renderTaskPanel renders the task list with state counts and earnings.
func (m Model) renderTaskPanel(width, height int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Tasks"))
	b.WriteString("\n\n")

	if m.loadErr != nil {
		b.WriteString(m.styles.StatusError.Render("Error: " + m.loadErr.Error()))
		return b.String()
	}

	counts := map[tasks.State]int{}
	for _, task := range m.snapshot.Tasks {
		counts[task.State]++
	}
	summary := fmt.Sprintf("%d pending  %d active  %d done  %d submitted  %d expired",
		counts[tasks.Pending], counts[tasks.InProgress], counts[tasks.Completed],
		counts[tasks.Submitted], counts[tasks.Expired])
	b.WriteString(m.styles.Label.Render(summary))
	b.WriteString("\n")
	b.WriteString(m.styles.Label.Render("Earnings: "))
	b.WriteString(m.styles.Highlight.Render(fmt.Sprintf("%.2f PFT", m.snapshot.Earnings)))
	b.WriteString("\n\n")

	if len(m.snapshot.Tasks) == 0 {
		b.WriteString(m.styles.Muted.Render("No tasks"))
		return b.String()
	}

	visible := height - 7
	if visible < 1 {
		visible = 1
	}

	if m.selectedTask < m.taskScroll {
		m.taskScroll = m.selectedTask
	} else if m.selectedTask >= m.taskScroll+visible {
		m.taskScroll = m.selectedTask - visible + 1
	}

	for i := m.taskScroll; i < len(m.snapshot.Tasks) && i < m.taskScroll+visible; i++ {
		task := m.snapshot.Tasks[i]

		icon, style := m.taskIndicator(task.State)
		line := fmt.Sprintf(" %s %-10s %s", style.Render(icon), task.ID, truncate(task.Description, width-30))

		switch task.State {
		case tasks.Pending, tasks.InProgress:
			line += m.styles.Muted.Render(" " + dueLabel(task.Deadline))
		}

		if i == m.selectedTask && m.activePanel == PanelTasks {
			line = m.styles.RowSelected.Render(line)
		}

		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(m.snapshot.Tasks) > visible {
		scrollInfo := fmt.Sprintf(" [%d/%d]", m.selectedTask+1, len(m.snapshot.Tasks))
		b.WriteString(m.styles.Muted.Render(scrollInfo))
	}

	return b.String()
}

// taskIndicator maps a task state to its icon and style.
func (m Model) taskIndicator(state tasks.State) (string, lipgloss.Style) {
	switch state {
	case tasks.Pending:
		return "o", m.styles.Muted
	case tasks.InProgress:
		return m.spinner(), m.styles.StatusRunning
	case tasks.Completed:
		return "*", m.styles.StatusOK
	case tasks.Submitted:
		return "$", m.styles.Highlight
	case tasks.Expired:
		return "x", m.styles.StatusError
	default:
		return "?", m.styles.Muted
	}
}

// spinner returns a spinner character based on the current tick.
func (m Model) spinner() string {
	frames := []string{"|", "/", "-", "\\"}
	return frames[m.progressTick%len(frames)]
}

// renderMetricPanel renders the latest metric readings with breach coloring.
func (m Model) renderMetricPanel(width, height int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Metrics"))
	b.WriteString("\n\n")

	if len(m.snapshot.Metrics) == 0 {
		b.WriteString(m.styles.Muted.Render("No metrics registered"))
		return b.String()
	}

	visible := height - 5
	if visible < 1 {
		visible = 1
	}

	start := m.metricScroll
	if start+visible > len(m.snapshot.Metrics) {
		start = max(len(m.snapshot.Metrics)-visible, 0)
	}

	for i := start; i < len(m.snapshot.Metrics) && i < start+visible; i++ {
		row := m.snapshot.Metrics[i]

		var valueStr string
		style := m.styles.StatusOK
		if !row.HasSample {
			valueStr = "no data"
			style = m.styles.Muted
		} else {
			valueStr = fmt.Sprintf("%.2f %s", row.Value, row.Unit)
			switch row.Breach {
			case metrics.BreachWarning:
				style = m.styles.StatusWarn
			case metrics.BreachCritical:
				style = m.styles.StatusError
			}
		}

		line := fmt.Sprintf(" %-20s %s", truncate(row.Name, 20), style.Render(valueStr))
		if row.HasSample {
			line += m.styles.Muted.Render("  " + row.Timestamp.Format("15:04:05"))
		}

		b.WriteString(line)
		b.WriteString("\n")
	}

	if !m.snapshot.Refreshed.IsZero() {
		b.WriteString("\n")
		b.WriteString(m.styles.Muted.Render("Refreshed " + m.snapshot.Refreshed.Format("15:04:05")))
	}

	return b.String()
}

// renderHelpBar renders the help bar at the bottom.
func (m Model) renderHelpBar() string {
	helpItems := []struct {
		key  string
		desc string
	}{
		{"tab", "switch panel"},
		{"j/k", "up/down"},
		{"r", "refresh"},
		{"q", "quit"},
	}

	var parts []string
	for _, item := range helpItems {
		parts = append(parts, fmt.Sprintf("%s %s",
			m.styles.HelpKey.Render(item.key),
			m.styles.HelpText.Render(item.desc),
		))
	}

	return "  " + strings.Join(parts, "  |  ")
}

// dueLabel formats how much time remains before a deadline.
func dueLabel(deadline time.Time) string {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return "due now"
	}
	return "due in " + formatDuration(remaining)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

func truncate(s string, maxLen int) string {
	if maxLen <= 3 {
		return s
	}
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Run starts the dashboard.
func (m *Model) Run() error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
