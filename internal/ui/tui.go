package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer drives the bubbletea view for interactive terminals.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *runModel
	tracker *Tracker
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates the TTY renderer. Fails when the output is
// not a terminal so NewRenderer can fall back to plain.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewTracker()
	model := newRunModel(tracker, cfg.Repository)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	_, r.cancel = context.WithCancel(ctx)

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	opts = append(opts, tea.WithAltScreen())

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()

	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.tracker.Stats().Stage {
		r.tracker.SetStage(event.Stage, event.Total)
	}
	r.tracker.Update(event.Current, event.CurrentFile)

	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.AddError(event)

	if r.program != nil {
		r.program.Send(issueMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.SetStage(StageComplete, 0)

	if r.program != nil {
		r.program.Send(doneMsg(stats))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	if r.program != nil {
		r.program.Quit()

		// Bounded wait so an unresponsive view cannot hang Ctrl+C.
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}

	return nil
}

// bubbletea message types.
type progressMsg ProgressEvent
type issueMsg ErrorEvent
type doneMsg CompletionStats
type tickMsg time.Time

// runModel is the bubbletea model for one indexing run.
type runModel struct {
	tracker    *Tracker
	width      int
	height     int
	quitting   bool
	complete   bool
	stats      CompletionStats
	spinner    spinner.Model
	bar        progress.Model
	styles     Styles
	repository string
}

func newRunModel(tracker *Tracker, repository string) *runModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	bar := progress.New(
		progress.WithSolidFill(ColorAccent),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &runModel{
		tracker:    tracker,
		spinner:    s,
		bar:        bar,
		styles:     DefaultStyles(),
		width:      80,
		height:     24,
		repository: repository,
	}
}

// Init implements tea.Model.
func (m *runModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = msg.Width - 20
		if m.bar.Width < 20 {
			m.bar.Width = 20
		}

	case progressMsg, issueMsg:
		// State lives in the tracker; the message only wakes the view.
		return m, nil

	case doneMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *runModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	sections := []string{
		m.renderStages(),
		m.renderDivider(contentWidth),
		m.renderProgress(),
		m.renderRate(),
		m.renderDivider(contentWidth),
		m.renderHistory(contentWidth),
	}
	if file := m.tracker.Stats().CurrentFile; file != "" {
		sections = append(sections, m.renderDivider(contentWidth), m.renderCurrentFile(contentWidth))
	}

	content := strings.Join(sections, "\n")

	title := "MnemoLite"
	if m.repository != "" {
		title = "MnemoLite " + m.styles.Label.Render(m.repository)
	}
	panel := m.wrapInPanel(title, content, contentWidth)

	return panel + "\n" + m.renderStatusBar()
}

// renderStages draws the stage rail: done, active with spinner, pending.
func (m *runModel) renderStages() string {
	current := m.tracker.Stats().Stage

	stages := []struct {
		stage Stage
		name  string
	}{
		{StageScanning, "Scan"},
		{StageIndexing, "Index"},
		{StageGraph, "Graph"},
	}

	var parts []string
	for _, s := range stages {
		var icon string
		var style lipgloss.Style
		switch {
		case s.stage < current:
			icon = "●"
			style = m.styles.Success
		case s.stage == current:
			icon = m.spinner.View()
			style = m.styles.Active
		default:
			icon = "○"
			style = m.styles.Dim
		}
		parts = append(parts, style.Render(icon+" "+s.name))
	}

	return strings.Join(parts, m.styles.Dim.Render(" › "))
}

func (m *runModel) renderProgress() string {
	snap := m.tracker.Stats()

	if snap.Total == 0 {
		return fmt.Sprintf("%s %s...\n%s",
			m.spinner.View(),
			snap.Stage.String(),
			m.styles.Dim.Render("Preparing..."))
	}

	bar := m.bar.ViewAs(snap.Fraction)
	pct := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", snap.Fraction*100))
	count := m.styles.Label.Render(fmt.Sprintf("%d / %d files", snap.Current, snap.Total))

	return fmt.Sprintf("%s  %s\n%s", bar, pct, count)
}

func (m *runModel) renderRate() string {
	snap := m.tracker.Stats()

	var parts []string
	rate := fmt.Sprintf("%.0f files/s", snap.Rate.Current)
	if snap.Rate.Peak > 0 {
		rate += fmt.Sprintf(" (peak %.0f)", snap.Rate.Peak)
	}
	parts = append(parts, m.styles.Label.Render(rate))

	if eta := snap.ETA; eta > 0 {
		parts = append(parts, m.styles.Label.Render("ETA "+formatDuration(eta)))
	}

	return strings.Join(parts, m.styles.Dim.Render("   "))
}

func (m *runModel) renderHistory(width int) string {
	chartWidth := width - 14
	if chartWidth < 10 {
		chartWidth = 10
	}
	chart := m.tracker.History(chartWidth)
	return m.styles.Chart.Render(chart) + " " + m.styles.Dim.Render("throughput")
}

func (m *runModel) renderCurrentFile(width int) string {
	file := m.tracker.Stats().CurrentFile
	if file == "" {
		return ""
	}
	return m.styles.Dim.Render(truncatePath(file, width-2))
}

func (m *runModel) renderDivider(width int) string {
	return m.styles.Border.Render(strings.Repeat("─", width))
}

func (m *runModel) wrapInPanel(title, content string, width int) string {
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(content),
	)
}

func (m *runModel) renderStatusBar() string {
	snap := m.tracker.Stats()

	var parts []string
	if snap.WarnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", snap.WarnCount)))
	}
	if snap.ErrorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d failed", snap.ErrorCount)))
	}

	hint := m.styles.Dim.Render("q to quit")
	if len(parts) == 0 {
		return hint
	}
	sep := m.styles.Dim.Render("  │  ")
	return strings.Join(parts, sep) + sep + hint
}

// renderComplete draws the final summary panel.
func (m *runModel) renderComplete() string {
	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	var lines []string
	lines = append(lines, m.styles.Success.Render("✓ Indexing Complete"), "")

	row := func(label string, value string) string {
		return fmt.Sprintf("%-10s %s", m.styles.Label.Render(label), m.styles.Active.Render(value))
	}

	lines = append(lines,
		row("Files:", fmt.Sprintf("%d (%d indexed, %d cached, %d skipped)",
			m.stats.Files, m.stats.Indexed, m.stats.Cached, m.stats.Skipped)),
		row("Chunks:", fmt.Sprintf("%d", m.stats.Chunks)),
		row("Graph:", fmt.Sprintf("%d nodes, %d edges", m.stats.Nodes, m.stats.Edges)),
		row("Duration:", formatDuration(m.stats.Duration)),
	)

	if m.stats.Failed > 0 || m.stats.Warnings > 0 {
		lines = append(lines, "")
		if m.stats.Failed > 0 {
			lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d files failed", m.stats.Failed)))
		}
		if m.stats.Warnings > 0 {
			lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", m.stats.Warnings)))
		}
	}

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorGreen)).
		Padding(1, 2).
		Width(contentWidth)

	return panel.Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration renders a duration as 4s / 2m 15s / 1h 3m.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, mins)
}

// truncatePath shortens a path to maxLen, preserving the file name.
func truncatePath(path string, maxLen int) string {
	if path == "" || len(path) <= maxLen {
		return path
	}

	parts := strings.Split(path, "/")
	if len(parts) == 1 {
		if maxLen < 4 {
			return "..."
		}
		return "..." + path[len(path)-maxLen+3:]
	}

	name := parts[len(parts)-1]
	if len(name)+4 > maxLen {
		return "..." + name[len(name)-maxLen+3:]
	}

	remaining := maxLen - len(name) - 4
	prefix := strings.Join(parts[:len(parts)-1], "/")
	if len(prefix) <= remaining {
		return path
	}
	return "..." + prefix[len(prefix)-remaining:] + "/" + name
}

var _ Renderer = (*TUIRenderer)(nil)
