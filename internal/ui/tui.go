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

// stopTimeout bounds how long Stop waits for the program to exit.
const stopTimeout = 2 * time.Second

// TUIRenderer draws build progress with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	tracker *ProgressTracker
	model   *buildModel
	program *tea.Program
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTUIRenderer fails when the output is not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	tracker := NewProgressTracker()
	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   newBuildModel(tracker, cfg.ProjectDir, GetStyles(cfg.NoColor)),
		done:    make(chan struct{}),
	}, nil
}

// Start runs the program in the background. A second call is a no-op.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		return nil
	}

	ctx, r.cancel = context.WithCancel(ctx)
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.tracker.Apply(event)
	r.send(refreshMsg{})
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.tracker.AddError(event)
	r.send(refreshMsg{})
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.tracker.Apply(ProgressEvent{Stage: StageComplete})
	r.send(completeMsg(stats))
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Stop quits the program and waits briefly for it to restore the terminal.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p, cancel := r.program, r.cancel
	r.mu.Unlock()
	if p == nil {
		return nil
	}
	p.Quit()
	select {
	case <-r.done:
	case <-time.After(stopTimeout):
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

type refreshMsg struct{}
type completeMsg CompletionStats
type tickMsg time.Time

// buildModel is the bubbletea model of an index build.
type buildModel struct {
	tracker  *ProgressTracker
	styles   Styles
	project  string
	width    int
	spinner  spinner.Model
	bar      progress.Model
	done     bool
	quitting bool
	stats    CompletionStats
}

func newBuildModel(tracker *ProgressTracker, project string, styles Styles) *buildModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Active
	return &buildModel{
		tracker: tracker,
		styles:  styles,
		project: project,
		width:   80,
		spinner: s,
		bar:     progress.New(progress.WithSolidFill(ColorAccent), progress.WithWidth(50), progress.WithoutPercentage()),
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m *buildModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

// Update implements tea.Model.
func (m *buildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)
	case completeMsg:
		m.done = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	case tickMsg:
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *buildModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.done {
		return m.summary()
	}

	width := max(m.width-4, 40)
	stats := m.tracker.Stats()
	rule := m.styles.Border.Render(strings.Repeat("─", width))

	sections := []string{m.stages(stats.Stage), rule, m.progressLine(stats)}
	if stats.CurrentFile != "" {
		sections = append(sections, m.styles.Dim.Render(truncatePath(stats.CurrentFile, width-2)))
	}

	title := "fusesearch index"
	if m.project != "" {
		title += " • " + m.project
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(strings.Join(sections, "\n")),
	) + "\n" + m.statusBar(stats)
}

var pipeline = []Stage{StageScanning, StageChunking, StageEmbedding, StageIndexing}

func (m *buildModel) stages(current Stage) string {
	parts := make([]string, 0, len(pipeline))
	for _, s := range pipeline {
		switch {
		case s < current:
			parts = append(parts, m.styles.Success.Render("● "+s.String()))
		case s == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *buildModel) progressLine(s ProgressStats) string {
	if s.Total == 0 {
		return fmt.Sprintf("%s %s...", m.spinner.View(), s.Stage)
	}
	line := fmt.Sprintf("%s  %s\n", m.bar.ViewAs(s.Progress), m.styles.Active.Render(fmt.Sprintf("%3.0f%%", s.Progress*100)))
	detail := fmt.Sprintf("%d / %d", s.Current, s.Total)
	if s.Rate > 0 {
		detail += fmt.Sprintf("  •  %.0f/s", s.Rate)
	}
	if s.ETA > 0 {
		detail += "  •  ETA " + formatDuration(s.ETA)
	}
	return line + m.styles.Label.Render(detail)
}

func (m *buildModel) statusBar(s ProgressStats) string {
	var parts []string
	if s.Warnings > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", s.Warnings)))
	}
	if s.Errors > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", s.Errors)))
	}
	parts = append(parts, m.styles.Dim.Render("q to quit"))
	return strings.Join(parts, m.styles.Dim.Render("  │  "))
}

func (m *buildModel) summary() string {
	label := m.styles.Label.Render
	value := func(v string) string { return m.styles.Active.Render(v) }
	lines := []string{
		m.styles.Success.Render("✓ Indexing complete"),
		"",
		label("Files:    ") + value(fmt.Sprintf("%d", m.stats.Files)),
		label("Chunks:   ") + value(fmt.Sprintf("%d", m.stats.Chunks)),
		label("Duration: ") + value(formatDuration(m.stats.Duration)),
	}
	if m.stats.Embedder.Model != "" {
		lines = append(lines, label("Embedder: ")+value(fmt.Sprintf("%s (%d dims)", m.stats.Embedder.Model, m.stats.Embedder.Dimensions)))
	}
	if m.stats.Warnings > 0 {
		lines = append(lines, "", m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", m.stats.Warnings)))
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorAccent)).
		Padding(1, 2).
		Width(max(m.width-4, 40)).
		Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration renders 42s, 3m 5s or 1h 2m.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		if s := int(d.Seconds()) % 60; s != 0 {
			return fmt.Sprintf("%dm %ds", int(d.Minutes()), s)
		}
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// truncatePath shortens p to maxLen, keeping the file name.
func truncatePath(p string, maxLen int) string {
	if len(p) <= maxLen {
		return p
	}
	if maxLen < 4 {
		return "..."
	}
	slash := strings.LastIndex(p, "/")
	name := p[slash+1:]
	if slash < 0 || len(name)+4 > maxLen {
		return "..." + p[len(p)-maxLen+3:]
	}
	dir := p[:slash]
	keep := maxLen - len(name) - 4
	if keep <= 0 {
		return ".../" + name
	}
	return "..." + dir[len(dir)-keep:] + "/" + name
}

var _ Renderer = (*TUIRenderer)(nil)
