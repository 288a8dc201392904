// Package tui provides the Bubble Tea practice view.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fogleman/ease"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/verte-zerg/tapas/internal/model"
)

const (
	flashDuration = 180 * time.Millisecond
	frameInterval = 16 * time.Millisecond
	padWidth      = 9
	padHeight     = 3
	progressWidth = 40
	clickBuffer   = 64
)

var (
	idleColor   = colorful.Color{R: 0.16, G: 0.16, B: 0.16}
	clickColor  = colorful.Color{R: 0.55, G: 0.55, B: 0.55}
	accentColor = colorful.Color{R: 0.78, G: 0.60, B: 0.23}
	tapColor    = colorful.Color{R: 0.94, G: 0.94, B: 0.94}

	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	playedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Underline(true)
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

// Tapper receives keyboard taps.
type Tapper interface {
	Tap()
}

// ClickMsg reports a fired click to the view.
type ClickMsg struct {
	Event model.ClickEvent
	At    time.Time
}

// DoneMsg ends the view with the lines to show and the run error, if any.
type DoneMsg struct {
	Lines []string
	Err   error
}

type frameMsg time.Time

// FooterStats summarizes earlier attempts for the footer.
type FooterStats struct {
	Count     int
	LastScore float64
	AvgScore  float64
}

// Flash is an emitter that forwards clicks to the view without blocking the scheduler.
type Flash struct {
	clicks chan ClickMsg
	now    func() time.Time
}

// NewFlash returns a flash emitter for a view built with Options.Flash.
func NewFlash() *Flash {
	return &Flash{clicks: make(chan ClickMsg, clickBuffer), now: time.Now}
}

// Emit implements emit.Emitter. Clicks are dropped when the view falls behind.
func (f *Flash) Emit(ev model.ClickEvent) error {
	select {
	case f.clicks <- ClickMsg{Event: ev, At: f.now()}:
	default:
	}
	return nil
}

func (f *Flash) wait() tea.Cmd {
	return func() tea.Msg {
		return <-f.clicks
	}
}

// Options configure the practice view.
type Options struct {
	Title    string
	Notes    []string
	Timeline model.Timeline
	Flash    *Flash
	Tapper   Tapper
	Cancel   context.CancelFunc
	Footer   *FooterStats
	Now      func() time.Time
}

// Model implements the Bubble Tea practice UI.
type Model struct {
	opts     Options
	progress progress.Model
	now      func() time.Time

	width  int
	height int

	current     int
	fired       int
	scored      int
	flashAt     time.Time
	flashAccent float64
	tapAt       time.Time
	taps        int

	stopping bool
	done     bool
	lines    []string
	err      error
}

// NewModel constructs a practice view.
func NewModel(opts Options) *Model {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Model{
		opts: opts,
		progress: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(progressWidth),
			progress.WithoutPercentage(),
		),
		now:     now,
		current: -1,
		scored:  len(opts.Timeline.ScoredEvents()),
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{frameCmd()}
	if m.opts.Flash != nil {
		cmds = append(cmds, m.opts.Flash.wait())
	}
	return tea.Batch(cmds...)
}

func frameCmd() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(10, min(progressWidth, msg.Width-4))
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case ClickMsg:
		m.handleClick(msg)
		if m.opts.Flash != nil {
			return m, m.opts.Flash.wait()
		}
		return m, nil
	case frameMsg:
		if m.done {
			return m, nil
		}
		return m, frameCmd()
	case DoneMsg:
		m.done = true
		m.lines = msg.Lines
		m.err = msg.Err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m.stop()
	case tea.KeySpace, tea.KeyEnter:
		m.tap()
		return m, nil
	case tea.KeyRunes:
		if msg.String() == "q" {
			return m.stop()
		}
		m.tap()
		return m, nil
	default:
		return m, nil
	}
}

func (m *Model) stop() (tea.Model, tea.Cmd) {
	if m.done || m.opts.Cancel == nil {
		return m, tea.Quit
	}
	if !m.stopping {
		m.stopping = true
		m.opts.Cancel()
	}
	return m, nil
}

func (m *Model) tap() {
	if m.done || m.stopping || m.opts.Tapper == nil {
		return
	}
	m.opts.Tapper.Tap()
	m.taps++
	m.tapAt = m.now()
}

func (m *Model) handleClick(msg ClickMsg) {
	m.current = msg.Event.Index
	m.flashAt = msg.At
	m.flashAccent = msg.Event.Accent
	if msg.Event.Scored {
		m.fired++
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.done {
		return ""
	}
	now := m.now()
	sections := []string{}
	if m.opts.Title != "" {
		sections = append(sections, titleStyle.Render(m.opts.Title))
	}
	for _, note := range m.opts.Notes {
		sections = append(sections, pendingStyle.Render(note))
	}
	sections = append(sections,
		m.renderPads(now),
		m.renderStrip(),
		m.progress.ViewAs(m.fraction()),
		m.renderStatus(),
	)
	content := lipgloss.JoinVertical(lipgloss.Center, sections...)
	if m.width == 0 || m.height == 0 {
		return content + "\n" + m.renderFooter()
	}
	footer := m.renderFooter()
	if footer == "" || m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) renderPads(now time.Time) string {
	peak := clickColor
	if m.flashAccent > 0 {
		peak = clickColor.BlendLab(accentColor, m.flashAccent)
	}
	click := pad(flashColor(now.Sub(m.flashAt), m.flashAt.IsZero(), peak), "CLICK")
	tap := pad(flashColor(now.Sub(m.tapAt), m.tapAt.IsZero(), tapColor), "TAP")
	return lipgloss.JoinHorizontal(lipgloss.Center, click, "  ", tap)
}

func pad(c colorful.Color, label string) string {
	return lipgloss.NewStyle().
		Width(padWidth).
		Height(padHeight).
		Align(lipgloss.Center, lipgloss.Center).
		Background(lipgloss.Color(c.Hex())).
		Foreground(lipgloss.Color("#101010")).
		Render(label)
}

// flashColor fades from peak to idle over flashDuration.
func flashColor(elapsed time.Duration, never bool, peak colorful.Color) colorful.Color {
	if never || elapsed < 0 || elapsed >= flashDuration {
		return idleColor
	}
	level := 1 - ease.OutCubic(float64(elapsed)/float64(flashDuration))
	return idleColor.BlendLab(peak, level).Clamped()
}

func (m *Model) renderStrip() string {
	events := barEvents(m.opts.Timeline.Events, m.current)
	if len(events) == 0 {
		return ""
	}
	width := 0
	if m.width > 0 {
		width = max(1, int(float64(m.width)*0.7))
	}
	return wrapStyledCells(buildStyledCells(events, m.current), width)
}

func (m *Model) fraction() float64 {
	if m.scored == 0 {
		return 0
	}
	return float64(m.fired) / float64(m.scored)
}

func (m *Model) renderStatus() string {
	switch {
	case m.stopping:
		return pendingStyle.Render("stopping...")
	case m.current < 0:
		return pendingStyle.Render("get ready")
	}
	ev := m.opts.Timeline.Events[m.current]
	if !ev.Scored {
		return pendingStyle.Render(fmt.Sprintf("count-in %d", ev.Beat+1))
	}
	return playedStyle.Render(fmt.Sprintf("bar %d beat %d", ev.Bar+1, ev.Beat+1))
}

func (m *Model) renderFooter() string {
	segments := []string{fmt.Sprintf("Progress %d%%", int(m.fraction()*100))}
	if m.opts.Tapper != nil {
		segments = append(segments, fmt.Sprintf("Taps %d", m.taps))
	}
	if f := m.opts.Footer; f != nil && f.Count > 0 {
		segments = append(segments,
			fmt.Sprintf("Last %.1f", f.LastScore),
			fmt.Sprintf("Avg %.1f over %d", f.AvgScore, f.Count),
		)
	}
	segments = append(segments, "q to stop")
	return footerStyle.Render(strings.Join(segments, "  "))
}

// Result returns what DoneMsg delivered.
func (m *Model) Result() ([]string, error) {
	return m.lines, m.err
}
