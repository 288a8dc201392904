// Package statsui provides the Bubble Tea history browser.
package statsui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/tapas/internal/model"
	"github.com/verte-zerg/tapas/internal/stats"
)

const (
	tabOverview = iota
	tabAttempts
	tabDetail
)

var metrics = []string{"score", "mae", "mean", "spread", "miss", "extra"}

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Source is the part of the store the browser reads.
type Source interface {
	stats.AttemptLister
	ListPairs(ctx context.Context, attemptID string) ([]model.MatchedPair, error)
}

// Model implements the Bubble Tea history UI.
type Model struct {
	store Source
	cfg   model.HistoryConfig
	now   func() time.Time

	report stats.Report
	errMsg string

	tabs      []string
	activeTab int
	viewports []viewport.Model
	attempts  table.Model

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string
}

// NewModel constructs a history browser.
func NewModel(st Source, cfg model.HistoryConfig) *Model {
	if cfg.Metric == "" {
		cfg.Metric = metrics[0]
	}
	m := &Model{
		store: st,
		cfg:   cfg,
		now:   time.Now,
		tabs:  []string{"Overview", "Attempts", "Detail"},
	}
	m.initInputs()
	m.attempts = buildAttemptTable(nil, 0, 1)
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
	m.refreshReport()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || (!m.filterMode && msg.String() == "q") {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m *Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "left", "h":
		m.moveTab(-1)
		return m, tea.ClearScreen
	case "right", "l":
		m.moveTab(1)
		return m, tea.ClearScreen
	case "m":
		m.cfg.Metric = nextMetric(m.cfg.Metric)
		m.refreshReport()
		return m, nil
	case "=":
		m.cfg.Window++
		m.refreshReport()
		return m, nil
	case "-":
		m.cfg.Window = max(1, m.cfg.Window-1)
		m.refreshReport()
		return m, nil
	case "/":
		return m.startFilter()
	case "enter":
		if m.activeTab == tabAttempts {
			m.renderDetail()
			m.activeTab = tabDetail
			m.attempts.Blur()
			return m, tea.ClearScreen
		}
		return m, nil
	}
	if m.activeTab == tabAttempts {
		var cmd tea.Cmd
		m.attempts, cmd = m.attempts.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) initInputs() {
	m.filterInputs = []textinput.Model{
		newFilterInput("Preset: "),
		newFilterInput("Since (YYYY-MM-DD): "),
		newFilterInput("Last: "),
		newFilterInput("Trend window: "),
	}
	m.setInputsFromConfig()
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) setInputsFromConfig() {
	m.filterInputs[0].SetValue(m.cfg.Preset)
	since := ""
	if m.cfg.Since != nil {
		since = m.cfg.Since.Format("2006-01-02")
	}
	m.filterInputs[1].SetValue(since)
	last := ""
	if m.cfg.Last > 0 {
		last = strconv.Itoa(m.cfg.Last)
	}
	m.filterInputs[2].SetValue(last)
	m.filterInputs[3].SetValue(strconv.Itoa(max(1, m.cfg.Window)))
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := max(1, lipgloss.Height(activeNavStyle.Render("X")))
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.filterMode && m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = max(1, m.height-headerHeight-footerHeight)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = bodyHeight
	}
	m.attempts.SetWidth(m.width)
	m.attempts.SetHeight(max(1, bodyHeight-1))
	for i := range m.filterInputs {
		m.filterInputs[i].Width = max(10, m.width-lipgloss.Width(m.filterInputs[i].Prompt)-2)
	}
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	m.activeTab = (m.activeTab + delta + count) % count
	if m.activeTab == tabAttempts {
		m.attempts.Focus()
	} else {
		m.attempts.Blur()
	}
	if m.activeTab == tabDetail {
		m.renderDetail()
	}
}

func nextMetric(current string) string {
	for i, name := range metrics {
		if name == current {
			return metrics[(i+1)%len(metrics)]
		}
	}
	return metrics[0]
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	return padLines(m.renderTabs(), m.width) + "\n" + padLines(m.renderFilterSummary(), m.width)
}

func (m *Model) renderFilterSummary() string {
	preset := m.cfg.Preset
	if preset == "" {
		preset = "any"
	}
	since := "any"
	if m.cfg.Since != nil {
		since = m.cfg.Since.Format("2006-01-02")
	}
	last := "all"
	if m.cfg.Last > 0 {
		last = strconv.Itoa(m.cfg.Last)
	}
	summary := fmt.Sprintf("Settings: preset=%s  since=%s  last=%s  metric=%s  window=%d",
		preset, since, last, m.cfg.Metric, max(1, m.cfg.Window))
	return headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	help := "Nav: left/right  Scroll: up/down  Metric: m  Window: -/=  Settings: /  Quit: q"
	if m.activeTab == tabAttempts {
		help = "Nav: left/right  Select: up/down  Details: enter  Settings: /  Quit: q"
	}
	help = headerStyle.Render(help)
	if m.errMsg != "" {
		return help + "\n" + errorStyle.Render(m.errMsg)
	}
	return help
}

func (m *Model) renderFilterForm() string {
	lines := []string{"Settings (enter to apply, esc to cancel)"}
	for _, input := range m.filterInputs {
		lines = append(lines, input.View())
	}
	if m.filterError != "" {
		lines = append(lines, errorStyle.Render(m.filterError))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderBody(height int) string {
	if m.filterMode {
		return fitLines(m.renderFilterForm(), m.width, height)
	}
	if m.activeTab == tabAttempts {
		if len(m.report.Attempts) == 0 {
			return fitLines("No attempts found.", m.width, height)
		}
		return fitLines(tableMutedStyle.Render(m.attempts.View()), m.width, height)
	}
	return fitLines(m.viewports[m.activeTab].View(), m.width, height)
}

func (m *Model) refreshReport() {
	report, err := stats.BuildReport(context.Background(), m.store, m.cfg)
	if err != nil {
		m.errMsg = err.Error()
		for i := range m.viewports {
			m.viewports[i].SetContent("Failed to load attempts.")
		}
		return
	}
	m.errMsg = ""
	m.report = report
	_, bodyHeight, _ := m.layoutHeights()
	m.attempts = buildAttemptTable(report.Attempts, m.width, bodyHeight)
	if m.activeTab == tabAttempts {
		m.attempts.Focus()
	}
	m.renderTabContents()
}

func (m *Model) renderTabContents() {
	if m.errMsg != "" {
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.viewports[tabOverview].SetContent(renderOverview(m.report, m.now(), width))
	m.renderDetail()
}

func renderOverview(r stats.Report, now time.Time, width int) string {
	if len(r.Attempts) == 0 {
		return "No attempts found."
	}
	s := r.Summary
	cards := []string{
		metricCard("Attempts", strconv.Itoa(s.Count)),
		metricCard("Avg score", fmt.Sprintf("%.1f", s.AvgScore)),
		metricCard("Best score", fmt.Sprintf("%.1f", s.BestScore)),
		metricCard("Median MAE", fmt.Sprintf("%.1f ms", s.MedianMAE*1000)),
		metricCard("Miss rate", fmt.Sprintf("%.1f%%", s.AvgMissRate*100)),
	}
	var summary string
	if width < 80 {
		summary = strings.Join(cards, "\n")
	} else {
		row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1], cards[2])
		row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[3], cards[4])
		summary = lipgloss.JoinVertical(lipgloss.Left, row1, row2)
	}
	var buf bytes.Buffer
	if err := stats.RenderReport(&buf, r, now, width); err != nil {
		return fmt.Sprintf("Failed to render report: %v", err)
	}
	return strings.TrimRight(summary+"\n\n"+buf.String(), "\n")
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func (m *Model) selectedAttempt() (model.Attempt, bool) {
	n := len(m.report.Attempts)
	cursor := m.attempts.Cursor()
	if n == 0 || cursor < 0 || cursor >= n {
		return model.Attempt{}, false
	}
	// The table lists newest first.
	return m.report.Attempts[n-1-cursor], true
}

func (m *Model) renderDetail() {
	a, ok := m.selectedAttempt()
	if !ok {
		m.viewports[tabDetail].SetContent("No attempt selected.")
		return
	}
	pairs, err := m.store.ListPairs(context.Background(), a.ID)
	if err != nil {
		m.viewports[tabDetail].SetContent(fmt.Sprintf("Failed to load pairs: %v", err))
		return
	}
	m.viewports[tabDetail].SetContent(renderDetail(a, pairs))
}

func renderDetail(a model.Attempt, pairs []model.MatchedPair) string {
	var buf bytes.Buffer
	preset := a.PresetName
	if preset == "" {
		preset = "ad hoc"
	}
	fmt.Fprintf(&buf, "%s at %.0f BPM, %s\n\n", preset, a.Tempo, a.CreatedAt.Local().Format("2006-01-02 15:04"))
	if err := stats.RenderAttempt(&buf, a); err != nil {
		return fmt.Sprintf("Failed to render attempt: %v", err)
	}
	buf.WriteString("\n")
	for _, p := range pairs {
		switch p.Kind {
		case model.PairMatch:
			fmt.Fprintf(&buf, "%4d  %-5s  %8.3fs  %+7.1f ms\n", p.EventIndex, p.Kind, p.Expected, p.Error*1000)
		case model.PairMiss:
			fmt.Fprintf(&buf, "%4d  %-5s  %8.3fs\n", p.EventIndex, p.Kind, p.Expected)
		default:
			fmt.Fprintf(&buf, "%4s  %-5s  %8.3fs\n", "-", p.Kind, p.Detected)
		}
	}
	return strings.TrimRight(buf.String(), "\n")
}

func buildAttemptTable(attempts []model.Attempt, width, height int) table.Model {
	columns := []table.Column{
		{Title: "When", Width: 16},
		{Title: "Preset", Width: 14},
		{Title: "BPM", Width: 5},
		{Title: "Score", Width: 6},
		{Title: "MAE ms", Width: 7},
		{Title: "Miss", Width: 5},
		{Title: "Extra", Width: 5},
	}
	rows := make([]table.Row, 0, len(attempts))
	for i := len(attempts) - 1; i >= 0; i-- {
		a := attempts[i]
		preset := a.PresetName
		if preset == "" {
			preset = "-"
		}
		rows = append(rows, table.Row{
			a.CreatedAt.Local().Format("2006-01-02 15:04"),
			preset,
			fmt.Sprintf("%.0f", a.Tempo),
			fmt.Sprintf("%.1f", a.Metrics.Score),
			fmt.Sprintf("%.1f", a.Metrics.MeanAbsError*1000),
			strconv.Itoa(a.Metrics.Misses),
			strconv.Itoa(a.Metrics.Extras),
		})
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(max(1, height-1)),
	)
	if width > 0 {
		t.SetWidth(width)
	}
	t.SetStyles(tableStyles())
	return t
}

func tableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterError = ""
	m.setInputsFromConfig()
	return m, m.setFilterIndex(0)
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterError = ""
		return m, nil
	case tea.KeyEnter:
		if err := m.applyFilter(); err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.filterMode = false
		m.filterError = ""
		m.refreshReport()
		m.updateLayout()
		return m, nil
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	m.filterIndex = (idx + count) % count
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) applyFilter() error {
	preset := strings.TrimSpace(m.filterInputs[0].Value())

	var since *time.Time
	if sinceInput := strings.TrimSpace(m.filterInputs[1].Value()); sinceInput != "" {
		parsed, err := time.ParseInLocation("2006-01-02", sinceInput, time.Local)
		if err != nil {
			return fmt.Errorf("invalid since date (expected YYYY-MM-DD)")
		}
		since = &parsed
	}

	last := 0
	if lastInput := strings.TrimSpace(m.filterInputs[2].Value()); lastInput != "" {
		parsed, err := strconv.Atoi(lastInput)
		if err != nil || parsed < 0 {
			return fmt.Errorf("invalid last value (use 0 or positive integer)")
		}
		last = parsed
	}

	window := 1
	if windowInput := strings.TrimSpace(m.filterInputs[3].Value()); windowInput != "" {
		parsed, err := strconv.Atoi(windowInput)
		if err != nil || parsed < 1 {
			return fmt.Errorf("invalid trend window (use integer >= 1)")
		}
		window = parsed
	}

	m.cfg = model.HistoryConfig{
		Preset: preset,
		Since:  since,
		Last:   last,
		Metric: m.cfg.Metric,
		Window: window,
	}
	return nil
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	if lineWidth := lipgloss.Width(line); lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
