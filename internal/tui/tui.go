// Package tui provides a Bubble Tea viewer for recorded operation logs.
package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/oprec/internal/oplog"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	kindCommandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	kindCreateStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	kindDeleteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	kindChangeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	diffAddStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	diffDelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	diffMetaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

// ── Tabs ─────────────────

type tabID int

const (
	tabTimeline tabID = iota
	tabCommands
	tabFiles
	tabSummary
	tabCount
)

var tabNames = [tabCount]string{"Timeline", "Commands", "Files", "Summary"}

// ── Model ────────────────────

// Model is the root Bubble Tea model of the viewer. The Timeline tab is a
// selectable list; entries that carry text (diffs, file content, command
// output) expand in place.
type Model struct {
	entries   []oplog.Entry
	filename  string
	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	cursor    int
	expanded  map[int]bool
}

// New creates a viewer for entries loaded from filename.
func New(entries []oplog.Entry, filename string) Model {
	return Model{
		entries:  entries,
		filename: filepath.Base(filename),
		expanded: make(map[int]bool),
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		case "1", "2", "3", "4":
			m.activeTab = tabID(msg.String()[0] - '1')
		case "up", "k":
			if m.activeTab == tabTimeline && m.cursor > 0 {
				m.cursor--
				m.refresh(tabTimeline)
				return m, nil
			}
		case "down", "j":
			if m.activeTab == tabTimeline && m.cursor < len(m.entries)-1 {
				m.cursor++
				m.refresh(tabTimeline)
				return m, nil
			}
		case "enter", " ":
			if m.activeTab == tabTimeline && len(m.entries) > 0 {
				if expandable(m.entries[m.cursor]) {
					if m.expanded[m.cursor] {
						delete(m.expanded, m.cursor)
					} else {
						m.expanded[m.cursor] = true
					}
					m.refresh(tabTimeline)
				}
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  oprec  " + m.filename)

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-4 jump  q quit"
	if m.activeTab == tabTimeline {
		hint = "  ←/→ tab  ↑/↓ select  enter expand/collapse  q quit"
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)
	pad := m.width - lipgloss.Width(hint) - len(pct) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + pct)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

// ── Viewports ─────────────

func (m *Model) initViewports() {
	// title, tab row and status bar take one row each
	vpHeight := m.height - 3
	if vpHeight < 1 {
		vpHeight = 1
	}
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Model) refresh(t tabID) {
	m.viewports[t].SetContent(m.renderTab(t))
}

func (m *Model) renderTab(t tabID) string {
	switch t {
	case tabTimeline:
		return m.renderTimeline()
	case tabCommands:
		return m.renderCommands()
	case tabFiles:
		return m.renderFiles()
	case tabSummary:
		return m.renderSummary()
	}
	return ""
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func (m *Model) renderTimeline() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Operations (%d)", len(m.entries))))
	if len(m.entries) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for i, e := range m.entries {
		toggle := "    "
		if expandable(e) {
			toggle = dimStyle.Render("  ▶ ")
			if m.expanded[i] {
				toggle = dimStyle.Render("  ▼ ")
			}
		}
		row := toggle + timeStyle.Render(e.Time().Format("15:04:05")) + "  " + badge(e.Kind) + "  " + subject(e)
		if i == m.cursor {
			row = selectedRowStyle.Width(max(m.width-2, 1)).Render(row)
		}
		sb.WriteString(row + "\n")
		if m.expanded[i] && expandable(e) {
			sb.WriteString(renderBody(e, m.width))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *Model) renderCommands() string {
	var sb strings.Builder
	var n int
	for _, e := range m.entries {
		if e.Kind == oplog.KindCommand {
			n++
		}
	}
	sb.WriteString(heading(fmt.Sprintf("Commands (%d)", n)))
	if n == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	i := 0
	for _, e := range m.entries {
		if e.Kind != oplog.KindCommand {
			continue
		}
		i++
		num := dimStyle.Render(fmt.Sprintf("  %3d.", i))
		ts := timeStyle.Render(" [" + e.Time().Format("15:04:05") + "]")
		sb.WriteString(num + ts + "  " + e.Command + "\n")
		if e.Output != "" {
			sb.WriteString(dimStyle.Render(indent(e.Output, "        ")) + "\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *Model) renderFiles() string {
	var sb strings.Builder
	order, byPath := filesTouched(m.entries)
	sb.WriteString(heading(fmt.Sprintf("Files (%d)", len(order))))
	if len(order) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for _, p := range order {
		var kinds []string
		for _, k := range byPath[p] {
			kinds = append(kinds, badge(k))
		}
		sb.WriteString("  " + p + "\n    " + strings.Join(kinds, " ") + "\n\n")
	}
	return sb.String()
}

func (m *Model) renderSummary() string {
	var sb strings.Builder
	sb.WriteString(heading("Recording Summary"))
	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}
	row("File:", m.filename)
	if len(m.entries) > 0 {
		first, last := m.entries[0].Time(), m.entries[len(m.entries)-1].Time()
		row("First:", first.Format("2006-01-02 15:04:05 MST"))
		row("Last:", last.Format("2006-01-02 15:04:05 MST"))
		row("Span:", last.Sub(first).Round(time.Second).String())
	}

	counts := Counts(m.entries)
	sb.WriteString(heading("Counts"))
	for _, k := range []oplog.Kind{oplog.KindCommand, oplog.KindFileCreate, oplog.KindFileDelete, oplog.KindFileDiff, oplog.KindFileContent} {
		row(string(k)+":", fmt.Sprintf("%d", counts[k]))
	}
	return sb.String()
}

// renderBody shows the text an entry carries: a colorised diff, file
// content or command output.
func renderBody(e oplog.Entry, width int) string {
	switch e.Kind {
	case oplog.KindFileDiff:
		return renderDiff(e.Data, width)
	case oplog.KindCommand:
		return framed(e.Output, width)
	default:
		return framed(e.Data, width)
	}
}

// renderDiff colorises a unified diff string.
func renderDiff(diff string, width int) string {
	var sb strings.Builder
	border := dimStyle.Render("  " + strings.Repeat("─", max(width-4, 1)))
	sb.WriteString(border + "\n")
	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		var rendered string
		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			rendered = diffMetaStyle.Render("  " + line)
		case strings.HasPrefix(line, "+"):
			rendered = diffAddStyle.Render("  " + line)
		case strings.HasPrefix(line, "-"):
			rendered = diffDelStyle.Render("  " + line)
		case strings.HasPrefix(line, "@@"):
			rendered = diffMetaStyle.Render("  " + line)
		default:
			rendered = dimStyle.Render("  " + line)
		}
		sb.WriteString(rendered + "\n")
	}
	sb.WriteString(border + "\n")
	return sb.String()
}

func framed(text string, width int) string {
	border := dimStyle.Render("  " + strings.Repeat("─", max(width-4, 1)))
	return border + "\n" + indent(strings.TrimSuffix(text, "\n"), "  ") + "\n" + border + "\n"
}

// ── Helpers ───────────────

func expandable(e oplog.Entry) bool {
	if e.Kind == oplog.KindCommand {
		return e.Output != ""
	}
	return e.Data != ""
}

func badge(k oplog.Kind) string {
	label := fmt.Sprintf("%-12s", string(k))
	switch k {
	case oplog.KindCommand:
		return kindCommandStyle.Render(label)
	case oplog.KindFileCreate:
		return kindCreateStyle.Render(label)
	case oplog.KindFileDelete:
		return kindDeleteStyle.Render(label)
	default:
		return kindChangeStyle.Render(label)
	}
}

func subject(e oplog.Entry) string {
	if e.Kind == oplog.KindCommand {
		return e.Command
	}
	return e.Path
}

// filesTouched lists file paths in first-seen order with the kinds
// recorded for each.
func filesTouched(entries []oplog.Entry) ([]string, map[string][]oplog.Kind) {
	var order []string
	byPath := make(map[string][]oplog.Kind)
	for _, e := range entries {
		if !e.Kind.IsFile() {
			continue
		}
		if _, seen := byPath[e.Path]; !seen {
			order = append(order, e.Path)
		}
		byPath[e.Path] = append(byPath[e.Path], e.Kind)
	}
	return order, byPath
}

// Counts tallies entries per kind.
func Counts(entries []oplog.Entry) map[oplog.Kind]int {
	counts := make(map[oplog.Kind]int)
	for _, e := range entries {
		counts[e.Kind]++
	}
	return counts
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// Run starts the viewer for entries loaded from filename.
func Run(entries []oplog.Entry, filename string) error {
	p := tea.NewProgram(New(entries, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
