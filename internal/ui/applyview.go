package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StepUpdateMsg reports a status change of the step at Index.
type StepUpdateMsg struct {
	Index    int
	Status   string
	Err      error
	Duration time.Duration
}

// DownloadMsg reports installer download progress.
type DownloadMsg struct {
	Current int64
	Total   int64
}

// ApplyDoneMsg ends the view.
type ApplyDoneMsg struct{ Err error }

type stepRow struct {
	name     string
	status   string
	err      error
	duration time.Duration
}

// ApplyView is a bubbletea model listing pipeline steps with live status.
type ApplyView struct {
	title       string
	rows        []stepRow
	spinner     spinner.Model
	download    *DownloadMsg
	done        bool
	err         error
	interrupted bool
	colors      *ColorConfig
}

// NewApplyView creates a view for the named steps, all pending.
func NewApplyView(title string, names []string, c *ColorConfig) *ApplyView {
	s := spinner.New()
	s.Spinner = spinner.Dot
	rows := make([]stepRow, len(names))
	for i, n := range names {
		rows[i] = stepRow{name: n, status: "pending"}
	}
	if c == nil {
		c = NewColorConfig()
	}
	return &ApplyView{title: title, rows: rows, spinner: s, colors: c}
}

func (m *ApplyView) Init() tea.Cmd {
	m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return m.spinner.Tick
}

func (m *ApplyView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.interrupted = true
			return m, tea.Quit
		}
	case StepUpdateMsg:
		if msg.Index >= 0 && msg.Index < len(m.rows) {
			r := &m.rows[msg.Index]
			r.status = msg.Status
			r.err = msg.Err
			r.duration = msg.Duration
			if msg.Status != "running" {
				m.download = nil
			}
		}
	case DownloadMsg:
		d := msg
		m.download = &d
	case ApplyDoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
)

func (m *ApplyView) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	for _, r := range m.rows {
		icon := m.colors.StatusIcon(r.status)
		if r.status == "running" {
			icon = m.spinner.View()
		}
		line := fmt.Sprintf("%s %-28s", icon, r.name)
		switch {
		case r.status == "running" && m.download != nil:
			line += dimStyle.Render(downloadText(*m.download))
		case r.status == "skipped":
			line += dimStyle.Render("already done")
		case r.duration > 0 && r.status != "pending":
			line += dimStyle.Render(FormatElapsed(r.duration))
		}
		b.WriteString(line)
		b.WriteString("\n")
		if r.err != nil {
			b.WriteString("    " + errStyle.Render(r.err.Error()) + "\n")
		}
	}
	if m.done {
		b.WriteString("\n")
		b.WriteString(boxStyle.Render(m.Summary()))
		b.WriteString("\n")
	} else {
		b.WriteString(dimStyle.Render("\nctrl+c to abort\n"))
	}
	return b.String()
}

func downloadText(d DownloadMsg) string {
	if d.Total <= 0 {
		return FormatBytes(d.Current)
	}
	return fmt.Sprintf("%s / %s", FormatBytes(d.Current), FormatBytes(d.Total))
}

// Summary counts rows by outcome.
func (m *ApplyView) Summary() string {
	counts := map[string]int{}
	for _, r := range m.rows {
		counts[r.status]++
	}
	s := fmt.Sprintf("%d applied, %d already done", counts["applied"], counts["skipped"])
	if counts["failed"] > 0 {
		s += fmt.Sprintf(", %d failed, %d not run", counts["failed"], counts["pending"])
	}
	return s
}

// Interrupted reports whether the user pressed ctrl+c.
func (m *ApplyView) Interrupted() bool { return m.interrupted }
