// Package tui implements the terminal view onto a running workflow.Driver:
// a Bubble Tea model that renders phase/status and drains the driver's
// event channel, generalizing the teacher's instance list (app/model,
// ui/list.go) from "N tmux instances" to "one workflow's phase machine".
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zen-cli/zen/workflow"
)

// phaseOrder lists the phases the driver works through, in order, used to
// render a progress row. Complete has no entry of its own.
var phaseOrder = []workflow.Phase{
	workflow.Planning,
	workflow.TaskGeneration,
	workflow.Implementation,
	workflow.Merging,
	workflow.Documentation,
}

// driverEventMsg wraps one workflow.Event delivered from the driver's
// channel into a tea.Msg.
type driverEventMsg struct {
	ev workflow.Event
	ok bool
}

type tickMsg time.Time

// Model is the Bubble Tea model for a single workflow run.
type Model struct {
	driver  *workflow.Driver
	spin    spinner.Model
	history []string
	width   int
	quit    bool
}

// NewModel wraps driver for display. Call Run (not Update/View) to actually
// drive it through a tea.Program.
func NewModel(driver *workflow.Driver) *Model {
	s := spinner.New(spinner.WithSpinner(spinner.MiniDot))
	return &Model{driver: driver, spin: s}
}

// Run starts a Bubble Tea program over m and blocks until the workflow
// finishes or the user quits, mirroring the teacher's app.Run.
func Run(driver *workflow.Driver) error {
	m := NewModel(driver)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitForEvent(m.driver), tickEvery())
}

func waitForEvent(d *workflow.Driver) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-d.Events()
		return driverEventMsg{ev: ev, ok: ok}
	}
}

func tickEvery() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quit = true
			return m, tea.Quit
		}
		return m, nil
	case driverEventMsg:
		if !msg.ok {
			return m, nil
		}
		m.history = append(m.history, formatEvent(msg.ev))
		if len(m.history) > 20 {
			m.history = m.history[len(m.history)-20:]
		}
		if msg.ev.Type == workflow.WorkflowCompleted || msg.ev.Type == workflow.WorkflowFailed || msg.ev.Type == workflow.WorkflowPaused {
			m.quit = true
			return m, tea.Quit
		}
		return m, waitForEvent(m.driver)
	case tickMsg:
		if m.quit {
			return m, nil
		}
		return m, tickEvery()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func formatEvent(ev workflow.Event) string {
	if ev.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", ev.Phase, ev.Type, ev.Err)
	}
	return fmt.Sprintf("%s: %s", ev.Phase, ev.Type)
}

func (m *Model) View() string {
	wf := m.driver.Workflow()
	icon, style := statusGlyph(wf.Status.String())

	var b strings.Builder
	b.WriteString(headerBar.Render(fmt.Sprintf(" zen  %s ", wf.ID.String()[:8])))
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(truncate(wf.Prompt, 72)))
	b.WriteString("\n")
	b.WriteString(style.Render(icon+wf.Status.String()) + "  " + m.renderPhases(wf.Phase))
	b.WriteString("\n")

	if len(wf.PendingConflicts) > 0 {
		b.WriteString(conflictStyle.Render(fmt.Sprintf("%d file(s) need manual merge resolution", len(wf.PendingConflicts))))
		b.WriteString("\n")
	}
	if wf.StagingCommit != "" {
		b.WriteString(subtitleStyle.Render("staging: " + wf.StagingCommit[:min(len(wf.StagingCommit), 10)]))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	for _, line := range m.history {
		b.WriteString(subtitleStyle.Render(m.spin.View() + " " + line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render("q: quit"))
	return b.String()
}

func (m *Model) renderPhases(current workflow.Phase) string {
	var parts []string
	for _, p := range phaseOrder {
		s := p.String()
		switch {
		case p < current:
			s = completeStyle.Render(s)
		case p == current:
			s = runningStyle.Bold(true).Render(s)
		default:
			s = pendingStyle.Render(s)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render(" -> "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
