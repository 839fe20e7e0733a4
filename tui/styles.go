package tui

import "github.com/charmbracelet/lipgloss"

// Status icons and colors mirror the teacher's ui/list.go palette
// (readyIcon/pausedStyle), remapped onto workflow.Status instead of
// instance status.
const (
	runningIcon  = "● "
	pausedIcon   = "⏸ "
	completeIcon = "✔ "
	failedIcon   = "✖ "
	pendingIcon  = "○ "
)

var (
	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#51bd73", Dark: "#51bd73"})

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#c4a000", Dark: "#e5c07b"})

	completeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#dddddd"})

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#de613e"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#888888", Dark: "#777777"})

	titleStyle = lipgloss.NewStyle().
			Padding(1, 1, 0, 1).
			Foreground(lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#dddddd"})

	subtitleStyle = lipgloss.NewStyle().
			Padding(0, 1, 1, 1).
			Foreground(lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"})

	headerBar = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230"))

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#626262"})

	conflictStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#de613e")).
			Bold(true)
)

// statusGlyph returns the icon+style pair for a workflow status, used by
// the status line in View.
func statusGlyph(s string) (string, lipgloss.Style) {
	switch s {
	case "Running":
		return runningIcon, runningStyle
	case "Paused":
		return pausedIcon, pausedStyle
	case "Completed":
		return completeIcon, completeStyle
	case "Failed":
		return failedIcon, failedStyle
	default:
		return pendingIcon, pendingStyle
	}
}
