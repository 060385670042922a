package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	accent  = lipgloss.Color("#4FB3FF")
	border  = lipgloss.Color("#3A4A6B")
	good    = lipgloss.Color("#5AD17A")
	caution = lipgloss.Color("#F2B84B")
	bad     = lipgloss.Color("#F2545B")
	surface = lipgloss.Color("#141A26")
	muted   = lipgloss.Color("#8A93A6")
	faint   = lipgloss.Color("#5C6473")
	text    = lipgloss.Color("#D8DEE9")
)

var (
	baseStyle = lipgloss.NewStyle().Foreground(text)

	logoStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true).
			Align(lipgloss.Center)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Background(surface).
			Padding(0, 2)

	titleStyle = lipgloss.NewStyle().
			Foreground(surface).
			Background(accent).
			Bold(true).
			Padding(0, 1)

	statsLabelStyle   = lipgloss.NewStyle().Foreground(muted)
	statsValueStyle   = lipgloss.NewStyle().Foreground(text).Bold(true)
	successStyle      = lipgloss.NewStyle().Foreground(good).Bold(true)
	warningStyle      = lipgloss.NewStyle().Foreground(caution)
	errorStyle        = lipgloss.NewStyle().Foreground(bad).Bold(true)
	logTimestampStyle = lipgloss.NewStyle().Foreground(faint)
	logMessageStyle   = lipgloss.NewStyle().Foreground(muted)
	helpStyle         = lipgloss.NewStyle().Foreground(faint).PaddingLeft(2)
)

// PhaseStyle returns the style for a run phase
func PhaseStyle(phase string) lipgloss.Style {
	switch phase {
	case "completed":
		return successStyle
	case "error":
		return errorStyle
	case "collecting", "queueing":
		return statsValueStyle.Foreground(accent)
	default:
		return warningStyle
	}
}

// SuccessRateStyle colors a 0-100 success rate
func SuccessRateStyle(rate float64) lipgloss.Style {
	switch {
	case rate >= 90:
		return successStyle
	case rate >= 50:
		return warningStyle
	default:
		return errorStyle
	}
}
