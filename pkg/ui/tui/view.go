package tui

import (
	"fmt"
	"strings"
	"time"

	"feedrelay/pkg/models"

	"github.com/charmbracelet/lipgloss"
)

const logo = `
╔════════════════════════════════════════╗
║  F E E D R E L A Y                     ║
║  activity feed sync                    ║
╚════════════════════════════════════════╝`

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	width := (m.width - 4) / 2
	sections := []string{
		logoStyle.Width(m.width).Render(logo),
		lipgloss.JoinHorizontal(lipgloss.Top, m.renderRunPanel(width), "  ", m.renderLogsPanel(width)),
	}

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("s stop • q quit • ? help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderRunPanel(width int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	title := titleStyle.Render(" SYNC RUN ")

	phase := PhaseStyle(string(s.Phase)).Render(strings.ToUpper(string(s.Phase)))
	if !s.Phase.Terminal() {
		phase = m.spinner.View() + " " + phase
	}

	lines := []string{
		stat("Phase:", phase),
		stat("Elapsed:", statsValueStyle.Render(formatDuration(time.Since(m.startTime)))),
		stat("Collected:", statsValueStyle.Render(fmt.Sprintf("%d posts", s.TotalCollected))),
	}

	switch s.Phase {
	case models.PhaseCollecting:
		if s.MaxAttempts > 0 {
			lines = append(lines, stat("Scroll:", statsValueStyle.Render(fmt.Sprintf("%d/%d", s.ScrollAttempt, s.MaxAttempts))))
		}
	case models.PhaseQueueing:
		lines = append(lines,
			stat("Processed:", statsValueStyle.Render(fmt.Sprintf("%d/%d", s.TotalProcessed, s.TotalElements))),
			m.bar.ViewAs(s.Percentage/100),
		)
	}

	if s.TotalProcessed > 0 {
		lines = append(lines,
			stat("Synced:", successStyle.Render(fmt.Sprintf("%d", s.TotalSuccessful))),
			stat("Failed:", errorStyle.Render(fmt.Sprintf("%d", s.TotalFailed))),
			stat("Success rate:", SuccessRateStyle(s.SuccessRate).Render(fmt.Sprintf("%.1f%%", s.SuccessRate))),
		)
	}

	if m.completed != nil {
		lines = append(lines, "", successStyle.Render(m.completed.Message))
	}
	if m.failure != nil {
		lines = append(lines, "", errorStyle.Render(m.failure.Error))
		if m.failure.Recovery != "" {
			lines = append(lines, warningStyle.Render("→ "+m.failure.Recovery))
		}
	}
	if m.stopRequested && m.completed == nil {
		lines = append(lines, warningStyle.Render("Stopping..."))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

func stat(label, value string) string {
	return fmt.Sprintf("%s %s", statsLabelStyle.Render(label), value)
}

func (m *Model) renderLogsPanel(width int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	title := titleStyle.Render(" EVENTS ")

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	var logs []string
	maxMsgLen := width - 25
	for _, entry := range m.logMessages[start:] {
		msg := entry.Message
		if maxMsgLen > 3 && len(msg) > maxMsgLen {
			msg = msg[:maxMsgLen-3] + "..."
		}
		logs = append(logs, fmt.Sprintf("%s %s %s",
			logTimestampStyle.Render(entry.Time.Format("15:04:05")),
			lipgloss.NewStyle().Foreground(entry.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", entry.Level)),
			logMessageStyle.Render(msg),
		))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = lipgloss.NewStyle().Foreground(muted).Render("No events yet...")
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp() string {
	help := `
  Keys:
    s        - Stop the current sync
    q/Q      - Quit the display
    ctrl+l   - Clear events
    ?        - Toggle this help

  Phases:
    ` + warningStyle.Render("COLLECTING") + `  - Scrolling the activity feed
    ` + statsValueStyle.Render("QUEUEING") + `    - Sending posts
    ` + successStyle.Render("COMPLETED") + `   - Run finished
    ` + errorStyle.Render("ERROR") + `       - Run aborted
`
	return panelStyle.Width(m.width).Render(help)
}

// formatDuration formats a duration as mm:ss or hh:mm:ss
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	mi := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, mi, s)
	}
	return fmt.Sprintf("%02d:%02d", mi, s)
}
