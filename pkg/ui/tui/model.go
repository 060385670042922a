package tui

import (
	"sync"
	"time"

	"feedrelay/pkg/models"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Model represents the TUI model
type Model struct {
	// UI components
	spinner spinner.Model
	bar     progress.Model

	// Run state
	snapshot  models.ProgressData
	completed *models.CompleteData
	failure   *models.ErrorData
	startTime time.Time

	// UI state
	width          int
	height         int
	showHelp       bool
	stopRequested  bool
	onStop         func()
	logMessages    []LogMessage
	maxLogMessages int

	mu sync.RWMutex
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates a model. onStop is called once when the user asks to stop the run.
func NewModel(onStop func()) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accent)

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	return &Model{
		spinner:        s,
		bar:            bar,
		snapshot:       models.ProgressData{Phase: models.PhaseInitializing},
		startTime:      time.Now(),
		onStop:         onStop,
		logMessages:    []LogMessage{},
		maxLogMessages: 50,
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// ApplyProgress records a snapshot. Snapshots after completion are ignored.
func (m *Model) ApplyProgress(d models.ProgressData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.completed != nil || m.failure != nil {
		return
	}
	if d.Phase != m.snapshot.Phase {
		m.appendLog("INFO", "Phase: "+string(d.Phase))
	}
	m.snapshot = d
}

// ApplyComplete records the run summary
func (m *Model) ApplyComplete(d models.CompleteData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.completed != nil {
		return
	}
	m.completed = &d
	m.snapshot.Phase = models.PhaseCompleted

	level := "SUCCESS"
	switch {
	case d.Cancelled:
		level = "WARN"
	case d.TotalSuccessful == 0 && d.TotalFailed > 0:
		level = "ERROR"
	}
	m.appendLog(level, d.Message)
}

// ApplyError records a fatal run error
func (m *Model) ApplyError(d models.ErrorData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failure = &d
	m.snapshot.Phase = models.PhaseError
	m.appendLog("ERROR", d.Error)
}

// Finished reports whether the run reached a terminal state
func (m *Model) Finished() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.completed != nil || m.failure != nil
}

// Snapshot returns the latest progress
func (m *Model) Snapshot() models.ProgressData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLog(level, message)
}

func (m *Model) appendLog(level, message string) {
	color := muted
	switch level {
	case "ERROR":
		color = bad
	case "WARN":
		color = caution
	case "SUCCESS":
		color = good
	case "INFO":
		color = accent
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	// Keep only the last N messages
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// requestStop fires onStop at most once
func (m *Model) requestStop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopRequested || m.completed != nil || m.failure != nil {
		return false
	}
	m.stopRequested = true
	m.appendLog("WARN", "Stop requested")
	if m.onStop != nil {
		go m.onStop()
	}
	return true
}
