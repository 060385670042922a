package tui

import (
	"feedrelay/pkg/models"

	tea "github.com/charmbracelet/bubbletea"
)

// TUI renders run progress full-screen. It satisfies ui.Display.
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a TUI; onStop runs when the user presses s
func NewTUI(onStop func()) *TUI {
	model := NewModel(onStop)
	program := tea.NewProgram(model, tea.WithAltScreen())

	return &TUI{
		program: program,
		model:   model,
	}
}

// Start runs the program until the user quits or Close is called
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Close stops the program
func (t *TUI) Close() {
	t.program.Quit()
}

// Progress forwards a snapshot
func (t *TUI) Progress(d models.ProgressData) {
	t.program.Send(ProgressMsg(d))
}

// Complete forwards the run summary
func (t *TUI) Complete(d models.CompleteData) {
	t.program.Send(CompleteMsg(d))
}

// Failed forwards a fatal run error
func (t *TUI) Failed(d models.ErrorData) {
	t.program.Send(ErrorMsg(d))
}

// Log adds an event line
func (t *TUI) Log(level, message string) {
	t.program.Send(LogMsg{Level: level, Message: message})
}

// Finished reports whether the run ended
func (t *TUI) Finished() bool {
	return t.model.Finished()
}
