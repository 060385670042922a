package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"feedrelay/pkg/models"
	"feedrelay/pkg/progress"
)

// Display is a presenter the popup context can drive
type Display interface {
	progress.Presenter
	Failed(models.ErrorData)
	Close()
}

// ProgressDisplay renders run snapshots as a single updating console line
type ProgressDisplay struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	last    models.ProgressData
	done    bool
}

var _ Display = (*ProgressDisplay)(nil)

// NewProgressDisplay writes to out; verbose prints one line per snapshot
func NewProgressDisplay(out io.Writer, verbose bool) *ProgressDisplay {
	return &ProgressDisplay{out: out, verbose: verbose}
}

// Progress renders a snapshot
func (p *ProgressDisplay) Progress(d models.ProgressData) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return
	}
	p.last = d

	line := p.formatLine(d)
	if p.verbose {
		fmt.Fprintln(p.out, line)
		return
	}
	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 100), line)
}

func (p *ProgressDisplay) formatLine(d models.ProgressData) string {
	switch d.Phase {
	case models.PhaseCollecting:
		line := fmt.Sprintf("%s %d posts found", Magenta("[SCANNING]"), d.TotalCollected)
		if d.MaxAttempts > 0 {
			line += fmt.Sprintf(" • scroll %d/%d", d.ScrollAttempt, d.MaxAttempts)
		}
		return line
	case models.PhaseQueueing:
		line := fmt.Sprintf("%s [%s] %d/%d • %.0f%%",
			Cyan("[SYNCING]"),
			RenderBar(d.Percentage, 20),
			d.TotalProcessed,
			d.TotalElements,
			d.Percentage,
		)
		if d.TotalFailed > 0 {
			line += " • " + Red(fmt.Sprintf("%d failed", d.TotalFailed))
		}
		return line
	default:
		if d.Message != "" {
			return fmt.Sprintf("%s %s", Dim("["+strings.ToUpper(string(d.Phase))+"]"), d.Message)
		}
		return Dim("[" + strings.ToUpper(string(d.Phase)) + "]")
	}
}

// Complete prints the run summary
func (p *ProgressDisplay) Complete(d models.CompleteData) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return
	}
	p.done = true

	mark := Green("✓")
	switch {
	case d.Cancelled:
		mark = Yellow("■")
	case d.TotalSuccessful == 0 && d.TotalFailed > 0:
		mark = Red("✗")
	case d.TotalFailed > 0:
		mark = Yellow("!")
	}

	fmt.Fprintf(p.out, "\n\n%s %s\n", mark, d.Message)
	fmt.Fprintf(p.out, "  %s %d collected • %d synced • %d failed\n",
		Dim("•"), d.TotalCollected, d.TotalSuccessful, d.TotalFailed)
	fmt.Fprintf(p.out, "  %s %.1f%% success in %s\n",
		Dim("•"), d.SuccessRate, FormatDuration(time.Duration(d.DurationSeconds*float64(time.Second))))
}

// Failed prints a fatal run error with its recovery hint
func (p *ProgressDisplay) Failed(d models.ErrorData) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = true
	fmt.Fprintf(p.out, "\n\n%s %s\n", Red("✗"), Red(d.Error))
	if d.Recovery != "" {
		fmt.Fprintf(p.out, "  %s %s\n", Dim("→"), d.Recovery)
	}
}

// Close ends the display line
func (p *ProgressDisplay) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.done && !p.verbose {
		fmt.Fprintln(p.out)
	}
}
