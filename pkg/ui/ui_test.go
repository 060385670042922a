package ui

import (
	"bytes"
	"testing"
	"time"

	"feedrelay/pkg/models"

	"github.com/stretchr/testify/assert"
)

type recordingSender struct {
	titles []string
}

func (r *recordingSender) Send(title, message string) error {
	r.titles = append(r.titles, title)
	return nil
}

func TestRenderBar(t *testing.T) {
	assert.Equal(t, "━━━━━─────", RenderBar(50, 10))
	assert.Equal(t, "──────────", RenderBar(-5, 10))
	assert.Equal(t, "━━━━━━━━━━", RenderBar(250, 10))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h30m", FormatDuration(90*time.Minute))
}

func TestProgressDisplay(t *testing.T) {
	var buf bytes.Buffer
	d := NewProgressDisplay(&buf, true)

	d.Progress(models.ProgressData{Phase: models.PhaseCollecting, TotalCollected: 8, ScrollAttempt: 1, MaxAttempts: 20})
	d.Progress(models.ProgressData{Phase: models.PhaseQueueing, TotalProcessed: 6, TotalElements: 12, TotalFailed: 1, Percentage: 50})
	d.Complete(models.CompleteData{TotalCollected: 12, TotalSuccessful: 10, TotalFailed: 2, SuccessRate: 83.3, Message: "Synced 10 posts, 2 failed."})
	d.Progress(models.ProgressData{Phase: models.PhaseQueueing, TotalProcessed: 12})

	out := buf.String()
	assert.Contains(t, out, "8 posts found")
	assert.Contains(t, out, "scroll 1/20")
	assert.Contains(t, out, "6/12")
	assert.Contains(t, out, "1 failed")
	assert.Contains(t, out, "Synced 10 posts, 2 failed.")
	assert.NotContains(t, out, "12/0", "snapshots after completion are dropped")
}

func TestProgressDisplayFailed(t *testing.T) {
	var buf bytes.Buffer
	d := NewProgressDisplay(&buf, false)
	d.Failed(models.ErrorData{Error: "not on the activity page", Recovery: "Open your activity page and retry."})
	assert.Contains(t, buf.String(), "not on the activity page")
	assert.Contains(t, buf.String(), "Open your activity page")
}

func TestNotifier(t *testing.T) {
	var buf bytes.Buffer
	sender := &recordingSender{}
	n := NewNotifierWithSender(&buf, sender)

	n.RunComplete(models.CompleteData{TotalSuccessful: 3, Message: "All 3 posts synced successfully!"})
	n.RunComplete(models.CompleteData{TotalFailed: 3, Message: "No posts could be synced."})
	n.RunComplete(models.CompleteData{Cancelled: true, Message: "Sync stopped."})
	n.RunFailed(models.ErrorData{Error: "auth required", Recovery: "Log in again."})

	assert.Equal(t, []string{"Sync complete", "Sync failed", "Sync stopped", "Sync error"}, sender.titles)
	assert.Contains(t, buf.String(), "auth required. Log in again.")

	quiet := NewNotifier(&buf, false)
	assert.Nil(t, quiet.sender)
}
