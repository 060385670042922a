// Package progress turns raw collection and delivery events into the
// snapshots shown to the user.
package progress

import (
	"fmt"
	"math"
	"sync"
	"time"

	"feedrelay/pkg/models"
)

// Presenter renders snapshots
type Presenter interface {
	Progress(models.ProgressData)
	Complete(models.CompleteData)
}

// Percentage is processed/total*100 capped at 100, or 0 without a total
func Percentage(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Min(100, float64(processed)/float64(total)*100)
}

// SuccessRate is successful/(successful+failed)*100, or 0 when nothing settled
func SuccessRate(successful, failed int) float64 {
	if successful+failed == 0 {
		return 0
	}
	return float64(successful) / float64(successful+failed) * 100
}

// Summary picks the completion message
func Summary(successful, failed int, cancelled bool) string {
	switch {
	case cancelled:
		return fmt.Sprintf("Sync stopped. %d posts processed before cancelling.", successful+failed)
	case successful+failed == 0:
		return "No posts found to sync."
	case failed == 0:
		return fmt.Sprintf("All %d posts synced successfully!", successful)
	case successful == 0:
		return "No posts could be synced. Check your connection and try again."
	default:
		return fmt.Sprintf("Synced %d posts, %d failed.", successful, failed)
	}
}

// Reporter keeps the latest snapshot and pushes derived views to a Presenter
type Reporter struct {
	mu        sync.Mutex
	presenter Presenter
	now       func() time.Time
	state     models.RunState
	scroll    int
	maxScroll int
	completed bool
}

// NewReporter creates a reporter for run id
func NewReporter(id string, p Presenter, clock func() time.Time) *Reporter {
	if clock == nil {
		clock = time.Now
	}
	return &Reporter{
		presenter: p,
		now:       clock,
		state:     *models.NewRunState(id, clock()),
	}
}

// Collecting records a collector pass
func (r *Reporter) Collecting(p models.ProgressData) {
	r.mu.Lock()
	r.state.Phase = models.PhaseCollecting
	r.state.TotalCollected = p.TotalCollected
	r.scroll = p.ScrollAttempt
	r.maxScroll = p.MaxAttempts
	snap := r.snapshot()
	r.mu.Unlock()

	r.presenter.Progress(snap)
}

// Delivery records a settled item
func (r *Reporter) Delivery(s models.RunState) {
	r.mu.Lock()
	r.state = mergeStart(r.state, s)
	snap := r.snapshot()
	r.mu.Unlock()

	r.presenter.Progress(snap)
}

// Complete pushes the completion snapshot once
func (r *Reporter) Complete(s models.RunState, cancelled bool) models.CompleteData {
	r.mu.Lock()
	r.state = mergeStart(r.state, s)
	done := r.completed
	r.completed = true
	st := r.state
	now := r.now()
	r.mu.Unlock()

	data := models.CompleteData{
		RunID:           st.ID,
		TotalCollected:  st.TotalCollected,
		TotalProcessed:  st.TotalProcessed,
		TotalSuccessful: st.TotalSuccessful,
		TotalFailed:     st.TotalFailed,
		SuccessRate:     SuccessRate(st.TotalSuccessful, st.TotalFailed),
		DurationSeconds: st.Duration(now).Seconds(),
		Message:         Summary(st.TotalSuccessful, st.TotalFailed, cancelled),
		Cancelled:       cancelled,
	}
	if !done {
		r.presenter.Complete(data)
	}
	return data
}

// State returns the latest run state
func (r *Reporter) State() models.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reporter) snapshot() models.ProgressData {
	s := r.state
	data := models.ProgressData{
		RunID:           s.ID,
		Phase:           s.Phase,
		TotalCollected:  s.TotalCollected,
		TotalProcessed:  s.TotalProcessed,
		TotalElements:   s.TotalCollected,
		TotalSuccessful: s.TotalSuccessful,
		TotalFailed:     s.TotalFailed,
		Percentage:      Percentage(s.TotalProcessed, s.TotalCollected),
		SuccessRate:     SuccessRate(s.TotalSuccessful, s.TotalFailed),
		DurationSeconds: s.Duration(r.now()).Seconds(),
	}
	if s.Phase == models.PhaseCollecting {
		data.TotalElements = 0
		data.Percentage = 0
		data.ScrollAttempt = r.scroll
		data.MaxAttempts = r.maxScroll
		data.Message = fmt.Sprintf("Collecting posts... %d found", s.TotalCollected)
	} else {
		data.Message = fmt.Sprintf("Processing %d of %d posts", s.TotalProcessed, s.TotalCollected)
	}
	return data
}

// mergeStart keeps the reporter's start time when the incoming state lacks one
func mergeStart(cur, next models.RunState) models.RunState {
	if next.StartTime.IsZero() {
		next.StartTime = cur.StartTime
	}
	if next.ID == "" {
		next.ID = cur.ID
	}
	return next
}
