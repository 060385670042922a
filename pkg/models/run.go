package models

import (
	"fmt"
	"time"
)

// Phase is the stage a run is in
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseCollecting   Phase = "collecting"
	PhaseQueueing     Phase = "queueing"
	PhaseCompleted    Phase = "completed"
	PhaseError        Phase = "error"
)

func (p Phase) rank() int {
	switch p {
	case PhaseInitializing:
		return 0
	case PhaseCollecting:
		return 1
	case PhaseQueueing:
		return 2
	case PhaseCompleted:
		return 3
	case PhaseError:
		return 4
	default:
		return -1
	}
}

// Terminal reports whether no further transitions are allowed
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseError
}

// RunState tracks one sync invocation. It is not safe for concurrent use;
// its owner serializes access.
type RunState struct {
	ID              string    `json:"id"`
	Phase           Phase     `json:"phase"`
	TotalCollected  int       `json:"totalCollected"`
	TotalProcessed  int       `json:"totalProcessed"`
	TotalSuccessful int       `json:"totalSuccessful"`
	TotalFailed     int       `json:"totalFailed"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// NewRunState creates a run in the initializing phase
func NewRunState(id string, now time.Time) *RunState {
	return &RunState{ID: id, Phase: PhaseInitializing, StartTime: now}
}

// Advance moves the run forward. Phases never go backwards and error is absorbing.
func (r *RunState) Advance(p Phase, now time.Time) error {
	if p == PhaseError {
		r.Fail("", now)
		return nil
	}
	if r.Phase == PhaseError {
		return fmt.Errorf("run %s already failed", r.ID)
	}
	if p.rank() < 0 {
		return fmt.Errorf("unknown phase %q", p)
	}
	if p.rank() < r.Phase.rank() {
		return fmt.Errorf("cannot move run %s from %s back to %s", r.ID, r.Phase, p)
	}
	r.Phase = p
	if p == PhaseCompleted && r.EndTime.IsZero() {
		r.EndTime = now
	}
	return nil
}

// Fail moves the run into the error phase from any phase
func (r *RunState) Fail(msg string, now time.Time) {
	r.Phase = PhaseError
	if msg != "" {
		r.Error = msg
	}
	if r.EndTime.IsZero() {
		r.EndTime = now
	}
}

// SetCollected records how many items the collector produced
func (r *RunState) SetCollected(n int) error {
	if n < r.TotalProcessed {
		return fmt.Errorf("collected %d is below processed %d", n, r.TotalProcessed)
	}
	r.TotalCollected = n
	return nil
}

// Record counts one settled item
func (r *RunState) Record(success bool) error {
	if r.TotalProcessed >= r.TotalCollected {
		return fmt.Errorf("run %s: all %d items already processed", r.ID, r.TotalCollected)
	}
	r.TotalProcessed++
	if success {
		r.TotalSuccessful++
	} else {
		r.TotalFailed++
	}
	return nil
}

// Done reports whether every collected item has settled
func (r *RunState) Done() bool {
	return r.TotalCollected > 0 && r.TotalProcessed == r.TotalCollected
}

// Duration is the elapsed run time, up to now when still running
func (r *RunState) Duration(now time.Time) time.Duration {
	end := r.EndTime
	if end.IsZero() {
		end = now
	}
	if end.Before(r.StartTime) {
		return 0
	}
	return end.Sub(r.StartTime)
}
