// Package models holds the data passed between feedrelay contexts.
package models

import "time"

// CollectedItem is one deduplicated post found on the activity page
type CollectedItem struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	SourceURL      string    `json:"sourceUrl"`
	DiscoveredAt   time.Time `json:"discoveredAt"`
	DiscoveryIndex int       `json:"discoveryIndex"`
	ScrollPass     int       `json:"scrollPass"`
}

// AuthConfig is the cached credential
type AuthConfig struct {
	Token           string    `json:"token" yaml:"token"`
	UserID          string    `json:"userId,omitempty" yaml:"user_id,omitempty"`
	LastValidatedAt time.Time `json:"lastValidatedAt" yaml:"last_validated_at"`
	Source          string    `json:"source,omitempty" yaml:"source,omitempty"`
}

// Valid reports whether a token is present
func (a *AuthConfig) Valid() bool {
	return a != nil && a.Token != ""
}

// SyncStats are the cumulative counters persisted across runs
type SyncStats struct {
	TotalRuns       int       `json:"totalRuns"`
	TotalCollected  int       `json:"totalCollected"`
	TotalSuccessful int       `json:"totalSuccessful"`
	TotalFailed     int       `json:"totalFailed"`
	CancelledRuns   int       `json:"cancelledRuns"`
	FailedRuns      int       `json:"failedRuns"`
	MemoCount       int       `json:"memoCount"`
	LastRunAt       time.Time `json:"lastRunAt,omitempty"`
	LastRunID       string    `json:"lastRunId,omitempty"`
}

// AddRun folds a finished run into the totals
func (s *SyncStats) AddRun(c CompleteData, at time.Time) {
	s.TotalRuns++
	s.TotalCollected += c.TotalCollected
	s.TotalSuccessful += c.TotalSuccessful
	s.TotalFailed += c.TotalFailed
	if c.Cancelled {
		s.CancelledRuns++
	}
	s.LastRunAt = at
	s.LastRunID = c.RunID
}

// AddFailure records a run that ended in the error phase
func (s *SyncStats) AddFailure(runID string, at time.Time) {
	s.TotalRuns++
	s.FailedRuns++
	s.LastRunAt = at
	s.LastRunID = runID
}

// User is the backend's view of the authenticated account
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}
