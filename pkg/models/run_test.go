package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatePhasesAdvanceMonotonically(t *testing.T) {
	now := time.Now()
	r := NewRunState("run-1", now)

	require.NoError(t, r.Advance(PhaseCollecting, now))
	require.NoError(t, r.Advance(PhaseQueueing, now))
	assert.Error(t, r.Advance(PhaseCollecting, now))
	require.NoError(t, r.Advance(PhaseCompleted, now.Add(time.Second)))
	assert.Equal(t, time.Second, r.Duration(now.Add(time.Hour)))
}

func TestRunStateErrorIsAbsorbing(t *testing.T) {
	now := time.Now()
	r := NewRunState("run-1", now)
	require.NoError(t, r.Advance(PhaseCollecting, now))

	r.Fail("navigation required", now)
	assert.Equal(t, PhaseError, r.Phase)
	assert.Error(t, r.Advance(PhaseQueueing, now))
	assert.Equal(t, "navigation required", r.Error)
}

func TestRunStateCounters(t *testing.T) {
	r := NewRunState("run-1", time.Now())
	require.NoError(t, r.SetCollected(3))

	require.NoError(t, r.Record(true))
	require.NoError(t, r.Record(false))
	assert.False(t, r.Done())
	require.NoError(t, r.Record(true))
	assert.True(t, r.Done())

	assert.Equal(t, r.TotalProcessed, r.TotalSuccessful+r.TotalFailed)
	assert.Error(t, r.Record(true), "processed cannot exceed collected")
	assert.Error(t, r.SetCollected(2))
}

func TestRunStateEmptyRunIsNotDone(t *testing.T) {
	r := NewRunState("run-1", time.Now())
	assert.False(t, r.Done())
}

func TestSyncStatsAddRun(t *testing.T) {
	var s SyncStats
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s.AddRun(CompleteData{RunID: "a", TotalCollected: 12, TotalSuccessful: 10, TotalFailed: 2}, at)
	s.AddRun(CompleteData{RunID: "b", TotalCollected: 1, TotalSuccessful: 1, Cancelled: true}, at)

	assert.Equal(t, 2, s.TotalRuns)
	assert.Equal(t, 13, s.TotalCollected)
	assert.Equal(t, 11, s.TotalSuccessful)
	assert.Equal(t, 1, s.CancelledRuns)
	assert.Equal(t, "b", s.LastRunID)

	s.AddFailure("c", at.Add(time.Hour))
	assert.Equal(t, 3, s.TotalRuns)
	assert.Equal(t, 1, s.FailedRuns)
	assert.Equal(t, "c", s.LastRunID)
	assert.Equal(t, 13, s.TotalCollected)
}
