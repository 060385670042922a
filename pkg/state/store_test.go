package state

import (
	"os"
	"testing"
	"time"

	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutGet(t *testing.T) {
	s, err := Open(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)

	var got Settings
	ok, err := s.Get(KeySettings, &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(KeySettings, Settings{BackendURL: "http://api.local"}))
	ok, err = s.Get(KeySettings, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://api.local", got.BackendURL)

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, s.Delete(KeySettings))
	ok, _ = s.Get(KeySettings, &got)
	assert.False(t, ok)
}

func TestStoreUpdateStats(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, logger.NewNopLogger())
	require.NoError(t, err)

	at := time.Date(2026, 10, 2, 8, 0, 0, 0, time.UTC)
	_, err = s.UpdateStats(func(st *models.SyncStats) {
		st.AddRun(models.CompleteData{RunID: "r1", TotalCollected: 12, TotalSuccessful: 10, TotalFailed: 2}, at)
	})
	require.NoError(t, err)
	_, err = s.UpdateStats(func(st *models.SyncStats) { st.MemoCount++ })
	require.NoError(t, err)

	reopened, err := Open(dir, logger.NewNopLogger())
	require.NoError(t, err)
	stats, err := reopened.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 10, stats.TotalSuccessful)
	assert.Equal(t, 1, stats.MemoCount)
	assert.True(t, at.Equal(stats.LastRunAt))
}

func TestRunLock(t *testing.T) {
	dir := t.TempDir()
	first := NewRunLock(dir)
	second := NewRunLock(dir)

	require.NoError(t, first.Acquire())
	err := second.Acquire()
	assert.ErrorIs(t, err, errs.ErrRunActive)

	require.NoError(t, first.Release())
	require.NoError(t, second.Acquire())
	require.NoError(t, second.Release())
}
