// Package memo captures short voice memos through an external recorder and
// uploads them to the backend.
package memo

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"feedrelay/pkg/api"
	"feedrelay/pkg/auth"
	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/models"
	"feedrelay/pkg/retry"
)

// Runner executes an external command
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Recorder runs a command template containing {seconds} and {file}
type Recorder struct {
	command     string
	maxDuration time.Duration
	dir         string
	run         Runner
}

// NewRecorder creates a recorder writing into dir. A nil runner uses os/exec.
func NewRecorder(command string, maxDuration time.Duration, dir string, run Runner) *Recorder {
	if run == nil {
		run = execRunner
	}
	return &Recorder{command: command, maxDuration: maxDuration, dir: dir, run: run}
}

// Record captures d of audio, capped at the configured maximum, and returns the file path
func (r *Recorder) Record(ctx context.Context, d time.Duration) (string, error) {
	if strings.TrimSpace(r.command) == "" {
		return "", errs.New(errs.ErrorTypeUnknown, "no record command configured")
	}
	if d <= 0 || (r.maxDuration > 0 && d > r.maxDuration) {
		d = r.maxDuration
	}
	seconds := int(d.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	file, err := os.CreateTemp(r.dir, "memo-*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create memo file: %w", err)
	}
	path := file.Name()
	file.Close()

	args := expand(r.command, seconds, path)
	if err := r.run(ctx, args[0], args[1:]...); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("recording failed: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		os.Remove(path)
		return "", errs.New(errs.ErrorTypeUnknown, "recorder produced no audio")
	}
	return path, nil
}

func expand(template string, seconds int, file string) []string {
	fields := strings.Fields(template)
	for i, f := range fields {
		f = strings.ReplaceAll(f, "{seconds}", strconv.Itoa(seconds))
		fields[i] = strings.ReplaceAll(f, "{file}", file)
	}
	return fields
}

// Client uploads memo audio
type Client interface {
	UploadMemo(ctx context.Context, token, filename string, audio io.Reader) (*api.MemoResponse, error)
}

// AuthSource reports whether uploads may proceed
type AuthSource interface {
	Status(ctx context.Context) auth.Status
}

// Counter persists the recorded-memo count
type Counter interface {
	UpdateStats(fn func(*models.SyncStats)) (models.SyncStats, error)
}

// Uploader sends memo files with retry and bumps the memo count on success
type Uploader struct {
	client  Client
	auth    AuthSource
	counter Counter
	retry   *retry.Config
	logger  logger.Logger
}

// NewUploader creates an uploader using retry.DefaultConfig
func NewUploader(client Client, authSource AuthSource, counter Counter, log logger.Logger) *Uploader {
	log = logger.OrDefault(log).WithField("component", "memo")
	cfg := retry.DefaultConfig()
	cfg.Logger = log
	return &Uploader{client: client, auth: authSource, counter: counter, retry: cfg, logger: log}
}

// WithRetry replaces the retry policy
func (u *Uploader) WithRetry(cfg *retry.Config) *Uploader {
	u.retry = cfg
	return u
}

// Upload sends the file at path and returns the new memo count
func (u *Uploader) Upload(ctx context.Context, path string) (*api.MemoResponse, int, error) {
	status := u.auth.Status(ctx)
	if !status.Authenticated {
		return nil, 0, errs.New(errs.ErrorTypeAuth, "authentication required (%s)", status.Reason)
	}

	resp, err := retry.DoWithResult(ctx, func(ctx context.Context) (*api.MemoResponse, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return u.client.UploadMemo(ctx, status.Token, filepath.Base(path), f)
	}, u.retry)
	if err != nil {
		return nil, 0, err
	}

	stats, err := u.counter.UpdateStats(func(s *models.SyncStats) { s.MemoCount++ })
	if err != nil {
		u.logger.WithError(err).Warn("Failed to update memo count")
	}

	u.logger.InfoWithFields("Memo uploaded", map[string]interface{}{
		"memo_id": resp.ID,
		"count":   stats.MemoCount,
	})
	return resp, stats.MemoCount, nil
}
