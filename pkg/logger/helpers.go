package logger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs a completed HTTP request at a level matching its status
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 500:
		OrDefault(l).ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		OrDefault(l).WarnWithFields("HTTP request client error", fields)
	default:
		OrDefault(l).DebugWithFields("HTTP request completed", fields)
	}
}

// LogScanPass logs one collector pass
func LogScanPass(l Logger, pass, matched, added, total, emptyPasses int) {
	OrDefault(l).DebugWithFields("Scan pass finished", map[string]interface{}{
		"pass":         pass,
		"matched":      matched,
		"new_items":    added,
		"total":        total,
		"empty_passes": emptyPasses,
	})
}

// LogDelivery logs the outcome of a single item delivery
func LogDelivery(l Logger, itemID string, success bool, err error, duration time.Duration) {
	fields := map[string]interface{}{
		"item_id":     itemID,
		"success":     success,
		"duration_ms": duration.Milliseconds(),
	}

	if err != nil {
		OrDefault(l).WithError(err).WarnWithFields("Item delivery failed", fields)
		return
	}
	OrDefault(l).DebugWithFields("Item delivered", fields)
}

// LogMessage logs cross-context traffic
func LogMessage(l Logger, from, to, msgType string, err error) {
	fields := map[string]interface{}{
		"from": from,
		"to":   to,
		"type": msgType,
	}

	if err != nil {
		OrDefault(l).WithError(err).DebugWithFields("Message delivery failed", fields)
		return
	}
	OrDefault(l).DebugWithFields("Message delivered", fields)
}

// LogRunSummary logs the final counters of a run
func LogRunSummary(l Logger, runID string, collected, successful, failed int, elapsed time.Duration) {
	rate := 0.0
	if successful+failed > 0 {
		rate = float64(successful) / float64(successful+failed) * 100
	}

	OrDefault(l).InfoWithFields("Sync run finished", map[string]interface{}{
		"run_id":       runID,
		"collected":    collected,
		"successful":   successful,
		"failed":       failed,
		"success_rate": fmt.Sprintf("%.1f%%", rate),
		"duration":     elapsed,
	})
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, config map[string]interface{}) {
	cl := OrDefault(l).WithField("component", component)
	if len(config) > 0 {
		cl = cl.WithFields(config)
	}
	cl.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	OrDefault(l).WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
