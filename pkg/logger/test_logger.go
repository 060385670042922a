package logger

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// TestLogger captures log entries in memory for assertions
type TestLogger struct {
	mu      *sync.Mutex
	entries *[]Entry
	fields  map[string]interface{}
}

// Entry is one captured log line
type Entry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// NewTestLogger creates an empty capturing logger
func NewTestLogger() *TestLogger {
	entries := make([]Entry, 0)
	return &TestLogger{
		mu:      &sync.Mutex{},
		entries: &entries,
		fields:  map[string]interface{}{},
	}
}

func (l *TestLogger) record(level, msg string, extra map[string]interface{}) {
	merged := make(map[string]interface{}, len(l.fields)+len(extra))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, Entry{Level: level, Message: msg, Fields: merged})
}

func (l *TestLogger) Debug(msg string) { l.record("debug", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.record("info", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.record("warn", msg, nil) }
func (l *TestLogger) Error(msg string) { l.record("error", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.record("fatal", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, f map[string]interface{}) {
	l.record("debug", msg, f)
}
func (l *TestLogger) InfoWithFields(msg string, f map[string]interface{}) { l.record("info", msg, f) }
func (l *TestLogger) WarnWithFields(msg string, f map[string]interface{}) { l.record("warn", msg, f) }
func (l *TestLogger) ErrorWithFields(msg string, f map[string]interface{}) {
	l.record("error", msg, f)
}
func (l *TestLogger) FatalWithFields(msg string, f map[string]interface{}) {
	l.record("fatal", msg, f)
}

// WithField returns a child sharing the same capture buffer
func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a child sharing the same capture buffer
func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{mu: l.mu, entries: l.entries, fields: merged}
}

func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *TestLogger) WithContext(ctx context.Context) Logger { return l }

func (l *TestLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

// Entries returns a copy of everything captured so far
func (l *TestLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(*l.entries))
	copy(out, *l.entries)
	return out
}

// Contains reports whether any entry at level contains substr
func (l *TestLogger) Contains(level, substr string) bool {
	for _, e := range l.Entries() {
		if (level == "" || e.Level == level) && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// Reset drops captured entries
func (l *TestLogger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = (*l.entries)[:0]
}
