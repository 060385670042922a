// Package logger provides the structured logging interface used across feedrelay.
//
// It wraps zerolog with a small interface so components can accept a Logger
// and tests can substitute NewTestLogger or NewNopLogger.
//
// Basic Usage:
//
//	err := logger.Initialize(&cfg.Logging)
//	logger.WithField("run_id", id).Info("Sync run started")
//
// Components take a Logger explicitly and fall back to the global one:
//
//	log := logger.OrDefault(opts.Logger).WithField("component", "collector")
//	logger.LogScanPass(log, pass, matched, added, total, empty)
//
// Console output is written to stderr. When a log file is configured, entries
// are also appended there as JSON.
package logger
