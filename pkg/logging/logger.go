// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for callscope.
//
// The logger is a thin layer over log/slog with two destinations:
//
//   - stderr (default, text or JSON)
//   - a daily JSON log file (optional, enabled by LogDir)
//
// The interactive viewer owns the terminal, so it runs with Quiet set
// and logs only to the file. Headless commands keep stderr output.
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.callscope/logs",
//	    Service: "callscope",
//	})
//	defer logger.Close()
//
//	jobLogger := logger.With("job_id", jobID)
//	jobLogger.Info("poll response", "status", status, "progress", progress)
//
// # Thread Safety
//
// Logger is safe for concurrent use. The poll loop, the layout
// simulation and the UI goroutine all log through the same instance.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity levels.
//
// Levels are ordered by severity: Debug < Info < Warn < Error.
type Level int

const (
	// LevelDebug is for development troubleshooting (every poll tick,
	// every layout frame).
	LevelDebug Level = iota

	// LevelInfo is for lifecycle events (job submitted, results replaced).
	LevelInfo

	// LevelWarn is for recoverable conditions (layout timeout, dangling
	// edges dropped from the index).
	LevelWarn

	// LevelError is for failures of the current flow.
	LevelError
)

// String returns the human-readable name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a configuration string into a Level.
//
// # Inputs
//
//   - s: "debug", "info", "warn"/"warning" or "error" (case-insensitive).
//
// # Outputs
//
//   - Level: The parsed level; LevelInfo for unknown input.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures the Logger behavior.
//
// A zero-value Config writes Info+ messages to stderr in text format.
type Config struct {
	// Level sets the minimum log level.
	Level Level

	// LogDir enables file logging to the given directory.
	//
	// The file is named "{Service}_{YYYY-MM-DD}.log" and is always JSON.
	// Supports ~ expansion. Created with 0750 permissions.
	LogDir string

	// Service is attached to every record as the "service" attribute.
	Service string

	// JSON switches stderr output to JSON.
	JSON bool

	// Quiet disables stderr output. Used while the TUI owns the terminal.
	Quiet bool

	// Writer overrides stderr as the console destination. Tests use it
	// to capture output.
	Writer io.Writer
}

// =============================================================================
// Logger
// =============================================================================

// Logger provides structured logging with console and file output.
//
// # Thread Safety
//
// Safe for concurrent use. Close must be called once, by the owner.
type Logger struct {
	slog   *slog.Logger
	config Config
	file   *os.File
	mu     sync.Mutex
}

// New creates a Logger with the given configuration.
//
// # Description
//
// Builds a slog handler per destination and fans out records to all of
// them. If the log directory cannot be created the logger silently
// falls back to console output only; logging never blocks startup.
//
// # Inputs
//
//   - config: Logger configuration.
//
// # Outputs
//
//   - *Logger: Ready for use. Call Close to release the log file.
func New(config Config) *Logger {
	var handlers []slog.Handler

	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	if !config.Quiet {
		var out io.Writer = os.Stderr
		if config.Writer != nil {
			out = config.Writer
		}
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		}
	}

	logger := &Logger{config: config}

	if config.LogDir != "" {
		if file, err := openLogFile(config); err == nil {
			logger.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		// Quiet with no file: records are dropped.
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	logger.slog = slog.New(handler)
	return logger
}

// Default returns an Info-level stderr logger for the "callscope" service.
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "callscope"})
}

// Discard returns a logger that drops every record.
//
// Used by tests and by components constructed without a logger.
func Discard() *Logger {
	return New(Config{Quiet: true})
}

// Debug logs a message at Debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// Info logs a message at Info level.
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// Warn logs a message at Warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Error logs a message at Error level.
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// With returns a child logger carrying additional attributes.
//
// The child shares the parent's file handle; only the parent should be
// closed.
//
// # Example
//
//	jobLogger := logger.With("job_id", id, "component", "job")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(args...),
		config: l.config,
		file:   l.file,
	}
}

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Path returns the active log file path, or "" when file logging is off.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close syncs and closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync log file: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	l.file = nil
	return nil
}

// =============================================================================
// Multi-Handler (Internal)
// =============================================================================

// multiHandler fans out log records to multiple slog handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// =============================================================================
// Helper Functions
// =============================================================================

func openLogFile(config Config) (*os.File, error) {
	logDir := ExpandPath(config.LogDir)
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return nil, err
	}
	serviceName := config.Service
	if serviceName == "" {
		serviceName = "callscope"
	}
	filename := fmt.Sprintf("%s_%s.log", serviceName, time.Now().Format("2006-01-02"))
	return os.OpenFile(filepath.Join(logDir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
}

// ExpandPath expands a leading ~ to the user's home directory.
//
// Examples:
//   - "~/.callscope/logs" -> "/home/user/.callscope/logs"
//   - "/var/log" -> "/var/log" (unchanged)
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
