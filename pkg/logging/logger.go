// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for Refua Labs services.
//
// The package wraps Go's standard slog with the conventions shared by
// our services:
//
//   - JSON records to stdout by default, so container log collectors
//     can ingest them without extra configuration
//   - an optional per-service log file alongside stdout
//   - a "service" attribute stamped on every record
//   - level selection from the LOG_LEVEL environment variable
//
// # Basic Usage
//
// Services call Setup once at startup, which also installs the logger
// as the slog default so package-level slog calls inherit it:
//
//	logger := logging.Setup("medchat-service")
//	defer logger.Close()
//
//	logger.Info("starting", "port", port)
//
// Request-scoped attributes are added with With:
//
//	reqLogger := logger.With("request_id", reqID)
//	reqLogger.Info("turn handled", "phase", phase)
//
// # Log Levels
//
// Four levels are supported, matching slog conventions: Debug for
// development troubleshooting, Info for normal operations, Warn for
// recoverable issues, and Error for failed operations.
//
// # Security Considerations
//
// Nothing here redacts sensitive data. Callers must not log profile
// contents, API keys, or raw model prompts; log counts and presence
// flags instead:
//
//	// BAD: logs personal data
//	logger.Info("profile merged", "id", profile.ID)
//
//	// GOOD: log metadata only
//	logger.Info("profile merged", "fields_collected", collected)
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

// Level represents log severity, ordered Debug < Info < Warn < Error.
// Setting a minimum level discards everything below it.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
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

// ParseLevel maps a level name (any case) to a Level. Unrecognized or
// empty input falls back to LevelInfo so a typo in LOG_LEVEL never
// silences a service.
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

// =============================================================================
// Configuration
// =============================================================================

// Config configures Logger behavior. The zero value logs Info and above
// as JSON to stdout with no service attribute.
type Config struct {
	// Level is the minimum level emitted. Default: LevelInfo.
	Level Level

	// Service is stamped on every record as the "service" attribute.
	// Default: "" (no attribute).
	Service string

	// LogDir enables file logging in addition to the primary output.
	// The file is named "{Service}_{YYYY-MM-DD}.log", always JSON, and
	// the directory is created with 0750 permissions if missing.
	// Supports ~ expansion. Default: "" (no file).
	LogDir string

	// Text switches the primary output to human-readable text instead
	// of JSON. File output stays JSON regardless. Default: false.
	Text bool

	// Quiet disables the primary output; records go only to the file
	// (if LogDir is set). Default: false.
	Quiet bool

	// Output overrides the primary destination. Default: os.Stdout.
	// Mainly useful in tests.
	Output io.Writer
}

// =============================================================================
// Logger
// =============================================================================

// Logger is a structured logger writing to one or two destinations.
// It is safe for concurrent use; Close releases the log file if one
// was opened.
type Logger struct {
	slog   *slog.Logger
	config Config

	mu   sync.Mutex
	file *os.File
}

// New creates a Logger from config. The returned Logger should be
// closed when the service shuts down so file output is flushed.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	out := config.Output
	if out == nil {
		out = os.Stdout
	}

	var handlers []slog.Handler
	if !config.Quiet {
		if config.Text {
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		} else {
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		}
	}

	logger := &Logger{config: config}

	if config.LogDir != "" {
		if file, err := openLogFile(config.LogDir, config.Service); err == nil {
			logger.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewJSONHandler(out, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("service", config.Service),
		})
	}

	logger.slog = slog.New(handler)
	return logger
}

// Setup builds the standard service logger from the environment and
// installs it as the slog default.
//
// # Description
//
// Reads LOG_LEVEL (debug/info/warn/error, default info) and LOG_DIR
// (optional file logging directory), creates a JSON logger stamped
// with the service name, and calls slog.SetDefault so both the
// returned Logger and package-level slog calls share one pipeline.
//
// # Inputs
//
//   - service: Service name stamped on every record.
//
// # Outputs
//
//   - *Logger: The configured logger. Callers should defer Close.
func Setup(service string) *Logger {
	logger := New(Config{
		Level:   ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: service,
		LogDir:  os.Getenv("LOG_DIR"),
	})
	slog.SetDefault(logger.slog)
	return logger
}

// Debug logs a message at Debug level with key-value attributes.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs a message at Info level with key-value attributes.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs a message at Warn level with key-value attributes.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs a message at Error level with key-value attributes.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child Logger carrying additional attributes. The
// parent is not modified; the log file handle is shared.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(args...),
		config: l.config,
		file:   l.file,
	}
}

// Slog returns the underlying slog.Logger for features this wrapper
// does not expose.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close syncs and closes the log file, if one was opened. Safe to call
// on loggers without file output.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
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

// multiHandler fans out records to multiple slog handlers, enabling
// simultaneous stdout and file output with different formats.
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
			if err := handler.Handle(ctx, r); err != nil {
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
// Helpers
// =============================================================================

// openLogFile creates the log directory if needed and opens the daily
// log file in append mode.
func openLogFile(dir, service string) (*os.File, error) {
	dir = expandPath(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	if service == "" {
		service = "refualabs"
	}
	filename := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	return os.OpenFile(filepath.Join(dir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
