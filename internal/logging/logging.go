// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the slog loggers shared by presence-chat
// components. A single LevelVar backs every logger built here, so a config
// reload can raise or lower verbosity without rebuilding handlers.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Format names.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options control handler construction.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type ctxKey string

const ctxKeySessionID ctxKey = "session_id"

var (
	level         = new(slog.LevelVar)
	defaultLogger atomic.Pointer[slog.Logger]
)

func init() {
	defaultLogger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

// New returns a logger writing to w. The level is applied to the shared
// LevelVar.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	level.Set(lvl)

	hopts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(opts.Format) {
	case "", FormatText:
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
}

// OpenFile returns a logger appending to path, creating parent directories.
// The returned closer closes the file.
func OpenFile(path string, opts Options) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger, err := New(f, opts)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return logger, f, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel maps a level name to its slog value. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// SetLevel changes the level of every logger built by this package.
func SetLevel(name string) error {
	lvl, err := ParseLevel(name)
	if err != nil {
		return err
	}
	level.Set(lvl)
	return nil
}

// Level returns the current shared level.
func Level() slog.Level {
	return level.Level()
}

// =============================================================================
// PACKAGE LOGGER
// =============================================================================

// Default returns the package-level logger.
func Default() *slog.Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the package-level logger. Nil is ignored.
func SetDefault(l *slog.Logger) {
	if l != nil {
		defaultLogger.Store(l)
	}
}

// OrDefault returns l, or the package-level logger when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Default()
	}
	return l
}

// WithFields returns the package-level logger with additional fields.
func WithFields(kv ...any) *slog.Logger {
	return Default().With(kv...)
}

// WithSessionID stores a session id in the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeySessionID, id)
}

// FromContext adds session_id to l when ctx carries one.
func FromContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	l = OrDefault(l)
	id, _ := ctx.Value(ctxKeySessionID).(string)
	if id == "" {
		return l
	}
	return l.With("session_id", id)
}
