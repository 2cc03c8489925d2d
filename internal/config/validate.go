// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jeranaias/presence-chat/internal/offline"
)

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if err := validateBaseURL(c.Server.BaseURL, c.Offline); err != nil {
		add("server.base_url", "%v", err)
	}
	if c.Server.TimeoutSecs < 0 || c.Server.TimeoutSecs > 600 {
		add("server.timeout_secs", "must be between 0 and 600, got %d", c.Server.TimeoutSecs)
	}

	// Status / retry / rate
	if c.Status.PollIntervalSecs < 1 {
		add("status.poll_interval_secs", "must be at least 1, got %d", c.Status.PollIntervalSecs)
	}
	if c.Retry.MaxAttempts < 0 || c.Retry.MaxAttempts > 10 {
		add("retry.max_attempts", "must be between 0 and 10, got %d", c.Retry.MaxAttempts)
	}
	if c.Rate.RequestsPerSecond < 0 {
		add("rate.requests_per_second", "must not be negative")
	}
	if c.Rate.RequestsPerSecond > 0 && c.Rate.Burst < 1 {
		add("rate.burst", "must be at least 1 when rate limiting is enabled")
	}

	// Logging
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format", "invalid format '%s', must be one of: text, json", c.Log.Format)
	}

	// Storage
	switch c.Storage.Backend {
	case "file", "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			add("storage.sqlite_path", "required when backend is sqlite")
		}
	case "redis":
		if c.Storage.RedisURL == "" {
			add("storage.redis_url", "required when backend is redis")
		}
	default:
		add("storage.backend", "invalid backend '%s', must be one of: file, sqlite, redis, memory", c.Storage.Backend)
	}
	if c.Storage.RedisTTLHours < 0 {
		add("storage.redis_ttl_hours", "must not be negative")
	}

	// Messages
	if strings.Count(c.Messages.ServerError, "%s") != 1 {
		add("messages.server_error", "must contain exactly one %%s placeholder")
	}

	// Widgets
	if _, ok := c.Widgets[c.DefaultWidget]; !ok {
		add("default_widget", "unknown widget '%s'", c.DefaultWidget)
	}
	for _, name := range c.WidgetNames() {
		w := c.Widgets[name]
		prefix := "widgets." + name
		if w.StreamPath == "" {
			add(prefix+".stream_path", "required")
		}
		for field, path := range map[string]string{
			"stream_path": w.StreamPath,
			"ask_path":    w.AskPath,
			"status_path": w.StatusPath,
			"clear_path":  w.ClearPath,
		} {
			if path != "" && !strings.HasPrefix(path, "/") {
				add(prefix+"."+field, "must start with '/', got '%s'", path)
			}
		}
		if w.StorageKey == w.UserIDKey {
			add(prefix+".user_id_key", "must differ from storage_key")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validateBaseURL checks the backend URL with offline mode applied only to
// this check, so validation never flips the process-wide switch.
func validateBaseURL(raw string, offlineOnly bool) error {
	if err := offline.ValidateURL(raw); err != nil {
		return err
	}
	if !offlineOnly {
		return nil
	}
	if u, err := url.Parse(raw); err == nil && !offline.IsLocalhost(u.Hostname()) {
		return fmt.Errorf("%w: %s", offline.ErrNonLocalhost, raw)
	}
	return nil
}
