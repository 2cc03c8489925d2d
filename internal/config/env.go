// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"strings"
)

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
// Supported environment variables:
//   - PRESENCE_BASE_URL: overrides server.base_url
//   - PRESENCE_WIDGET: overrides default_widget
//   - PRESENCE_LOG_LEVEL: overrides log.level
//   - PRESENCE_STORAGE_BACKEND: overrides storage.backend
//   - PRESENCE_REDIS_URL: overrides storage.redis_url
//   - PRESENCE_OFFLINE: restricts the backend to localhost
func (c *Config) ApplyEnvOverrides() {
	if url := os.Getenv("PRESENCE_BASE_URL"); url != "" {
		c.Server.BaseURL = url
	}

	if widget := os.Getenv("PRESENCE_WIDGET"); widget != "" {
		c.DefaultWidget = strings.ToLower(widget)
	}

	if level := os.Getenv("PRESENCE_LOG_LEVEL"); level != "" {
		c.Log.Level = strings.ToLower(level)
	}

	if backend := os.Getenv("PRESENCE_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = strings.ToLower(backend)
	}

	if redisURL := os.Getenv("PRESENCE_REDIS_URL"); redisURL != "" {
		c.Storage.RedisURL = redisURL
	}

	if off := os.Getenv("PRESENCE_OFFLINE"); off != "" {
		c.Offline = off == "1" || strings.ToLower(off) == "true"
	}
}
