// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// presence-chat.
//
// # Key Types
//
//   - Config: main configuration structure with all settings
//   - WidgetConfig: one widget's endpoints, storage keys and greeting
//   - Messages: localized strings shown in place of failed replies
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (PRESENCE_*)
//   - ~/.presence-chat/config.toml
//   - Built-in defaults, including the four widget presets
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	widget, err := cfg.Widget(cfg.DefaultWidget)
//
// Watch reloads the file on change so the log level can be raised on a
// running client.
package config
