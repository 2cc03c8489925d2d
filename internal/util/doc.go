// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across presence-chat.
//
//   - AtomicWriteFile: crash-safe file writes for snapshots and config
//   - TruncateRunes: UTF-8 safe truncation for log lines and previews
//   - TruncateWidth: display-width truncation for terminal output
package util
