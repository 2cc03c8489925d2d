// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol classifies decoded frame payloads into stream events.
//
// Three kinds are recognized: content fragments, end-of-turn results and
// server errors. Frames that fail to parse, or that carry an unknown type,
// are dropped so one corrupted frame never aborts a turn.
package protocol
