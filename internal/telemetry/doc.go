// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry records turn outcomes for presence-chat.
//
// A Tracker accumulates one Run per client process: how many turns
// completed, failed or were interrupted, how often the non-streaming
// fallback was used, and the slowest turns. Runs are saved as JSON under
// the config directory and aggregated into daily trends.
//
// # Usage
//
//	tracker, _ := telemetry.NewTracker(dir, "assistant")
//	c, _ := client.FromConfig(ctx, cfg, "assistant", logger, tracker.RecordSession)
//	defer tracker.Close()
//
// # Privacy
//
// Question text is never stored, only its length.
package telemetry
