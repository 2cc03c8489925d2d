// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversation snapshots and user ids.
//
// Persistence is a mirror, never the source of truth: callers log and
// swallow every error returned here. The package splits into a small
// key/value Backend port and a SnapshotStore that speaks messages.
//
// # Backends
//
//   - FileBackend: one JSON file per key, written atomically
//   - SQLiteBackend: a kv table in a local SQLite database (modernc, no cgo)
//   - RedisBackend: prefixed keys with an optional TTL
//   - MemoryBackend: process-local map, for tests and --ephemeral runs
//
// # Usage
//
//	backend, err := storage.NewFileBackend(filepath.Join(dir, "widgets"))
//	snap := storage.NewSnapshotStore(backend, "chat_messages", "chat_user_id")
//	msgs, err := snap.Load(ctx)
//
// # Storage Location
//
// File and SQLite backends default to ~/.presence-chat/.
package storage
