// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation holds the authoritative message list of a chat.
//
// The Store preserves insertion order and only lets a streaming message be
// updated, which makes late events from a superseded exchange harmless.
// Observers receive every change in mutation order.
//
// # Usage
//
//	store := conversation.NewStore()
//	unsubscribe := store.Subscribe(func(c conversation.Change) {
//	    render(store.Snapshot())
//	})
//	defer unsubscribe()
package conversation
