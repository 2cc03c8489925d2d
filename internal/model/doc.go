// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat messages.
//
// # Key Types
//
//   - Message: one turn with role, text, status, sources and end-of-turn metadata
//   - Status: lifecycle of a message (final, streaming, errored)
//   - Source: a reference attached to an assistant reply
//   - Suggestions: follow-up choices offered by the backend
//
// # Usage
//
// A send produces a user message and an empty streaming placeholder:
//
//	user := model.NewUserMessage("Bonjour")
//	reply := model.NewPlaceholder()
//	reply.Text += "Bon"
//	reply.Finalize("Bonjour!", nil)
package model
