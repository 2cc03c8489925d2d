// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session runs one streaming exchange at a time against the chat
// backend and writes its progress into a conversation Store.
//
// # Key Types
//
//   - Controller: owns the active Session and supersedes it on Start
//   - Session: one user turn, from request to final or errored reply
//   - Transport: the subset of chatapi.Client the controller needs
//
// # Lifecycle
//
// A session moves idle → sending → streaming → final or errored. Start
// cancels the previous session and waits for its goroutine before any new
// message is appended, so at most one assistant message is ever streaming.
// A session that cannot open its stream makes one non-streaming request
// through Transport.Ask before giving up.
//
// # Usage
//
//	ctrl := session.NewController(store, client, session.Options{UserID: id})
//	sess, err := ctrl.Start(ctx, "Quand est l'examen ?")
//	if err != nil {
//	    return err
//	}
//	sess.Wait()
package session
