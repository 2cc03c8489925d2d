// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chatapi is the HTTP transport to the assistant backend.
//
// A widget talks to four endpoints, all relative to one base URL:
//
//   - stream: POST, answers with a text/event-stream of "data: " frames
//   - ask:    POST, the non-streaming fallback returning a JSON reply
//   - status: GET, a capability descriptor (documents indexed, providers)
//   - clear:  POST, drops server-side history for a user id
//
// Paths and the name of the message field differ between widgets and are
// carried by Endpoints.
//
// # Usage
//
//	c, err := chatapi.New("http://localhost:8000", chatapi.DefaultEndpoints())
//	body, err := c.OpenStream(ctx, chatapi.Request{Text: "Bonjour", UserID: id})
//	defer body.Close()
package chatapi
