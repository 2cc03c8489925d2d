// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse decodes the chat backend's event stream into frame payloads.
//
// The backend writes one JSON object per "data: " line. Network chunks can
// split a line anywhere, including in the middle of a multi-byte character,
// so the Decoder keeps undecoded bytes and a partial line across calls.
//
// # Key Types
//
//   - Decoder: push-style, Feed chunks and collect complete payloads
//   - Reader: pull-style wrapper over an io.Reader
//
// # Usage
//
//	r := sse.NewReader(resp.Body)
//	for {
//	    payload, err := r.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
//
// A trailing line without a newline is an incomplete frame and is never
// returned. Neither type is reusable across streams.
package sse
