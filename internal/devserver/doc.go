// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package devserver provides a scripted chat backend for development and
// tests. It serves every widget's endpoints with the same wire format as
// the production backends.
//
// Endpoints:
//   - POST /api/chat/stream, /api/chatbot/stream, /api/chatbot/ask/stream
//   - POST /api/chat/message, /api/chat, /api/chatbot/ask
//   - GET  /api/chat/status, /api/chatbot/status
//   - POST /api/chat/clear
//   - GET  /health, /stats
//   - PUT  /admin/mode
//
// Modes inject faults so clients can be exercised against every failure
// class: server error events, unavailable streams, malformed frames,
// truncated streams and slow chunk delivery.
package devserver
