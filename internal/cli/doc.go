// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the presence-chat terminal client.
//
// Commands:
//
//	presence-chat                     Interactive chat (default)
//	presence-chat ask "question"      Send one question and print the reply
//	presence-chat status              Show backend capabilities
//	presence-chat widgets             List configured widgets
//	presence-chat version             Show version information
//
// The REPL streams replies as they arrive, renders final replies as
// markdown on a terminal and accepts slash commands (/help for the list).
// Logs go to a file so they never interleave with the conversation.
package cli
