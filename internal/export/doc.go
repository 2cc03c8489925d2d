// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a conversation to a file.
//
// # Formats
//
//   - Markdown: YAML frontmatter, one section per message, sources listed
//     under each assistant reply
//   - JSON: the raw message list with export metadata
//
// # Usage
//
//	doc := export.NewDocument("ntic2", client.Messages())
//	path, err := export.ToFile(doc, export.NewMarkdownExporter(nil), nil)
//
// Streaming messages are skipped. Errored replies are kept and flagged.
package export
