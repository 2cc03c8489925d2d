// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/presence-chat/internal/model"
	"github.com/jeranaias/presence-chat/internal/util"
)

// ErrEmpty is returned when there is nothing to export.
var ErrEmpty = errors.New("conversation has no messages")

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a document in one format.
type Exporter interface {
	Export(doc *Document) ([]byte, error)

	// FileExtension returns the extension, dot included.
	FileExtension() string
}

// Document is the exported view of a conversation.
type Document struct {
	Widget   string          `json:"widget"`
	Exported time.Time       `json:"exported"`
	Messages []model.Message `json:"messages"`
}

// NewDocument builds a document from a snapshot, dropping messages that
// are still streaming.
func NewDocument(widget string, msgs []model.Message) *Document {
	doc := &Document{Widget: widget, Exported: time.Now()}
	for _, m := range msgs {
		if m.IsStreaming() {
			continue
		}
		doc.Messages = append(doc.Messages, m.Clone())
	}
	return doc
}

// Title is the first user question, or the widget name.
func (d *Document) Title() string {
	for _, m := range d.Messages {
		if m.Role == model.RoleUser && strings.TrimSpace(m.Text) != "" {
			return util.TruncateRunes(strings.TrimSpace(m.Text), 60)
		}
	}
	return "Conversation " + d.Widget
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is where generated file names are placed. Default: ".".
	OutputDir string

	// Path overrides the generated file name entirely.
	Path string

	// IncludeMetadata adds the frontmatter and per-reply sources.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message times.
	IncludeTimestamps bool
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ToFile renders doc and writes it atomically. It returns the path written.
func ToFile(doc *Document, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if doc == nil || len(doc.Messages) == 0 {
		return "", ErrEmpty
	}

	content, err := exporter.Export(doc)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	path := opts.Path
	if path == "" {
		dir := opts.OutputDir
		if dir == "" {
			dir = "."
		}
		path = filepath.Join(dir, fmt.Sprintf("conversation_%s_%s%s",
			sanitizeFilename(doc.Widget),
			doc.Exported.Format("20060102_150405"),
			exporter.FileExtension(),
		))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// ForFormat returns the exporter for "md"/"markdown" or "json".
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(format) {
	case "", "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	}
	return nil, fmt.Errorf("unknown export format %q (md, json)", format)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(s, 50)

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
