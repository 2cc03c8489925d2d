// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/presence-chat/internal/model"
)

func sampleMessages() []model.Message {
	q := model.NewUserMessage("Quels sont les horaires de la bibliothèque ?")
	a := model.NewAssistantMessage("La bibliothèque ouvre à **8h**.")
	a.Sources = []model.Source{
		{Title: "Guide_étudiant", URL: "https://example.org/guide", Relevance: 0.9},
		{Title: "Règlement"},
	}
	failed := model.NewPlaceholder()
	failed.Fail("Erreur de communication avec le serveur.")
	pending := model.NewPlaceholder()
	pending.AppendText("en cours")
	return []model.Message{q, a, failed, pending}
}

func TestNewDocument_SkipsStreaming(t *testing.T) {
	doc := NewDocument("ntic2", sampleMessages())
	require.Len(t, doc.Messages, 3)
	for _, m := range doc.Messages {
		assert.False(t, m.IsStreaming())
	}
	assert.Equal(t, "Quels sont les horaires de la bibliothèque ?", doc.Title())

	empty := NewDocument("chatbot", nil)
	assert.Equal(t, "Conversation chatbot", empty.Title())
}

func TestMarkdownExporter(t *testing.T) {
	doc := NewDocument("ntic2", sampleMessages())
	out, err := NewMarkdownExporter(nil).Export(doc)
	require.NoError(t, err)

	md := string(out)
	assert.True(t, strings.HasPrefix(md, "---\n"))
	assert.Contains(t, md, "widget: ntic2\n")
	assert.Contains(t, md, "messages: 3\n")
	assert.Contains(t, md, "# Quels sont les horaires de la bibliothèque ?")
	assert.Contains(t, md, "### Vous <sub>")
	assert.Contains(t, md, "La bibliothèque ouvre à **8h**.")
	assert.Contains(t, md, "- [Guide\\_étudiant](https://example.org/guide) (90%)")
	assert.Contains(t, md, "- Règlement\n")
	assert.Contains(t, md, "### Assistant (erreur)")
	assert.NotContains(t, md, "en cours")
}

func TestMarkdownExporter_NoMetadata(t *testing.T) {
	doc := NewDocument("ntic2", sampleMessages())
	out, err := NewMarkdownExporter(&Options{}).Export(doc)
	require.NoError(t, err)

	md := string(out)
	assert.False(t, strings.HasPrefix(md, "---\n"))
	assert.NotContains(t, md, "<sub>")
	assert.NotContains(t, md, "**Sources**")
	assert.Contains(t, md, "### Vous\n")
}

func TestJSONExporter(t *testing.T) {
	doc := NewDocument("smartpresence", sampleMessages())
	out, err := NewJSONExporter(nil).Export(doc)
	require.NoError(t, err)

	var decoded Document
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "smartpresence", decoded.Widget)
	require.Len(t, decoded.Messages, 3)
	assert.Equal(t, model.StatusErrored, decoded.Messages[2].Status)
	assert.Len(t, decoded.Messages[1].Sources, 2)
}

func TestExportEmpty(t *testing.T) {
	doc := NewDocument("ntic2", nil)
	_, err := NewMarkdownExporter(nil).Export(doc)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = ToFile(doc, NewJSONExporter(nil), &Options{OutputDir: t.TempDir()})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestToFile_GeneratedName(t *testing.T) {
	dir := t.TempDir()
	doc := NewDocument("ntic2", sampleMessages())
	doc.Exported = time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local)

	path, err := ToFile(doc, NewMarkdownExporter(nil), &Options{OutputDir: dir, IncludeMetadata: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "conversation_ntic2_20250314_092653.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "generator: presence-chat")
}

func TestToFile_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "chat.json")
	doc := NewDocument("chatbot", sampleMessages())

	got, err := ToFile(doc, NewJSONExporter(nil), &Options{Path: path})
	require.NoError(t, err)
	assert.Equal(t, path, got)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestForFormat(t *testing.T) {
	for format, ext := range map[string]string{"": ".md", "md": ".md", "Markdown": ".md", "json": ".json"} {
		e, err := ForFormat(format, nil)
		require.NoError(t, err, format)
		assert.Equal(t, ext, e.FileExtension(), format)
	}
	_, err := ForFormat("html", nil)
	assert.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ntic2", "ntic2"},
		{"a/b:c", "a-b-c"},
		{"deux mots", "deux_mots"},
		{"", "conversation"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}
