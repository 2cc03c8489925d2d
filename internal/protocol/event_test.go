// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/presence-chat/internal/sse"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		ok      bool
		want    Event
	}{
		{
			name:    "content",
			payload: `{"type":"content","content":"Bon"}`,
			ok:      true,
			want:    Event{Kind: KindContent, Content: "Bon"},
		},
		{
			name:    "empty content is still a fragment",
			payload: `{"type":"content","content":""}`,
			ok:      true,
			want:    Event{Kind: KindContent},
		},
		{name: "content missing", payload: `{"type":"content"}`},
		{name: "content null", payload: `{"type":"content","content":null}`},
		{
			name:    "error with content",
			payload: `{"type":"error","content":"quota"}`,
			ok:      true,
			want:    Event{Kind: KindError, Message: "quota"},
		},
		{
			name:    "error with message",
			payload: `{"type":"error","message":"LLM indisponible"}`,
			ok:      true,
			want:    Event{Kind: KindError, Message: "LLM indisponible"},
		},
		{
			name:    "error without message",
			payload: `{"type":"error"}`,
			ok:      true,
			want:    Event{Kind: KindError, Message: UnknownError},
		},
		{
			name:    "error with object content falls back to message",
			payload: `{"type":"error","content":{"detail":"x"},"message":"surcharge"}`,
			ok:      true,
			want:    Event{Kind: KindError, Message: "surcharge"},
		},
		{
			name:    "error with object content",
			payload: `{"type":"error","content":{"detail":"x"}}`,
			ok:      true,
			want:    Event{Kind: KindError, Message: UnknownError},
		},
		{
			name:    "error with numeric message",
			payload: `{"type":"error","message":503}`,
			ok:      true,
			want:    Event{Kind: KindError, Message: UnknownError},
		},
		{name: "content not a string", payload: `{"type":"content","content":42}`},
		{name: "type not a string", payload: `{"type":1,"content":"x"}`},
		{name: "unknown type", payload: `{"type":"ping"}`},
		{name: "no type", payload: `{"content":"x"}`},
		{name: "malformed", payload: `{not valid json`},
		{name: "done marker", payload: `[DONE]`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Interpret(tc.payload)
			require.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestInterpret_End(t *testing.T) {
	ev, ok := Interpret(`{"type":"end","data":{"reply":"Bonjour!","sources":[{"title":"Guide","url":"https://x/guide.pdf","category":"doc","relevance":0.8}],"rag_used":true,"suggestions":{"type":"days","items":["lundi"]},"language":"fr"}}`)
	require.True(t, ok)
	require.Equal(t, KindEnd, ev.Kind)

	res := ev.Result
	assert.Equal(t, "Bonjour!", res.Reply)
	assert.True(t, res.RAGUsed)
	assert.Equal(t, "fr", res.Language)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "Guide", res.Sources[0].Title)
	assert.InDelta(t, 0.8, res.Sources[0].Relevance, 1e-9)
	require.NotNil(t, res.Suggestions)
	assert.Equal(t, []string{"lundi"}, res.Suggestions.Items)
}

func TestInterpret_EndToleratesBadOptionalFields(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		reply       string
		sources     []string
		suggestions bool
	}{
		{
			name:    "mistyped relevance skips that source",
			payload: `{"type":"end","data":{"reply":"R","sources":[{"title":"t","relevance":"0.8"},{"title":"ok"}]}}`,
			reply:   "R",
			sources: []string{"ok"},
		},
		{
			name:    "sources not an array",
			payload: `{"type":"end","data":{"reply":"R","sources":"Guide"}}`,
			reply:   "R",
		},
		{
			name:    "mistyped suggestion items",
			payload: `{"type":"end","data":{"reply":"R","suggestions":{"type":"groups","items":[1,2]}}}`,
			reply:   "R",
		},
		{
			name:        "unknown suggestion type is kept",
			payload:     `{"type":"end","data":{"reply":"R","suggestions":{"type":"rooms","items":["B12"]}}}`,
			reply:       "R",
			suggestions: true,
		},
		{
			name:    "mistyped rag flag and language",
			payload: `{"type":"end","data":{"reply":"R","rag_used":"yes","language":7}}`,
			reply:   "R",
		},
		{
			name:    "reply not a string",
			payload: `{"type":"end","data":{"reply":["R"]}}`,
		},
		{
			name:    "data not an object",
			payload: `{"type":"end","data":"R"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, ok := Interpret(tc.payload)
			require.True(t, ok)
			require.Equal(t, KindEnd, ev.Kind)

			res := ev.Result
			assert.Equal(t, tc.reply, res.Reply)
			assert.False(t, res.RAGUsed)
			assert.Empty(t, res.Language)
			require.NotNil(t, res.Sources)
			var titles []string
			for _, s := range res.Sources {
				titles = append(titles, s.Title)
			}
			assert.Equal(t, tc.sources, titles)
			assert.Equal(t, tc.suggestions, res.Suggestions != nil)
		})
	}
}

func TestInterpret_EndDefaults(t *testing.T) {
	for _, payload := range []string{`{"type":"end"}`, `{"type":"end","data":{}}`, `{"type":"end","data":null}`, `{"type":"end","data":{"suggestions":null}}`} {
		ev, ok := Interpret(payload)
		require.True(t, ok, payload)
		assert.Empty(t, ev.Result.Reply)
		assert.NotNil(t, ev.Result.Sources)
		assert.Empty(t, ev.Result.Sources)
		assert.Nil(t, ev.Result.Suggestions)
	}
}

func TestInterpreter_SkipsMalformedFrames(t *testing.T) {
	stream := "data: {\"type\":\"content\",\"content\":\"Bon\"}\n" +
		"data: {not valid json\n" +
		"data: {\"type\":\"unknown\"}\n" +
		"data: {\"type\":\"content\",\"content\":\"jour\"}\n" +
		"data: {\"type\":\"end\",\"data\":{\"reply\":\"Bonjour!\"}}\n"

	in := NewInterpreter(sse.NewReader(strings.NewReader(stream)), nil)

	var kinds []Kind
	var text strings.Builder
	for {
		ev, err := in.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		kinds = append(kinds, ev.Kind)
		text.WriteString(ev.Content)
	}

	assert.Equal(t, []Kind{KindContent, KindContent, KindEnd}, kinds)
	assert.Equal(t, "Bonjour", text.String())
	assert.Equal(t, 2, in.Dropped())
}
