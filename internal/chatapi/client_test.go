// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/presence-chat/internal/offline"
)

func newTestClient(t *testing.T, h http.HandlerFunc, ep Endpoints) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, ep)
	require.NoError(t, err)
	return c
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNew_ValidatesBaseURL(t *testing.T) {
	_, err := New("file:///tmp/sock", DefaultEndpoints())
	assert.ErrorIs(t, err, offline.ErrInvalidURLScheme)

	original := offline.IsOfflineMode()
	defer offline.SetOfflineMode(original)
	offline.SetOfflineMode(true)

	_, err = New("https://chat.example.org", DefaultEndpoints())
	assert.ErrorIs(t, err, offline.ErrNonLocalhost)

	c, err := New("http://localhost:8000/", DefaultEndpoints())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", c.BaseURL())
}

// =============================================================================
// STREAMING
// =============================================================================

func TestOpenStream_SendsBody(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"type\":\"content\",\"content\":\"Bon\"}\n\n")
	}, DefaultEndpoints())

	body, err := c.OpenStream(context.Background(), Request{Text: "Bonjour", UserID: "user_1"})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content":"Bon"`)
	assert.Equal(t, map[string]any{"message": "Bonjour", "user_id": "user_1"}, got)
}

func TestOpenStream_QuestionFieldWithoutUserID(t *testing.T) {
	var got map[string]any
	ep := Endpoints{StreamPath: "/api/chatbot/ask/stream", MessageField: "question"}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}, ep)

	body, err := c.OpenStream(context.Background(), Request{Text: "Absences ?", UserID: "user_1"})
	require.NoError(t, err)
	body.Close()

	assert.Equal(t, map[string]any{"question": "Absences ?"}, got)
}

func TestOpenStream_ErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		message  string
	}{
		{"fastapi detail", 503, `{"detail":"RAG pipeline not available"}`, ErrUnavailable, "RAG pipeline not available"},
		{"flask error", 429, `{"error":"rate_limit"}`, ErrRateLimited, "rate_limit"},
		{"nested error", 500, `{"error":{"message":"boom"}}`, nil, "boom"},
		{"plain text", 500, "Internal Server Error", nil, "Internal Server Error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}, DefaultEndpoints())

			_, err := c.OpenStream(context.Background(), Request{Text: "x"})
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, tc.message, apiErr.Message)
			if tc.sentinel != nil {
				assert.ErrorIs(t, err, tc.sentinel)
			}
		})
	}
}

func TestOpenStream_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, DefaultEndpoints())
	require.NoError(t, err)

	_, err = c.OpenStream(context.Background(), Request{Text: "x"})
	assert.Error(t, err)
}

func TestOpenStream_CancelAbortsRead(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"type\":\"content\",\"content\":\"a\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}, DefaultEndpoints())
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	body, err := c.OpenStream(ctx, Request{Text: "x"})
	require.NoError(t, err)
	defer body.Close()

	buf := make([]byte, 256)
	_, err = body.Read(buf)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(body)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("read did not return after cancel")
	}
}

// =============================================================================
// NON-STREAMING
// =============================================================================

func TestAsk(t *testing.T) {
	var got map[string]any
	ep := Endpoints{StreamPath: "/s", AskPath: "/api/chatbot/ask", MessageField: "question"}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chatbot/ask", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"question":"q","response":"Voici la réponse","sources":[]}`)
	}, ep)

	reply, err := c.Ask(context.Background(), Request{Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, "Voici la réponse", reply)
	assert.Equal(t, map[string]any{"question": "q"}, got)
}

func TestAsk_NoFallback(t *testing.T) {
	c, err := New("http://localhost:1", Endpoints{StreamPath: "/s"})
	require.NoError(t, err)
	assert.False(t, c.CanFallback())

	_, err = c.Ask(context.Background(), Request{Text: "q"})
	assert.ErrorIs(t, err, ErrNoFallback)
}

func TestExtractReply(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		err  error
	}{
		{"response", `{"response":"a"}`, "a", nil},
		{"reply", `{"reply":"b","sources":[]}`, "b", nil},
		{"answer", `{"answer":"c"}`, "c", nil},
		{"message", `{"message":"d"}`, "d", nil},
		{"content", `{"content":"e"}`, "e", nil},
		{"priority", `{"content":"late","response":"first"}`, "first", nil},
		{"skips empty", `{"response":"","reply":"  ","answer":"ok"}`, "ok", nil},
		{"messages strings", `{"messages":["a","last"]}`, "last", nil},
		{"messages objects", `{"messages":[{"role":"user","content":"q"},{"role":"assistant","content":"r"}]}`, "r", nil},
		{"messages text", `{"messages":[{"text":"t"}]}`, "t", nil},
		{"non-string reply", `{"reply":42}`, "", ErrEmptyReply},
		{"nothing", `{"sources":[]}`, "", ErrEmptyReply},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractReply([]byte(tc.body))
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ExtractReply([]byte("not json"))
	assert.Error(t, err)
}

func TestClear(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/clear", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"status":"success"}`)
	}, DefaultEndpoints())

	require.NoError(t, c.Clear(context.Background(), "user_42"))
	assert.Equal(t, map[string]any{"user_id": "user_42"}, got)
}

func TestClear_NoEndpoint(t *testing.T) {
	c, err := New("http://localhost:1", Endpoints{StreamPath: "/s"})
	require.NoError(t, err)
	assert.NoError(t, c.Clear(context.Background(), "u"))
}

func TestReadResponse_TooLarge(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"reply":"`)
		io.WriteString(w, strings.Repeat("a", MaxResponseSize))
		io.WriteString(w, `"}`)
	}, DefaultEndpoints())

	_, err := c.Ask(context.Background(), Request{Text: "q"})
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestRateLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"reply":"ok"}`)
	}, DefaultEndpoints())
	c.WithRateLimit(0.001, 1)

	_, err := c.Ask(context.Background(), Request{Text: "q"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Ask(ctx, Request{Text: "q"})
	assert.ErrorIs(t, err, ErrRateLimited)
}
