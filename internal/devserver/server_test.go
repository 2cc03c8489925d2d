// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/presence-chat/internal/logging"
	"github.com/jeranaias/presence-chat/internal/model"
	"github.com/jeranaias/presence-chat/internal/protocol"
	"github.com/jeranaias/presence-chat/internal/sse"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestServer(mode Mode) *Server {
	return New(Options{Mode: mode, ChunkDelay: time.Millisecond, Logger: logging.Discard()})
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// events decodes a stream body the way the client does.
func events(t *testing.T, body string) ([]protocol.Event, int) {
	t.Helper()
	in := protocol.NewInterpreter(sse.NewReader(strings.NewReader(body)), nil)
	var out []protocol.Event
	for {
		ev, err := in.Next()
		if errors.Is(err, io.EOF) {
			return out, in.Dropped()
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func contentOf(evs []protocol.Event) string {
	var b strings.Builder
	for _, ev := range evs {
		if ev.Kind == protocol.KindContent {
			b.WriteString(ev.Content)
		}
	}
	return b.String()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// =============================================================================
// SCRIPT TESTS
// =============================================================================

func TestChunks_ConcatenateToOriginal(t *testing.T) {
	for _, text := range []string{defaultReply, "un", "", "deux  espaces", "é à ü"} {
		assert.Equal(t, text, strings.Join(chunks(text), ""), "text %q", text)
	}
	assert.Greater(t, len(chunks(defaultReply)), 5)
}

func TestLookup(t *testing.T) {
	res := lookup("Quel est mon EMPLOI du temps ?")
	assert.True(t, res.RAGUsed)
	require.NotNil(t, res.Suggestions)
	assert.Equal(t, model.SuggestGroups, res.Suggestions.Type)

	// Returned values are copies.
	res.Suggestions.Items[0] = "changed"
	assert.Equal(t, "DEV101", lookup("planning").Suggestions.Items[0])

	res = lookup("bonjour")
	assert.Equal(t, defaultReply, res.Reply)
	assert.False(t, res.RAGUsed)
	assert.Nil(t, res.Suggestions)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeNormal, m)

	m, err = ParseMode("corrupt")
	require.NoError(t, err)
	assert.Equal(t, ModeCorrupt, m)

	_, err = ParseMode("chaos")
	assert.Error(t, err)
}

// =============================================================================
// STREAM TESTS
// =============================================================================

func TestStream_Normal(t *testing.T) {
	s := newTestServer(ModeNormal)
	rec := do(t, s, http.MethodPost, "/api/chat/stream", `{"message":"Comment justifier une absence ?","user_id":"u1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	evs, dropped := events(t, rec.Body.String())
	assert.Zero(t, dropped)
	require.NotEmpty(t, evs)

	last := evs[len(evs)-1]
	require.Equal(t, protocol.KindEnd, last.Kind)
	assert.Equal(t, last.Result.Reply, contentOf(evs))
	assert.Contains(t, last.Result.Reply, "48 heures")
	assert.Len(t, last.Result.Sources, 1)
	assert.Equal(t, "fr", last.Result.Language)

	assert.Equal(t, 1, s.Turns("u1"))
	assert.EqualValues(t, 1, s.Stats().StreamRequests)
}

func TestStream_QuestionField(t *testing.T) {
	s := newTestServer(ModeNormal)
	rec := do(t, s, http.MethodPost, "/api/chatbot/ask/stream", `{"question":"examen"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	evs, _ := events(t, rec.Body.String())
	last := evs[len(evs)-1]
	require.Equal(t, protocol.KindEnd, last.Kind)
	require.NotNil(t, last.Result.Suggestions)
	assert.Equal(t, model.SuggestDays, last.Result.Suggestions.Type)
}

func TestStream_Modes(t *testing.T) {
	question := `{"message":"Comment fonctionne le check-in ?"}`
	reply := lookup("check-in").Reply

	tests := []struct {
		name  string
		mode  Mode
		check func(t *testing.T, evs []protocol.Event, dropped int)
	}{
		{"slow", ModeSlow, func(t *testing.T, evs []protocol.Event, dropped int) {
			assert.Equal(t, protocol.KindEnd, evs[len(evs)-1].Kind)
			assert.Equal(t, reply, contentOf(evs))
		}},
		{"error", ModeError, func(t *testing.T, evs []protocol.Event, dropped int) {
			last := evs[len(evs)-1]
			require.Equal(t, protocol.KindError, last.Kind)
			assert.Equal(t, "Le modèle de langage ne répond pas", last.Message)
			assert.True(t, strings.HasPrefix(reply, contentOf(evs)))
			assert.Len(t, evs, 3)
		}},
		{"corrupt", ModeCorrupt, func(t *testing.T, evs []protocol.Event, dropped int) {
			assert.Positive(t, dropped)
			assert.Equal(t, protocol.KindEnd, evs[len(evs)-1].Kind)
			assert.Equal(t, reply, contentOf(evs))
		}},
		{"truncated", ModeTruncated, func(t *testing.T, evs []protocol.Event, dropped int) {
			for _, ev := range evs {
				assert.Equal(t, protocol.KindContent, ev.Kind)
			}
			assert.Equal(t, reply, contentOf(evs))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(tt.mode)
			rec := do(t, s, http.MethodPost, "/api/chat/stream", question)
			require.Equal(t, http.StatusOK, rec.Code)
			evs, dropped := events(t, rec.Body.String())
			require.NotEmpty(t, evs)
			tt.check(t, evs, dropped)
		})
	}
}

func TestStream_Unavailable(t *testing.T) {
	for _, mode := range []Mode{ModeBroken, ModeDown} {
		t.Run(string(mode), func(t *testing.T) {
			s := newTestServer(mode)
			rec := do(t, s, http.MethodPost, "/api/chat/stream", `{"message":"bonjour"}`)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			assert.Contains(t, decode(t, rec), "detail")
			assert.EqualValues(t, 1, s.Stats().Errors)
		})
	}
}

func TestStream_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"invalid json", `{"message":`, "Invalid request body"},
		{"empty", `{"message":"   "}`, "Message is required"},
		{"too long", `{"message":"` + strings.Repeat("a", MaxQuestionLength+1) + `"}`, "Message too long"},
		{"over body limit", `{"message":"` + strings.Repeat("a", MaxRequestBodySize) + `"}`, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(ModeNormal)
			rec := do(t, s, http.MethodPost, "/api/chat/stream", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.detail, decode(t, rec)["detail"])
		})
	}
}

// =============================================================================
// NON-STREAMING TESTS
// =============================================================================

func TestAsk(t *testing.T) {
	s := newTestServer(ModeBroken)
	rec := do(t, s, http.MethodPost, "/api/chat/message", `{"message":"absence","user_id":"u2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, body["reply"], body["response"])
	assert.Contains(t, body["reply"], "48 heures")
	assert.Equal(t, true, body["rag_used"])
	assert.Equal(t, 1, s.Turns("u2"))

	s.SetMode(ModeDown)
	rec = do(t, s, http.MethodPost, "/api/chat/message", `{"message":"absence"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// =============================================================================
// STATUS AND CLEAR TESTS
// =============================================================================

func TestStatus(t *testing.T) {
	s := newTestServer(ModeNormal)

	body := decode(t, do(t, s, http.MethodGet, "/api/chat/status", ""))
	assert.Equal(t, true, body["connected"])
	assert.EqualValues(t, Documents, body["chunks"])

	body = decode(t, do(t, s, http.MethodGet, "/api/chatbot/status", ""))
	assert.Equal(t, true, body["rag_initialized"])
	assert.EqualValues(t, Documents, body["knowledge_documents"])

	s.SetMode(ModeDown)
	body = decode(t, do(t, s, http.MethodGet, "/api/chat/status", ""))
	assert.Equal(t, "unavailable", body["status"])
	assert.EqualValues(t, 0, body["chunks"])
	assert.NotContains(t, body, "connected")

	body = decode(t, do(t, s, http.MethodGet, "/api/chatbot/status", ""))
	assert.Equal(t, false, body["rag_initialized"])

	assert.EqualValues(t, 4, s.Stats().StatusRequests)
}

func TestClear(t *testing.T) {
	s := newTestServer(ModeNormal)
	do(t, s, http.MethodPost, "/api/chat/message", `{"message":"a","user_id":"u3"}`)
	do(t, s, http.MethodPost, "/api/chat/message", `{"message":"b","user_id":"u3"}`)
	require.Equal(t, 2, s.Turns("u3"))

	rec := do(t, s, http.MethodPost, "/api/chat/clear", `{"user_id":"u3"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decode(t, rec)["status"])
	assert.Zero(t, s.Turns("u3"))

	rec = do(t, s, http.MethodPost, "/api/chat/clear", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ADMIN TESTS
// =============================================================================

func TestSetMode(t *testing.T) {
	s := newTestServer(ModeNormal)

	rec := do(t, s, http.MethodPut, "/admin/mode", `{"mode":"down"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ModeDown, s.Mode())

	rec = do(t, s, http.MethodPut, "/admin/mode", `{"mode":"chaos"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ModeDown, s.Mode())

	body := decode(t, do(t, s, http.MethodGet, "/health", ""))
	assert.Equal(t, "down", body["mode"])
	assert.Equal(t, Version, body["version"])
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(ModeNormal)
	do(t, s, http.MethodPost, "/api/chat/stream", `{"message":"x"}`)
	do(t, s, http.MethodPost, "/api/chat/message", `{"message":"x"}`)

	var stats Stats
	rec := do(t, s, http.MethodGet, "/stats", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.StreamRequests)
	assert.EqualValues(t, 1, stats.AskRequests)
}

// =============================================================================
// MIDDLEWARE TESTS
// =============================================================================

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	assert.True(t, rl.Allow("a"))
	assert.Equal(t, 1, rl.Remaining("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.Equal(t, 0, rl.Remaining("a"))
	assert.True(t, rl.Allow("b"))

	time.Sleep(70 * time.Millisecond)
	assert.Equal(t, 2, rl.Remaining("a"))
	assert.True(t, rl.Allow("a"))
}

func TestRateLimitMiddleware(t *testing.T) {
	s := New(Options{Logger: logging.Discard(), RateLimit: 2, RateWindow: time.Minute})

	for i := 0; i < 2; i++ {
		rec := do(t, s, http.MethodPost, "/api/chat/message", `{"message":"x"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := do(t, s, http.MethodPost, "/api/chat/message", `{"message":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit", decode(t, rec)["error"])
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// Status is not limited.
	rec = do(t, s, http.MethodGet, "/api/chat/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(ModeNormal)
	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRecovery(t *testing.T) {
	s := newTestServer(ModeNormal)
	s.engine.GET("/panic", func(*gin.Context) { panic("boom") })

	rec := do(t, s, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal Server Error", decode(t, rec)["detail"])
}
