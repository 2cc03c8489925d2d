// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/presence-chat/internal/logging"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8090"

	// DefaultChunkDelay paces content frames in slow mode.
	DefaultChunkDelay = 150 * time.Millisecond

	// MaxRequestBodySize bounds request bodies (64KB).
	MaxRequestBodySize = 64 * 1024

	// MaxQuestionLength is the longest accepted question, in bytes.
	MaxQuestionLength = 4000

	// Documents is the knowledge base size reported by the status endpoints.
	Documents = 128

	// Version is the dev server version.
	Version = "0.1.0"
)

// ============================================================================
// MODES
// ============================================================================

// Mode selects the scripted behaviour.
type Mode string

const (
	ModeNormal    Mode = "normal"    // content frames then end
	ModeError     Mode = "error"     // partial content then an error event
	ModeBroken    Mode = "broken"    // streams answer 503, non-streaming works
	ModeDown      Mode = "down"      // every chat endpoint answers 503
	ModeSlow      Mode = "slow"      // normal, with a delay between frames
	ModeCorrupt   Mode = "corrupt"   // malformed frames between valid ones
	ModeTruncated Mode = "truncated" // content frames, then close without end
)

// ParseMode validates a mode name.
func ParseMode(name string) (Mode, error) {
	switch m := Mode(name); m {
	case ModeNormal, ModeError, ModeBroken, ModeDown, ModeSlow, ModeCorrupt, ModeTruncated:
		return m, nil
	case "":
		return ModeNormal, nil
	}
	return "", fmt.Errorf("unknown mode %q", name)
}

// ============================================================================
// SERVER STATS
// ============================================================================

// Stats counts served requests.
type Stats struct {
	StreamRequests int64     `json:"stream_requests"`
	AskRequests    int64     `json:"ask_requests"`
	StatusRequests int64     `json:"status_requests"`
	ClearRequests  int64     `json:"clear_requests"`
	Errors         int64     `json:"errors"`
	StartTime      time.Time `json:"start_time"`
}

type counters struct {
	stream, ask, status, clear, errors atomic.Int64
	start                              time.Time
}

func (c *counters) snapshot() Stats {
	return Stats{
		StreamRequests: c.stream.Load(),
		AskRequests:    c.ask.Load(),
		StatusRequests: c.status.Load(),
		ClearRequests:  c.clear.Load(),
		Errors:         c.errors.Load(),
		StartTime:      c.start,
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Options configure a Server.
type Options struct {
	Mode       Mode
	ChunkDelay time.Duration
	Logger     *slog.Logger

	// RateLimit is the number of chat requests allowed per client per
	// RateWindow. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Server is the scripted backend.
type Server struct {
	engine *gin.Engine
	logger *slog.Logger
	delay  time.Duration
	stats  *counters

	mu      sync.RWMutex
	mode    Mode
	history map[string]int // user id -> turns

	httpServer *http.Server
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.ChunkDelay <= 0 {
		opts.ChunkDelay = DefaultChunkDelay
	}
	if opts.Mode == "" {
		opts.Mode = ModeNormal
	}
	s := &Server{
		logger:  logging.OrDefault(opts.Logger),
		delay:   opts.ChunkDelay,
		stats:   &counters{start: time.Now()},
		mode:    opts.Mode,
		history: make(map[string]int),
	}

	engine := gin.New()
	engine.Use(Recovery(s.logger), RequestLogger(s.logger), SecurityHeaders(), MaxBodySize(MaxRequestBodySize))
	if opts.RateLimit > 0 {
		window := opts.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		engine.Use(RateLimit(NewRateLimiter(opts.RateLimit, window), s.logger))
	}
	s.engine = engine
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, for httptest or embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Mode returns the current mode.
func (s *Server) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetMode switches the scripted behaviour for later requests.
func (s *Server) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// Stats returns the request counters.
func (s *Server) Stats() Stats {
	return s.stats.snapshot()
}

// Turns returns how many questions userID asked since its last clear.
func (s *Server) Turns(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history[userID]
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	for _, path := range []string{"/api/chat/stream", "/api/chatbot/stream", "/api/chatbot/ask/stream"} {
		s.engine.POST(path, s.handleStream)
	}
	for _, path := range []string{"/api/chat/message", "/api/chat", "/api/chatbot/ask"} {
		s.engine.POST(path, s.handleAsk)
	}
	s.engine.GET("/api/chat/status", s.handleStatus)
	s.engine.GET("/api/chatbot/status", s.handleChatbotStatus)
	s.engine.POST("/api/chat/clear", s.handleClear)

	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/stats", s.handleStats)
	s.engine.PUT("/admin/mode", s.handleSetMode)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("devserver listening", "addr", ln.Addr().String(), "mode", s.Mode(), "version", Version)
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("devserver shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
