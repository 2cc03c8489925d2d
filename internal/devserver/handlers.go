// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/presence-chat/internal/protocol"
)

// chatRequest accepts both body shapes: {message, user_id} and {question}.
type chatRequest struct {
	Message  string `json:"message"`
	Question string `json:"question"`
	UserID   string `json:"user_id"`
}

func (r chatRequest) text() string {
	if r.Message != "" {
		return strings.TrimSpace(r.Message)
	}
	return strings.TrimSpace(r.Question)
}

// bind parses and validates a chat request, writing a FastAPI-style
// {"detail": ...} error on failure.
func (s *Server) bind(c *gin.Context) (chatRequest, bool) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.stats.errors.Add(1)
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body"})
		return req, false
	}
	text := req.text()
	if text == "" {
		s.stats.errors.Add(1)
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Message is required"})
		return req, false
	}
	if len(text) > MaxQuestionLength {
		s.stats.errors.Add(1)
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Message too long"})
		return req, false
	}
	return req, true
}

func (s *Server) recordTurn(userID string) {
	if userID == "" {
		return
	}
	s.mu.Lock()
	s.history[userID]++
	s.mu.Unlock()
}

// ============================================================================
// STREAM HANDLER
// ============================================================================

func (s *Server) handleStream(c *gin.Context) {
	s.stats.stream.Add(1)
	mode := s.Mode()
	if mode == ModeBroken || mode == ModeDown {
		s.stats.errors.Add(1)
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Service temporarily unavailable"})
		return
	}

	req, ok := s.bind(c)
	if !ok {
		return
	}
	s.recordTurn(req.UserID)
	res := lookup(req.text())

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	send := func(frame any) bool {
		data, _ := json.Marshal(frame)
		c.Writer.WriteString("data: " + string(data) + "\n\n")
		c.Writer.Flush()
		if mode != ModeSlow {
			return ctx.Err() == nil
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.delay):
			return true
		}
	}

	parts := chunks(res.Reply)
	if mode == ModeError && len(parts) > 2 {
		parts = parts[:2]
	}
	for i, part := range parts {
		if !send(gin.H{"type": protocol.KindContent, "content": part}) {
			s.logger.Debug("client went away", "sent", i)
			return
		}
		if mode == ModeCorrupt && i%2 == 0 {
			c.Writer.WriteString("data: {not valid json\n\n")
			c.Writer.WriteString(": keepalive\n\n")
		}
	}

	switch mode {
	case ModeError:
		s.stats.errors.Add(1)
		send(gin.H{"type": protocol.KindError, "message": "Le modèle de langage ne répond pas"})
	case ModeTruncated:
		// close without an end event
	default:
		send(gin.H{"type": protocol.KindEnd, "data": res})
	}
}

// ============================================================================
// NON-STREAMING HANDLER
// ============================================================================

// handleAsk answers with every reply field the widgets read, so each
// client finds its own.
func (s *Server) handleAsk(c *gin.Context) {
	s.stats.ask.Add(1)
	if s.Mode() == ModeDown {
		s.stats.errors.Add(1)
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Service temporarily unavailable"})
		return
	}
	req, ok := s.bind(c)
	if !ok {
		return
	}
	s.recordTurn(req.UserID)
	res := lookup(req.text())

	c.JSON(http.StatusOK, gin.H{
		"question": req.text(),
		"reply":    res.Reply,
		"response": res.Reply,
		"sources":  res.Sources,
		"rag_used": res.RAGUsed,
		"intent":   "dev",
	})
}

// ============================================================================
// STATUS AND CLEAR
// ============================================================================

func (s *Server) handleStatus(c *gin.Context) {
	s.stats.status.Add(1)
	if s.Mode() == ModeDown {
		c.JSON(http.StatusOK, gin.H{"status": "unavailable", "chunks": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":               "ok",
		"connected":            true,
		"chunks":               Documents,
		"providers_configured": []string{"dev"},
	})
}

func (s *Server) handleChatbotStatus(c *gin.Context) {
	s.stats.status.Add(1)
	down := s.Mode() == ModeDown
	docs := Documents
	if down {
		docs = 0
	}
	c.JSON(http.StatusOK, gin.H{
		"status":              "ok",
		"rag_initialized":     !down,
		"knowledge_documents": docs,
	})
}

func (s *Server) handleClear(c *gin.Context) {
	s.stats.clear.Add(1)
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body"})
		return
	}
	s.mu.Lock()
	delete(s.history, req.UserID)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// ============================================================================
// ADMIN
// ============================================================================

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": Version,
		"mode":    s.Mode(),
		"uptime":  time.Since(s.stats.start).Round(time.Second).String(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.Stats())
}

func (s *Server) handleSetMode(c *gin.Context) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body"})
		return
	}
	mode, err := ParseMode(body.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	s.SetMode(mode)
	s.logger.Info("mode changed", "mode", mode)
	c.JSON(http.StatusOK, gin.H{"mode": mode})
}

