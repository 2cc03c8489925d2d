// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ============================================================================
// Rate Limiting
// ============================================================================

// RateLimiter implements a sliding window rate limiter per client IP.
type RateLimiter struct {
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	mu       sync.Mutex
}

// NewRateLimiter creates a RateLimiter allowing limit requests per window.
// Stale entries are pruned on access.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow records a request from ip and reports whether it is within the limit.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	valid := rl.prune(ip, now)
	if len(valid) >= rl.limit {
		return false
	}
	rl.requests[ip] = append(valid, now)
	return true
}

// Remaining returns how many requests ip may still make in the window.
func (rl *RateLimiter) Remaining(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	remaining := rl.limit - len(rl.prune(ip, time.Now()))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// prune drops timestamps outside the window. Callers hold rl.mu.
func (rl *RateLimiter) prune(ip string, now time.Time) []time.Time {
	windowStart := now.Add(-rl.window)
	timestamps := rl.requests[ip]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	if len(valid) == 0 {
		delete(rl.requests, ip)
		return nil
	}
	rl.requests[ip] = valid
	return valid
}

// RateLimit rejects chat requests over the limit with 429 and the
// {"error": "rate_limit"} body the Flask backend uses. Status, health and
// admin routes are not limited.
func RateLimit(limiter *RateLimiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		ip := c.ClientIP()
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.limit))
		c.Header("X-RateLimit-Window", limiter.window.String())

		if !limiter.Allow(ip) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", fmt.Sprintf("%d", int(limiter.window.Seconds())))
			logger.Warn("rate limit exceeded", "ip", ip, "limit", limiter.limit, "window", limiter.window)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limit"})
			return
		}
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", limiter.Remaining(ip)))
		c.Next()
	}
}

// ============================================================================
// Request Logging
// ============================================================================

// RequestLogger logs one line per request with its status and duration.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"ip", c.ClientIP(),
		)
	}
}

// ============================================================================
// Security Headers
// ============================================================================

// SecurityHeaders sets conservative response headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// MaxBodySize limits request bodies to n bytes.
func MaxBodySize(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

// ============================================================================
// Recovery
// ============================================================================

// Recovery turns a handler panic into a 500 and logs the stack.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"error", err,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
			}
		}()
		c.Next()
	}
}
