// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/presence-chat/internal/offline"
)

// Configuration constants.
const (
	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed non-streaming response body.
	MaxResponseSize = 10 * 1024 * 1024

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 * 1024

	userAgent = "presence-chat/0.3.0"
)

var (
	// sharedHTTPClient serves non-streaming calls; the per-client timeout is
	// applied through the request context.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}

	// sharedStreamingClient has no timeout; streams are bounded by context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
)

// Endpoints describes one widget's backend surface.
type Endpoints struct {
	StreamPath string
	AskPath    string // empty disables the non-streaming fallback
	StatusPath string
	ClearPath  string

	// MessageField names the text field of the stream request body
	// ("message" or "question").
	MessageField string
	// AskField names the text field of the non-streaming request body.
	AskField string
	// SendUserID adds user_id to stream and ask bodies.
	SendUserID bool
}

// DefaultEndpoints returns the endpoints of the main assistant widget.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		StreamPath:   "/api/chat/stream",
		AskPath:      "/api/chat/message",
		StatusPath:   "/api/chat/status",
		ClearPath:    "/api/chat/clear",
		MessageField: "message",
		AskField:     "message",
		SendUserID:   true,
	}
}

// Request is one user turn.
type Request struct {
	Text   string
	UserID string
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to one backend.
type Client struct {
	baseURL   string
	endpoints Endpoints
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger

	httpClient   *http.Client
	streamClient *http.Client
}

// New creates a client. The base URL must be http(s) and, in offline mode,
// loopback.
func New(baseURL string, endpoints Endpoints) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if err := offline.ValidateURL(baseURL); err != nil {
		return nil, fmt.Errorf("backend url %q: %w", baseURL, err)
	}
	if endpoints.MessageField == "" {
		endpoints.MessageField = "message"
	}
	if endpoints.AskField == "" {
		endpoints.AskField = endpoints.MessageField
	}
	return &Client{
		baseURL:      baseURL,
		endpoints:    endpoints,
		timeout:      DefaultTimeout,
		logger:       slog.Default(),
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamingClient,
	}, nil
}

// WithTimeout sets the timeout of non-streaming calls.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// WithRateLimit throttles outgoing requests. A non-positive rps disables
// the limiter.
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	if rps <= 0 {
		c.limiter = nil
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithHTTPClient replaces both underlying HTTP clients.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
		c.streamClient = hc
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Endpoints returns the configured endpoints.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// CanFallback reports whether a non-streaming endpoint is configured.
func (c *Client) CanFallback() bool {
	return c.endpoints.AskPath != ""
}

// =============================================================================
// STREAMING
// =============================================================================

// OpenStream posts the request and returns the event stream body. The
// caller must close it. Cancelling ctx aborts the read in progress.
func (c *Client) OpenStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	body := c.body(c.endpoints.MessageField, req)
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.endpoints.StreamPath, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	c.logResponse(httpReq, resp, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, handleErrorResponse(resp.StatusCode, data)
	}
	return resp.Body, nil
}

// =============================================================================
// NON-STREAMING
// =============================================================================

// replyCandidates are checked in order for the non-streaming reply.
var replyCandidates = []string{"response", "reply", "answer", "message", "content"}

// Ask performs the non-streaming request and extracts the reply text.
func (c *Client) Ask(ctx context.Context, req Request) (string, error) {
	if !c.CanFallback() {
		return "", ErrNoFallback
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.do(ctx, http.MethodPost, c.endpoints.AskPath, c.body(c.endpoints.AskField, req))
	if err != nil {
		return "", err
	}
	reply, err := ExtractReply(data)
	if err != nil {
		return "", err
	}
	return reply, nil
}

// ExtractReply finds the reply in a non-streaming response body: the first
// non-empty candidate field, else the last entry of "messages".
func ExtractReply(data []byte) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", fmt.Errorf("failed to parse reply: %w", err)
	}

	for _, name := range replyCandidates {
		var s string
		if raw, ok := fields[name]; ok && json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return s, nil
		}
	}

	var messages []json.RawMessage
	if raw, ok := fields["messages"]; ok && json.Unmarshal(raw, &messages) == nil && len(messages) > 0 {
		last := messages[len(messages)-1]
		var s string
		if json.Unmarshal(last, &s) == nil && strings.TrimSpace(s) != "" {
			return s, nil
		}
		var obj struct {
			Content string `json:"content"`
			Text    string `json:"text"`
		}
		if json.Unmarshal(last, &obj) == nil {
			if obj.Content != "" {
				return obj.Content, nil
			}
			if obj.Text != "" {
				return obj.Text, nil
			}
		}
	}
	return "", ErrEmptyReply
}

// Clear asks the backend to drop the history of userID. The response body
// is ignored.
func (c *Client) Clear(ctx context.Context, userID string) error {
	if c.endpoints.ClearPath == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.do(ctx, http.MethodPost, c.endpoints.ClearPath, map[string]any{"user_id": userID})
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Client) body(field string, req Request) map[string]any {
	body := map[string]any{field: req.Text}
	if c.endpoints.SendUserID && req.UserID != "" {
		body["user_id"] = req.UserID
	}
	return body
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// do performs a non-streaming request and returns the body of a 2xx reply.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.logResponse(req, resp, time.Since(start))

	data, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, handleErrorResponse(resp.StatusCode, data)
	}
	return data, nil
}

// readResponse reads a body up to MaxResponseSize.
func readResponse(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > MaxResponseSize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrResponseTooLarge, MaxResponseSize)
	}
	return data, nil
}

func (c *Client) logResponse(req *http.Request, resp *http.Response, d time.Duration) {
	c.logger.Debug("backend response",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", d.Round(time.Millisecond))
}
