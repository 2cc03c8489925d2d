// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jeranaias/presence-chat/internal/util"
)

// Error variables for common backend failures.
var (
	// ErrRateLimited indicates HTTP 429 or a local limiter refusal.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates the backend or its RAG pipeline is down (502-504).
	ErrUnavailable = errors.New("backend unavailable")

	// ErrEmptyReply indicates a non-streaming response without any reply text.
	ErrEmptyReply = errors.New("empty reply")

	// ErrNoFallback indicates the widget has no non-streaming endpoint.
	ErrNoFallback = errors.New("no non-streaming endpoint configured")

	// ErrResponseTooLarge indicates a body over MaxResponseSize.
	ErrResponseTooLarge = errors.New("response too large")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (HTTP %d)", e.Status)
}

// Unwrap maps well-known statuses to sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ErrUnavailable
	}
	return nil
}

// errorBody covers the error shapes the backends produce: FastAPI's
// {"detail": ...} and {"error": ...} / {"message": ...}.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// handleErrorResponse builds an APIError from a status and body.
func handleErrorResponse(status int, body []byte) error {
	return &APIError{Status: status, Message: errorMessage(body)}
}

func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		for _, raw := range []json.RawMessage{eb.Detail, eb.Error} {
			if msg := rawString(raw); msg != "" {
				return msg
			}
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	return util.TruncateRunes(strings.TrimSpace(string(body)), 200)
}

// rawString returns raw as a string, or the "message" field when raw is an
// object (OpenAI-style {"error": {"message": ...}}).
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Message
	}
	return ""
}
