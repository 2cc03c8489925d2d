// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Capabilities is what the status endpoint reports about the backend.
// The zero value is the "unavailable" reading.
type Capabilities struct {
	Connected bool
	Documents int
	Providers []string
	Status    string
	Message   string
	CheckedAt time.Time
}

// statusPayload accepts both status shapes: the assistant's
// {connected, chunks} and the chatbot's {rag_initialized, knowledge_documents}.
type statusPayload struct {
	Connected          *bool    `json:"connected"`
	RAGInitialized     *bool    `json:"rag_initialized"`
	Chunks             *int     `json:"chunks"`
	KnowledgeDocuments *int     `json:"knowledge_documents"`
	Providers          []string `json:"providers_configured"`
	Status             string   `json:"status"`
	Message            string   `json:"message"`
}

// Status fetches the capability descriptor.
func (c *Client) Status(ctx context.Context) (Capabilities, error) {
	if c.endpoints.StatusPath == "" {
		return Capabilities{}, fmt.Errorf("no status endpoint configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.do(ctx, http.MethodGet, c.endpoints.StatusPath, nil)
	if err != nil {
		return Capabilities{}, err
	}
	return ParseCapabilities(data)
}

// ParseCapabilities decodes a 2xx status body. Missing fields fall back to
// the unavailable reading, and a missing connected flag is derived from the
// document count.
func ParseCapabilities(data []byte) (Capabilities, error) {
	var p statusPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Capabilities{}, fmt.Errorf("failed to parse status: %w", err)
	}

	caps := Capabilities{
		Providers: p.Providers,
		Status:    p.Status,
		Message:   p.Message,
		CheckedAt: time.Now(),
	}
	switch {
	case p.Chunks != nil:
		caps.Documents = *p.Chunks
	case p.KnowledgeDocuments != nil:
		caps.Documents = *p.KnowledgeDocuments
	}
	switch {
	case p.Connected != nil:
		caps.Connected = *p.Connected
	case p.RAGInitialized != nil:
		caps.Connected = *p.RAGInitialized
	default:
		caps.Connected = caps.Documents > 0
	}
	if caps.Providers == nil {
		caps.Providers = []string{}
	}
	return caps, nil
}
