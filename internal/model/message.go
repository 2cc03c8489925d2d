// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "Vous"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// STATUS TYPE
// =============================================================================

// Status is the lifecycle state of a message.
type Status string

const (
	StatusFinal     Status = "final"
	StatusStreaming Status = "streaming"
	StatusErrored   Status = "errored"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Source is a reference descriptor attached to an assistant reply.
type Source struct {
	Title     string  `json:"title"`
	URL       string  `json:"url,omitempty"`
	Category  string  `json:"category,omitempty"`
	Relevance float64 `json:"relevance,omitempty"`
}

// Message represents a single turn in a conversation.
//
// Only a streaming assistant message is ever mutated. Optional fields are
// omitted from snapshots when empty so older snapshots decode unchanged.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`

	Sources     []Source     `json:"sources,omitempty"`
	RAGUsed     bool         `json:"rag_used,omitempty"`
	Suggestions *Suggestions `json:"suggestions,omitempty"`
	Language    string       `json:"language,omitempty"`
}

// NewUserMessage creates a final user message.
func NewUserMessage(text string) Message {
	return Message{
		ID:        generateID(),
		Role:      RoleUser,
		Text:      text,
		Status:    StatusFinal,
		Timestamp: time.Now(),
	}
}

// NewPlaceholder creates an empty streaming assistant message.
func NewPlaceholder() Message {
	return Message{
		ID:        generateID(),
		Role:      RoleAssistant,
		Status:    StatusStreaming,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates a final assistant message, used for replies
// that never streamed.
func NewAssistantMessage(text string) Message {
	m := NewPlaceholder()
	m.Text = text
	m.Status = StatusFinal
	return m
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// IsStreaming reports whether the message is still under construction.
func (m *Message) IsStreaming() bool {
	return m.Status == StatusStreaming
}

// IsErrored reports whether the turn failed.
func (m *Message) IsErrored() bool {
	return m.Status == StatusErrored
}

// AppendText appends a content fragment to a streaming message.
func (m *Message) AppendText(fragment string) {
	if m.IsStreaming() {
		m.Text += fragment
	}
}

// Finalize completes a streaming message. An empty text keeps what was
// accumulated so far. Sources are never nil after finalizing.
func (m *Message) Finalize(text string, sources []Source) {
	if text != "" {
		m.Text = text
	}
	if sources == nil {
		sources = []Source{}
	}
	m.Sources = sources
	m.Status = StatusFinal
}

// Fail marks the message errored and replaces its text.
func (m *Message) Fail(text string) {
	m.Text = text
	m.Status = StatusErrored
}

// Preview returns a rune-safe truncated preview of the text.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Text)
	if len(runes) <= maxLen {
		return m.Text
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	c := m
	if m.Sources != nil {
		c.Sources = make([]Source, len(m.Sources))
		copy(c.Sources, m.Sources)
	}
	if m.Suggestions != nil {
		s := *m.Suggestions
		s.Items = append([]string(nil), m.Suggestions.Items...)
		c.Suggestions = &s
	}
	return c
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique message ID.
func generateID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "msg_" + hex.EncodeToString(bytes)
}
