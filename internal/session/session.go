// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyMessage is returned by Start for blank input.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrEmptyStream is recorded when the stream closes without any event
	// or text.
	ErrEmptyStream = errors.New("stream closed without data")

	// ErrInterrupted is recorded on sessions that were canceled.
	ErrInterrupted = errors.New("session interrupted")
)

// StreamError is a transport failure after streaming began. Partial holds
// the text received before the failure.
type StreamError struct {
	Partial string
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream failed after %d bytes of text: %v", len(e.Partial), e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateFinal
	StateErrored
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateFinal:
		return "final"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateFinal || s == StateErrored
}

// =============================================================================
// SESSION
// =============================================================================

// Session is one exchange. Its placeholder is identified by MessageID.
type Session struct {
	ID        uuid.UUID
	MessageID string
	Text      string
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    State
	err      error
	fallback bool
	dropped  int
	endedAt  time.Time
}

func newSession(messageID, text string, cancel context.CancelFunc) *Session {
	return &Session{
		ID:        uuid.New(),
		MessageID: messageID,
		Text:      text,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// UsedFallback reports whether the reply came from the non-streaming path.
func (s *Session) UsedFallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallback
}

// Duration returns how long the session ran, or has run so far.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.endedAt.Sub(s.StartedAt)
}

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session goroutine has exited.
func (s *Session) Wait() {
	<-s.done
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = st
	if st.Terminal() {
		s.endedAt = time.Now()
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.setState(StateErrored)
}

// Dropped returns how many malformed frames or oversized lines the stream
// discarded.
func (s *Session) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Session) setDropped(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = n
}

func (s *Session) markFallback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = true
}
