// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"sync"

	"github.com/jeranaias/presence-chat/internal/model"
)

// =============================================================================
// CHANGES
// =============================================================================

// ChangeKind describes a mutation of the Store.
type ChangeKind int

const (
	// Appended: a message was added at the end.
	Appended ChangeKind = iota
	// Updated: a streaming message changed and is still streaming.
	Updated
	// Finalized: a streaming message left the streaming state.
	Finalized
	// Removed: a message was deleted.
	Removed
	// Replaced: the whole list was swapped (load or clear).
	Replaced
)

func (k ChangeKind) String() string {
	switch k {
	case Appended:
		return "appended"
	case Updated:
		return "updated"
	case Finalized:
		return "finalized"
	case Removed:
		return "removed"
	case Replaced:
		return "replaced"
	}
	return "unknown"
}

// Structural reports whether the change alters what a snapshot would hold
// beyond in-progress text.
func (k ChangeKind) Structural() bool {
	return k != Updated
}

// Change is delivered to observers after each mutation.
type Change struct {
	Kind    ChangeKind
	Message model.Message // copy of the affected message; zero for Replaced
}

// Observer receives changes. It runs on the mutating goroutine and must not
// mutate the Store.
type Observer func(Change)

// =============================================================================
// STORE
// =============================================================================

// Store is an ordered, observable list of messages.
type Store struct {
	mu       sync.RWMutex
	messages []model.Message
	index    map[string]int

	notifyMu  sync.Mutex // serializes mutation + notification
	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		index:     make(map[string]int),
		observers: make(map[int]Observer),
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Observer) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// Append adds messages at the end, in order.
func (s *Store) Append(msgs ...model.Message) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changes := make([]Change, 0, len(msgs))
	for _, m := range msgs {
		m = m.Clone()
		s.index[m.ID] = len(s.messages)
		s.messages = append(s.messages, m)
		changes = append(changes, Change{Kind: Appended, Message: m.Clone()})
	}
	s.mu.Unlock()

	s.notify(changes...)
}

// Update applies fn to the message with the given id, but only while that
// message is streaming. It returns false, without calling fn, for a missing
// or non-streaming id.
func (s *Store) Update(id string, fn func(*model.Message)) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	i, ok := s.index[id]
	if !ok || !s.messages[i].IsStreaming() {
		s.mu.Unlock()
		return false
	}
	msg := &s.messages[i]
	fn(msg)
	msg.ID = id
	kind := Updated
	if !msg.IsStreaming() {
		kind = Finalized
	}
	change := Change{Kind: kind, Message: msg.Clone()}
	s.mu.Unlock()

	s.notify(change)
	return true
}

// Remove deletes the message with the given id.
func (s *Store) Remove(id string) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	removed := s.messages[i]
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	s.reindex()
	s.mu.Unlock()

	s.notify(Change{Kind: Removed, Message: removed})
	return true
}

// ReplaceAll swaps the whole list. Used on load and on clear.
func (s *Store) ReplaceAll(msgs []model.Message) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.messages = make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		s.messages = append(s.messages, m.Clone())
	}
	s.reindex()
	s.mu.Unlock()

	s.notify(Change{Kind: Replaced})
}

// Snapshot returns a deep copy of the list.
func (s *Store) Snapshot() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Get returns a copy of the message with the given id.
func (s *Store) Get(id string) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return model.Message{}, false
	}
	return s.messages[i].Clone(), true
}

// Last returns the most recent message with the given role.
func (s *Store) Last(role model.Role) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == role {
			return s.messages[i].Clone(), true
		}
	}
	return model.Message{}, false
}

// Tail returns the last message of the conversation.
func (s *Store) Tail() (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return model.Message{}, false
	}
	return s.messages[len(s.messages)-1].Clone(), true
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// StreamingCount returns how many messages are streaming. Anything other
// than 0 or 1 is a bug.
func (s *Store) StreamingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for i := range s.messages {
		if s.messages[i].IsStreaming() {
			n++
		}
	}
	return n
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.messages))
	for i, m := range s.messages {
		s.index[m.ID] = i
	}
}

func (s *Store) notify(changes ...Change) {
	s.obsMu.Lock()
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.obsMu.Unlock()

	for _, c := range changes {
		for _, fn := range observers {
			fn(c)
		}
	}
}
