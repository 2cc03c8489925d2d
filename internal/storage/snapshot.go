// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/presence-chat/internal/model"
)

// DefaultInterruptedText replaces the text of a message that was still
// streaming when its snapshot was taken and had no partial text.
const DefaultInterruptedText = "Réponse interrompue."

// SnapshotStore persists one conversation and its user id.
type SnapshotStore struct {
	backend     Backend
	key         string
	userIDKey   string
	interrupted string
}

// NewSnapshotStore creates a store for the given message and user id keys.
func NewSnapshotStore(backend Backend, key, userIDKey string) *SnapshotStore {
	return &SnapshotStore{
		backend:     backend,
		key:         key,
		userIDKey:   userIDKey,
		interrupted: DefaultInterruptedText,
	}
}

// WithInterruptedText sets the text used for interrupted messages.
func (s *SnapshotStore) WithInterruptedText(text string) *SnapshotStore {
	if text != "" {
		s.interrupted = text
	}
	return s
}

// Load returns the saved conversation. A missing snapshot is an empty
// conversation. Messages saved while streaming come back errored since
// their session no longer exists.
func (s *SnapshotStore) Load(ctx context.Context) ([]model.Message, error) {
	data, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return []model.Message{}, nil
	}
	if err != nil {
		return nil, err
	}

	var msgs []model.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	out := msgs[:0]
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if m.Status == "" {
			m.Status = model.StatusFinal
		}
		if m.IsStreaming() {
			text := m.Text
			if strings.TrimSpace(text) == "" {
				text = s.interrupted
			}
			m.Fail(text)
		}
		out = append(out, m)
	}
	if out == nil {
		out = []model.Message{}
	}
	return out, nil
}

// Save writes the whole conversation.
func (s *SnapshotStore) Save(ctx context.Context, msgs []model.Message) error {
	if msgs == nil {
		msgs = []model.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return s.backend.Put(ctx, s.key, data)
}

// Clear deletes the saved conversation. The user id is kept.
func (s *SnapshotStore) Clear(ctx context.Context) error {
	return s.backend.Delete(ctx, s.key)
}

// UserID returns the persisted user id, creating one on first use. If the
// id cannot be saved the fresh one is still returned with the error.
func (s *SnapshotStore) UserID(ctx context.Context) (string, error) {
	data, err := s.backend.Get(ctx, s.userIDKey)
	if err == nil && len(strings.TrimSpace(string(data))) > 0 {
		return strings.TrimSpace(string(data)), nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return NewUserID(), err
	}

	id := NewUserID()
	return id, s.backend.Put(ctx, s.userIDKey, []byte(id))
}

// NewUserID generates an opaque id of the form user_<unix-ms>_<random>.
func NewUserID() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("user_%d_%s", time.Now().UnixMilli(), random)
}
