// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/presence-chat/internal/model"
)

func TestSnapshotStore_LoadEmpty(t *testing.T) {
	s := NewSnapshotStore(NewMemoryBackend(), "chat_messages", "chat_user_id")
	msgs, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestSnapshotStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshotStore(NewMemoryBackend(), "chat_messages", "chat_user_id")

	user := model.NewUserMessage("Quel est l'emploi du temps ?")
	reply := model.NewAssistantMessage("Voici l'emploi du temps.")
	reply.Sources = []model.Source{{Title: "Planning", URL: "https://ecole/planning.pdf"}}
	reply.RAGUsed = true
	reply.Suggestions = &model.Suggestions{Type: model.SuggestDays, Items: []string{"lundi"}}
	failed := model.NewPlaceholder()
	failed.Fail("Erreur de connexion. Veuillez réessayer.")

	want := []model.Message{user, reply, failed}
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Text, got[i].Text)
		assert.Equal(t, want[i].Status, got[i].Status)
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
	}
	assert.Equal(t, reply.Sources, got[1].Sources)
	assert.Equal(t, reply.Suggestions, got[1].Suggestions)
}

func TestSnapshotStore_StreamingBecomesErrored(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshotStore(NewMemoryBackend(), "k", "u").WithInterruptedText("coupé")

	partial := model.NewPlaceholder()
	partial.AppendText("Bon")
	empty := model.NewPlaceholder()

	require.NoError(t, s.Save(ctx, []model.Message{partial, empty}))
	got, err := s.Load(ctx)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, model.StatusErrored, got[0].Status)
	assert.Equal(t, "Bon", got[0].Text)
	assert.Equal(t, model.StatusErrored, got[1].Status)
	assert.Equal(t, "coupé", got[1].Text)
}

func TestSnapshotStore_OlderSnapshotFormat(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Put(ctx, "k", []byte(`[
		{"id":"msg_a","role":"user","text":"salut","timestamp":"2024-09-01T08:00:00Z"},
		{"role":"assistant","text":"orphan"},
		{"id":"msg_b","role":"assistant","text":"bonjour","timestamp":"2024-09-01T08:00:01Z"}
	]`)))

	got, err := NewSnapshotStore(b, "k", "u").Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.StatusFinal, got[0].Status)
	assert.Nil(t, got[1].Sources)
	assert.False(t, got[1].RAGUsed)
}

func TestSnapshotStore_CorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Put(ctx, "k", []byte(`{oops`)))

	_, err := NewSnapshotStore(b, "k", "u").Load(ctx)
	assert.Error(t, err)
}

func TestSnapshotStore_ClearKeepsUserID(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshotStore(NewMemoryBackend(), "k", "u")

	id, err := s.UserID(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, []model.Message{model.NewUserMessage("x")}))

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))

	msgs, _ := s.Load(ctx)
	assert.Empty(t, msgs)

	again, err := s.UserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestNewUserID(t *testing.T) {
	re := regexp.MustCompile(`^user_\d{13}_[0-9a-f]{9}$`)
	a, b := NewUserID(), NewUserID()
	assert.Regexp(t, re, a)
	assert.NotEqual(t, a, b)
}

type failingBackend struct{ MemoryBackend }

func (*failingBackend) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("quota exceeded")
}

func (*failingBackend) Put(context.Context, string, []byte) error {
	return errors.New("quota exceeded")
}

func TestSnapshotStore_UserIDBackendFailure(t *testing.T) {
	s := NewSnapshotStore(&failingBackend{}, "k", "u")
	id, err := s.UserID(context.Background())
	assert.Error(t, err)
	assert.NotEmpty(t, id, "a usable id is returned even when it cannot be persisted")
}
