// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// BACKEND CONTRACT
// =============================================================================

func testBackendContract(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	_, err := b.Get(ctx, "missing_key")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Put(ctx, "chat_messages", []byte(`[1]`)))
	got, err := b.Get(ctx, "chat_messages")
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(got))

	require.NoError(t, b.Put(ctx, "chat_messages", []byte(`[1,2]`)))
	got, err = b.Get(ctx, "chat_messages")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(got))

	require.NoError(t, b.Delete(ctx, "chat_messages"))
	_, err = b.Get(ctx, "chat_messages")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, b.Delete(ctx, "chat_messages"), "deleting a missing key is not an error")

	err = b.Put(ctx, "../escape", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestMemoryBackend(t *testing.T) {
	testBackendContract(t, NewMemoryBackend())
}

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(filepath.Join(dir, "widgets"))
	require.NoError(t, err)
	testBackendContract(t, b)

	require.NoError(t, b.Put(context.Background(), "spa_chatbot_messages", []byte("[]")))
	_, err = os.Stat(filepath.Join(dir, "widgets", "spa_chatbot_messages.json"))
	assert.NoError(t, err)
}

func TestSQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "presence-chat.db")
	b, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	defer b.Close()

	testBackendContract(t, b)
}

func TestSQLiteBackend_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presence-chat.db")
	ctx := context.Background()

	b, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, "chat_user_id", []byte("user_1")))
	require.NoError(t, b.Close())

	b, err = NewSQLiteBackend(path)
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Get(ctx, "chat_user_id")
	require.NoError(t, err)
	assert.Equal(t, "user_1", string(got))
}

func TestRedisBackend(t *testing.T) {
	url := os.Getenv("PRESENCE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PRESENCE_TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b, err := NewRedisBackend(ctx, url, "presence-chat-test-"+uuid.NewString()+":", time.Minute)
	require.NoError(t, err)
	defer b.Close()

	testBackendContract(t, b)
}

func TestRedisBackend_BadURL(t *testing.T) {
	_, err := NewRedisBackend(context.Background(), "not a url", "", 0)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, kind := range []string{KindFile, KindSQLite, KindMemory, ""} {
		b, err := Open(ctx, Options{Kind: kind, Dir: dir})
		require.NoError(t, err, kind)
		require.NoError(t, b.Close())
	}

	_, err := Open(ctx, Options{Kind: "etcd"})
	assert.Error(t, err)
}

func TestStorageError_Is(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), ErrNotFound)
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, ErrNotFound, ErrInvalidKey)
}
