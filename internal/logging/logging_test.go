// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_JSONAndLiveLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "warn", Format: "json"})
	require.NoError(t, err)

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	require.NoError(t, SetLevel("debug"))
	defer SetLevel("info")
	logger.Debug("shown", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "v", rec["k"])
}

func TestNew_UnknownFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Options{Format: "xml"})
	assert.Error(t, err)
	assert.Error(t, SetLevel("nope"))
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "client.log")
	logger, closer, err := OpenFile(path, Options{Level: "info"})
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=hello")
}

func TestDefaultAndContext(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	var buf bytes.Buffer
	l, err := New(&buf, Options{})
	require.NoError(t, err)
	SetDefault(l)
	SetDefault(nil)
	assert.Same(t, l, Default())
	assert.Same(t, l, OrDefault(nil))

	ctx := WithSessionID(context.Background(), "abc")
	FromContext(ctx, nil).Info("turn")
	assert.True(t, strings.Contains(buf.String(), "session_id=abc"))

	buf.Reset()
	FromContext(context.Background(), nil).Info("plain")
	assert.NotContains(t, buf.String(), "session_id")

	Discard().Error("dropped")
}
