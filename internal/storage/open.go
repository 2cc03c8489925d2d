// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// Backend names accepted by Open.
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindRedis  = "redis"
	KindMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Kind        string
	Dir         string // file backend directory
	SQLitePath  string
	RedisURL    string
	RedisPrefix string
	RedisTTL    time.Duration
}

// Open creates the backend named by opts.Kind.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Kind {
	case KindFile, "":
		return NewFileBackend(opts.Dir)
	case KindSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = filepath.Join(opts.Dir, "presence-chat.db")
		}
		return NewSQLiteBackend(path)
	case KindRedis:
		return NewRedisBackend(ctx, opts.RedisURL, opts.RedisPrefix, opts.RedisTTL)
	case KindMemory:
		return NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", opts.Kind)
}
