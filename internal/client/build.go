// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jeranaias/presence-chat/internal/chatapi"
	"github.com/jeranaias/presence-chat/internal/config"
	"github.com/jeranaias/presence-chat/internal/logging"
	"github.com/jeranaias/presence-chat/internal/offline"
	"github.com/jeranaias/presence-chat/internal/session"
	"github.com/jeranaias/presence-chat/internal/storage"
)

// Endpoints converts a widget profile to transport endpoints.
func Endpoints(w config.WidgetConfig) chatapi.Endpoints {
	return chatapi.Endpoints{
		StreamPath:   w.StreamPath,
		AskPath:      w.AskPath,
		StatusPath:   w.StatusPath,
		ClearPath:    w.ClearPath,
		MessageField: w.MessageField,
		AskField:     w.AskField,
		SendUserID:   !w.OmitUserID,
	}
}

// NewTransport builds the HTTP transport for a widget.
func NewTransport(cfg *config.Config, w config.WidgetConfig, logger *slog.Logger) (*chatapi.Client, error) {
	offline.SetOfflineMode(cfg.Offline)
	api, err := chatapi.New(cfg.Server.BaseURL, Endpoints(w))
	if err != nil {
		return nil, err
	}
	return api.
		WithTimeout(cfg.Timeout()).
		WithRateLimit(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst).
		WithLogger(logger), nil
}

// StorageOptions converts the storage section of cfg.
func StorageOptions(cfg *config.Config) storage.Options {
	return storage.Options{
		Kind:        cfg.Storage.Backend,
		Dir:         cfg.Storage.Dir,
		SQLitePath:  cfg.Storage.SQLitePath,
		RedisURL:    cfg.Storage.RedisURL,
		RedisPrefix: cfg.Storage.RedisPrefix,
		RedisTTL:    cfg.RedisTTL(),
	}
}

// FromConfig builds a Client for the named widget. An empty name selects
// cfg.DefaultWidget. The storage backend is owned by the client and closed
// with it. If the configured backend cannot be opened the client falls back
// to memory and logs the failure.
func FromConfig(ctx context.Context, cfg *config.Config, widget string, logger *slog.Logger, onTurn func(*session.Session)) (*Client, error) {
	logger = logging.OrDefault(logger)
	w, err := cfg.Widget(widget)
	if err != nil {
		return nil, err
	}
	transport, err := NewTransport(cfg, w, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	backend, err := storage.Open(ctx, StorageOptions(cfg))
	if err != nil {
		logger.Warn("storage unavailable, keeping conversation in memory",
			"backend", cfg.Storage.Backend, "error", err)
		backend = storage.NewMemoryBackend()
	}

	c, err := New(ctx, Options{
		Widget:       w,
		Transport:    transport,
		Backend:      backend,
		Messages:     cfg.Messages,
		MaxRetries:   cfg.Retry.MaxAttempts,
		PollInterval: cfg.PollInterval(),
		Logger:       logger,
		OnTurn:       onTurn,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}
	c.closeFns = append(c.closeFns, backend.Close)
	return c, nil
}
