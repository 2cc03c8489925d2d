// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jeranaias/presence-chat/internal/client"
	"github.com/jeranaias/presence-chat/internal/config"
	"github.com/jeranaias/presence-chat/internal/logging"
	"github.com/jeranaias/presence-chat/internal/session"
	"github.com/jeranaias/presence-chat/internal/storage"
	"github.com/jeranaias/presence-chat/internal/telemetry"
)

// LogFileName is the log file created under the config dir when
// [log] file is not set.
const LogFileName = "presence-chat.log"

// =============================================================================
// APP
// =============================================================================

// App bundles what every command needs: the effective config, a logger
// writing to a file, the chat client and the turn tracker.
type App struct {
	Config     *config.Config
	ConfigPath string
	Widget     string
	Client     *client.Client
	Tracker    *telemetry.Tracker // nil when the telemetry dir is unusable
	Logger     *slog.Logger

	closers []func() error
}

// Open builds an App from the command line. An ephemeral app keeps its
// conversation in memory so one-shot commands never touch the saved one.
func Open(ctx context.Context, args Args, ephemeral bool) (*App, error) {
	cfg, path, err := LoadConfig(args)
	if err != nil {
		return nil, err
	}
	if ephemeral {
		cfg.Storage.Backend = storage.KindMemory
	}

	app := &App{Config: cfg, ConfigPath: path, Widget: args.Widget}
	if app.Widget == "" {
		app.Widget = cfg.DefaultWidget
	}
	app.Widget = strings.ToLower(app.Widget)

	logger, closer, err := openLogger(cfg)
	if err != nil {
		logger = logging.Discard()
	} else {
		app.closers = append(app.closers, closer.Close)
	}
	app.Logger = logger.With("widget", app.Widget)
	logging.SetDefault(app.Logger)

	var onTurn func(*session.Session)
	if dir, err := config.ConfigDir(); err == nil {
		tracker, err := telemetry.NewTracker(filepath.Join(dir, "telemetry"), app.Widget)
		if err != nil {
			app.Logger.Warn("turn statistics disabled", "error", err)
		} else {
			app.Tracker = tracker
			onTurn = tracker.RecordSession
		}
	}

	c, err := client.FromConfig(ctx, cfg, app.Widget, app.Logger, onTurn)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Client = c
	return app, nil
}

// Close releases the client, saves the run statistics and closes the log.
func (a *App) Close() error {
	var errs []error
	if a.Client != nil {
		errs = append(errs, a.Client.Close())
	}
	if a.Tracker != nil {
		if err := a.Tracker.Close(); err != nil {
			a.Logger.Warn("failed to save turn statistics", "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// =============================================================================
// CONFIG
// =============================================================================

// LoadConfig loads the config file named by --config, or the default one,
// then applies command-line overrides. It returns the file path so the
// REPL can watch it.
func LoadConfig(args Args) (*config.Config, string, error) {
	path := args.ConfigPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = p
	}

	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, path, err
	}

	changed := false
	if args.URL != "" {
		cfg.Server.BaseURL = strings.TrimRight(args.URL, "/")
		changed = true
	}
	if args.Offline {
		cfg.Offline = true
		changed = true
	}
	if args.Verbose {
		cfg.Log.Level = "debug"
		changed = true
	}
	if changed {
		if err := cfg.Validate(); err != nil {
			return nil, path, fmt.Errorf("invalid command line: %w", err)
		}
	}

	config.SetGlobal(cfg)
	return cfg, path, nil
}

func openLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	path := cfg.Log.File
	if path == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return nil, nil, err
		}
		path = filepath.Join(dir, LogFileName)
	}
	return logging.OpenFile(path, logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
}
