// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/presence-chat/internal/config"
	"github.com/jeranaias/presence-chat/internal/util"
)

// ErrDisconnected is returned by RunStatus when the backend is unreachable
// or reports no documents.
var ErrDisconnected = errors.New("backend unavailable")

// statusResult is the --json shape of status.
type statusResult struct {
	Widget    string    `json:"widget"`
	BaseURL   string    `json:"base_url"`
	Connected bool      `json:"connected"`
	Status    string    `json:"status"`
	Documents int       `json:"documents"`
	Providers []string  `json:"providers"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// RunStatus prints the capability descriptor of the selected widget's
// backend.
func RunStatus(ctx context.Context, args Args, out io.Writer) error {
	app, err := Open(ctx, args, true)
	if err != nil {
		return err
	}
	defer app.Close()

	caps := app.Client.CheckStatus(ctx)
	if args.JSON {
		res := statusResult{
			Widget:    app.Widget,
			BaseURL:   app.Config.Server.BaseURL,
			Connected: caps.Connected,
			Status:    caps.Status,
			Documents: caps.Documents,
			Providers: caps.Providers,
			Message:   caps.Message,
			CheckedAt: caps.CheckedAt,
		}
		if res.Providers == nil {
			res.Providers = []string{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		render := NewRenderer(GetTerminalWidth(), false)
		fmt.Fprintln(out, render.Status(app.Widget, app.Config.Server.BaseURL, caps))
	}

	if !caps.Connected {
		return ErrDisconnected
	}
	return nil
}

// RunWidgets lists the configured widget profiles.
func RunWidgets(args Args, out io.Writer) error {
	cfg, _, err := LoadConfig(args)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, TitleStyle.Render("Widgets"))
	for _, name := range cfg.WidgetNames() {
		w := cfg.Widgets[name]
		marker := "  "
		if name == cfg.DefaultWidget {
			marker = SuccessStyle.Render("* ")
		}
		fmt.Fprintf(out, "%s%s %s\n", marker, util.PadRight(name, 16), DimStyle.Render(w.StreamPath))
	}
	fmt.Fprintln(out, DimStyle.Render("Configuration : "+configLabel(args)))
	return nil
}

func configLabel(args Args) string {
	if args.ConfigPath != "" {
		return args.ConfigPath
	}
	if p, err := config.ConfigPath(); err == nil {
		return p
	}
	return "(défaut)"
}
