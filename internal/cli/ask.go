// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jeranaias/presence-chat/internal/model"
	"github.com/jeranaias/presence-chat/internal/session"
)

// TurnError reports a one-shot question that did not end with a reply.
type TurnError struct {
	State session.State
	Err   error
}

func (e *TurnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("turn %s: %v", e.State, e.Err)
	}
	return "turn " + e.State.String()
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// askResult is the --json shape of ask.
type askResult struct {
	Widget      string             `json:"widget"`
	Question    string             `json:"question"`
	Reply       string             `json:"reply"`
	Status      model.Status       `json:"status"`
	Sources     []model.Source     `json:"sources"`
	Suggestions *model.Suggestions `json:"suggestions,omitempty"`
	Language    string             `json:"language,omitempty"`
	Fallback    bool               `json:"fallback"`
	DurationMS  int64              `json:"duration_ms"`
}

// RunAsk sends args.Query once and prints the reply. The conversation is
// not saved. Canceling ctx interrupts the turn.
func RunAsk(ctx context.Context, args Args, out io.Writer) error {
	app, err := Open(ctx, args, true)
	if err != nil {
		return err
	}
	defer app.Close()

	sess, err := app.Client.Send(ctx, args.Query)
	if err != nil {
		return err
	}
	sess.Wait()

	msg, _ := findMessage(app.Client.Messages(), sess.MessageID)
	if args.JSON {
		res := askResult{
			Widget:      app.Widget,
			Question:    args.Query,
			Reply:       msg.Text,
			Status:      msg.Status,
			Sources:     msg.Sources,
			Suggestions: msg.Suggestions,
			Language:    msg.Language,
			Fallback:    sess.UsedFallback(),
			DurationMS:  sess.Duration().Milliseconds(),
		}
		if res.Sources == nil {
			res.Sources = []model.Source{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		render := NewRenderer(GetTerminalWidth(), IsStdoutTTY())
		fmt.Fprintln(out, render.Reply(msg))
	}

	if sess.State() != session.StateFinal {
		return &TurnError{State: sess.State(), Err: sess.Err()}
	}
	return nil
}
