// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/jeranaias/presence-chat/internal/model"
	"github.com/jeranaias/presence-chat/internal/util"
)

// Kind discriminates stream events.
type Kind string

const (
	KindContent Kind = "content"
	KindEnd     Kind = "end"
	KindError   Kind = "error"
)

// UnknownError is used when an error frame carries no message.
const UnknownError = "unknown error"

// Result is the authoritative payload of an end event.
type Result struct {
	Reply       string             `json:"reply"`
	Sources     []model.Source     `json:"sources"`
	RAGUsed     bool               `json:"rag_used"`
	Suggestions *model.Suggestions `json:"suggestions"`
	Language    string             `json:"language"`
}

// Event is one interpreted frame.
type Event struct {
	Kind    Kind
	Content string  // KindContent: fragment to append
	Result  *Result // KindEnd
	Message string  // KindError
}

// frame is the wire shape shared by every event kind. Only the type is
// decoded strictly; each other field is decoded on its own so a mistyped
// optional field never costs the whole frame.
type frame struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
	Message json.RawMessage `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type resultFrame struct {
	Reply       json.RawMessage `json:"reply"`
	Sources     json.RawMessage `json:"sources"`
	RAGUsed     json.RawMessage `json:"rag_used"`
	Suggestions json.RawMessage `json:"suggestions"`
	Language    json.RawMessage `json:"language"`
}

// Interpret parses one payload. It returns false when the frame must be
// dropped.
func Interpret(payload string) (Event, bool) {
	var f frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return Event{}, false
	}

	switch Kind(f.Type) {
	case KindContent:
		var text *string
		if !decodeField(f.Content, &text) || text == nil {
			return Event{}, false
		}
		return Event{Kind: KindContent, Content: *text}, true

	case KindEnd:
		return Event{Kind: KindEnd, Result: decodeResult(f.Data)}, true

	case KindError:
		msg := UnknownError
		var content, message string
		switch {
		case decodeField(f.Content, &content) && content != "":
			msg = content
		case decodeField(f.Message, &message) && message != "":
			msg = message
		}
		return Event{Kind: KindError, Message: msg}, true
	}
	return Event{}, false
}

// decodeResult builds an end payload field by field. Sources that do not
// decode are skipped; suggestions that do not decode are dropped.
func decodeResult(raw json.RawMessage) *Result {
	res := &Result{Sources: []model.Source{}}

	var rf resultFrame
	if !decodeField(raw, &rf) {
		return res
	}
	decodeField(rf.Reply, &res.Reply)
	decodeField(rf.RAGUsed, &res.RAGUsed)
	decodeField(rf.Language, &res.Language)

	var sources []json.RawMessage
	if decodeField(rf.Sources, &sources) {
		for _, item := range sources {
			var src model.Source
			if decodeField(item, &src) {
				res.Sources = append(res.Sources, src)
			}
		}
	}

	var sugg model.Suggestions
	if string(rf.Suggestions) != "null" && decodeField(rf.Suggestions, &sugg) {
		res.Suggestions = &sugg
	}
	return res
}

// decodeField unmarshals raw into v. v is left untouched when raw is
// absent or does not decode.
func decodeField[T any](raw json.RawMessage, v *T) bool {
	if len(raw) == 0 {
		return false
	}
	var tmp T
	if err := json.Unmarshal(raw, &tmp); err != nil {
		return false
	}
	*v = tmp
	return true
}

// =============================================================================
// INTERPRETER
// =============================================================================

// FrameSource yields frame payloads; *sse.Reader satisfies it.
type FrameSource interface {
	Next() (string, error)
}

// Interpreter reads frames from a source and yields events in order.
type Interpreter struct {
	src     FrameSource
	logger  *slog.Logger
	dropped int
}

// NewInterpreter creates an Interpreter. A nil logger discards drop notices.
func NewInterpreter(src FrameSource, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Interpreter{src: src, logger: logger}
}

// Next returns the next event, skipping dropped frames. Errors from the
// source, including io.EOF, are returned unchanged.
func (in *Interpreter) Next() (Event, error) {
	for {
		payload, err := in.src.Next()
		if err != nil {
			return Event{}, err
		}
		if ev, ok := Interpret(payload); ok {
			return ev, nil
		}
		in.dropped++
		in.logger.Debug("dropped frame", "payload", util.TruncateRunes(payload, 120))
	}
}

// Dropped returns how many frames were discarded.
func (in *Interpreter) Dropped() int {
	return in.dropped
}
