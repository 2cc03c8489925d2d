// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/jeranaias/presence-chat/internal/chatapi"
	"github.com/jeranaias/presence-chat/internal/config"
	"github.com/jeranaias/presence-chat/internal/conversation"
	"github.com/jeranaias/presence-chat/internal/logging"
	"github.com/jeranaias/presence-chat/internal/model"
	"github.com/jeranaias/presence-chat/internal/protocol"
	"github.com/jeranaias/presence-chat/internal/sse"
)

// Transport opens streams and performs the non-streaming fallback.
// *chatapi.Client satisfies it.
type Transport interface {
	OpenStream(ctx context.Context, req chatapi.Request) (io.ReadCloser, error)
	Ask(ctx context.Context, req chatapi.Request) (string, error)
	CanFallback() bool
}

// Options configure a Controller.
type Options struct {
	UserID   string
	Messages config.Messages
	Logger   *slog.Logger

	// OnFinish runs on the session goroutine once the session reaches a
	// terminal state, before Wait returns. It must not call the Controller.
	OnFinish func(*Session)
}

// Controller runs at most one Session at a time.
type Controller struct {
	store     *conversation.Store
	transport Transport
	opts      Options
	logger    *slog.Logger

	mu     sync.Mutex // serializes Start, Restart and Cancel
	active *Session
}

// NewController creates a Controller writing into store. Empty message
// strings fall back to the French defaults.
func NewController(store *conversation.Store, transport Transport, opts Options) *Controller {
	defaults := config.DefaultMessages()
	m := &opts.Messages
	for _, f := range []struct {
		field *string
		def   string
	}{
		{&m.ConnectionError, defaults.ConnectionError},
		{&m.CommunicationError, defaults.CommunicationError},
		{&m.NoReply, defaults.NoReply},
		{&m.ServerError, defaults.ServerError},
		{&m.UnknownError, defaults.UnknownError},
		{&m.Interrupted, defaults.Interrupted},
	} {
		if *f.field == "" {
			*f.field = f.def
		}
	}
	return &Controller{
		store:     store,
		transport: transport,
		opts:      opts,
		logger:    logging.OrDefault(opts.Logger),
	}
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Start appends the user message and a placeholder, then streams the reply
// in the background. Any active session is canceled and waited for first.
func (c *Controller) Start(ctx context.Context, text string) (*Session, error) {
	return c.begin(ctx, text, true)
}

// Restart streams a new reply to text without appending a user message.
func (c *Controller) Restart(ctx context.Context, text string) (*Session, error) {
	return c.begin(ctx, text, false)
}

// Cancel stops the active session and waits for it to exit. Its placeholder
// keeps any partial text and is marked errored.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersede()
}

// Active returns the running session, or nil.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	select {
	case <-c.active.done:
		return nil
	default:
		return c.active
	}
}

func (c *Controller) begin(ctx context.Context, text string, withUser bool) (*Session, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersede()

	placeholder := model.NewPlaceholder()
	if withUser {
		c.store.Append(model.NewUserMessage(text), placeholder)
	} else {
		c.store.Append(placeholder)
	}

	sctx, cancel := context.WithCancel(ctx)
	sess := newSession(placeholder.ID, text, cancel)
	sctx = logging.WithSessionID(sctx, sess.ID.String())
	c.active = sess

	req := chatapi.Request{Text: text, UserID: c.opts.UserID}
	go c.run(sctx, sess, req)
	return sess, nil
}

// supersede cancels the active session and blocks until its goroutine has
// settled the placeholder. Callers hold c.mu.
func (c *Controller) supersede() {
	if c.active == nil {
		return
	}
	c.active.cancel()
	<-c.active.done
	c.active = nil
}

// =============================================================================
// EXCHANGE
// =============================================================================

func (c *Controller) run(ctx context.Context, sess *Session, req chatapi.Request) {
	logger := logging.FromContext(ctx, c.logger)
	defer close(sess.done)
	defer sess.cancel()
	defer func() {
		if c.opts.OnFinish != nil {
			c.opts.OnFinish(sess)
		}
	}()

	sess.setState(StateSending)
	logger.Debug("session started", "message_id", sess.MessageID)

	body, err := c.transport.OpenStream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			c.interrupt(sess, "")
			return
		}
		c.fallback(ctx, logger, sess, req, err)
		return
	}
	defer body.Close()

	reader := sse.NewReader(body)
	events := protocol.NewInterpreter(reader, logger)
	defer func() {
		sess.setDropped(reader.Dropped() + events.Dropped())
		if n := sess.Dropped(); n > 0 {
			logger.Info("malformed frames dropped", "count", n)
		}
	}()
	var acc strings.Builder

	for {
		ev, err := events.Next()
		if reader.BytesRead() > 0 {
			sess.setState(StateStreaming)
		}
		if ctx.Err() != nil {
			c.interrupt(sess, acc.String())
			return
		}

		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				c.endWithoutResult(logger, sess, acc.String())
			case reader.BytesRead() == 0:
				c.fallback(ctx, logger, sess, req, err)
			default:
				c.streamFailed(logger, sess, acc.String(), err)
			}
			return
		}

		switch ev.Kind {
		case protocol.KindContent:
			acc.WriteString(ev.Content)
			c.store.Update(sess.MessageID, func(m *model.Message) {
				m.AppendText(ev.Content)
			})

		case protocol.KindEnd:
			c.complete(logger, sess, ev.Result, acc.String())
			return

		case protocol.KindError:
			msg := ev.Message
			if msg == protocol.UnknownError {
				msg = c.opts.Messages.UnknownError
			}
			logger.Warn("server reported error", "error", msg)
			c.settle(sess, StateErrored, func(m *model.Message) {
				m.Fail(fmt.Sprintf(c.opts.Messages.ServerError, msg))
			})
			sess.fail(fmt.Errorf("server error: %s", msg))
			return
		}
	}
}

// complete applies an end event. The reply wins over accumulated text.
func (c *Controller) complete(logger *slog.Logger, sess *Session, res *protocol.Result, acc string) {
	text := acc
	if res != nil && res.Reply != "" {
		text = res.Reply
	}
	if text == "" {
		text = c.opts.Messages.NoReply
	}
	c.settle(sess, StateFinal, func(m *model.Message) {
		if res == nil {
			m.Finalize(text, nil)
			return
		}
		m.Finalize(text, res.Sources)
		m.RAGUsed = res.RAGUsed
		m.Language = res.Language
		m.Suggestions = res.Suggestions
	})
	logger.Debug("session finished", "chars", len(text), "duration", sess.Duration())
}

// endWithoutResult handles a clean close that never sent an end event.
func (c *Controller) endWithoutResult(logger *slog.Logger, sess *Session, acc string) {
	if acc != "" {
		c.settle(sess, StateFinal, func(m *model.Message) {
			m.Finalize(acc, nil)
		})
		return
	}
	logger.Info("stream ended without reply")
	c.settle(sess, StateErrored, func(m *model.Message) {
		m.Fail(c.opts.Messages.NoReply)
	})
	sess.fail(ErrEmptyStream)
}

// streamFailed handles a transport error after the first byte.
func (c *Controller) streamFailed(logger *slog.Logger, sess *Session, acc string, err error) {
	logger.Warn("stream failed", "error", err, "partial_chars", len(acc))
	c.settle(sess, StateErrored, func(m *model.Message) {
		if acc == "" {
			m.Fail(c.opts.Messages.CommunicationError)
			return
		}
		m.Status = model.StatusErrored
	})
	sess.fail(&StreamError{Partial: acc, Err: err})
}

// fallback makes the single non-streaming attempt.
func (c *Controller) fallback(ctx context.Context, logger *slog.Logger, sess *Session, req chatapi.Request, cause error) {
	if !c.transport.CanFallback() {
		logger.Warn("stream unavailable", "error", cause)
		c.settle(sess, StateErrored, func(m *model.Message) {
			m.Fail(c.opts.Messages.ConnectionError)
		})
		sess.fail(cause)
		return
	}

	logger.Info("stream unavailable, using fallback", "error", cause)
	sess.markFallback()
	reply, err := c.transport.Ask(ctx, req)
	if ctx.Err() != nil {
		c.interrupt(sess, "")
		return
	}
	if err != nil {
		logger.Warn("fallback failed", "error", err)
		c.settle(sess, StateErrored, func(m *model.Message) {
			m.Fail(c.opts.Messages.ConnectionError)
		})
		sess.fail(fmt.Errorf("%w (fallback: %w)", cause, err))
		return
	}
	c.settle(sess, StateFinal, func(m *model.Message) {
		m.Finalize(reply, nil)
	})
}

// interrupt settles a canceled session, keeping partial text.
func (c *Controller) interrupt(sess *Session, acc string) {
	c.settle(sess, StateErrored, func(m *model.Message) {
		if strings.TrimSpace(m.Text) == "" && acc == "" {
			m.Fail(c.opts.Messages.Interrupted)
			return
		}
		m.Status = model.StatusErrored
	})
	sess.fail(ErrInterrupted)
}

func (c *Controller) settle(sess *Session, st State, fn func(*model.Message)) {
	c.store.Update(sess.MessageID, fn)
	sess.setState(st)
}
