// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jeranaias/presence-chat/internal/chatapi"
	"github.com/jeranaias/presence-chat/internal/config"
	"github.com/jeranaias/presence-chat/internal/conversation"
	"github.com/jeranaias/presence-chat/internal/logging"
	"github.com/jeranaias/presence-chat/internal/model"
	"github.com/jeranaias/presence-chat/internal/session"
	"github.com/jeranaias/presence-chat/internal/storage"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNothingToRetry is returned when the last message is not a failed reply.
	ErrNothingToRetry = errors.New("nothing to retry")

	// ErrRetryBudgetExhausted is returned once the retries for a turn are used up.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("client is closed")
)

// Defaults.
const (
	DefaultMaxRetries   = 2
	DefaultPollInterval = 10 * time.Second
	saveTimeout         = 5 * time.Second
)

// =============================================================================
// OPTIONS
// =============================================================================

// Transport is the backend surface used by the facade. *chatapi.Client
// satisfies it.
type Transport interface {
	session.Transport
	Status(ctx context.Context) (chatapi.Capabilities, error)
	Clear(ctx context.Context, userID string) error
}

// Options configure a Client.
type Options struct {
	Widget    config.WidgetConfig
	Transport Transport

	// Backend stores the conversation snapshot and user id. Nil keeps
	// everything in memory.
	Backend storage.Backend

	Messages     config.Messages
	MaxRetries   int
	PollInterval time.Duration
	Logger       *slog.Logger

	// OnStatus is called after every status check.
	OnStatus func(chatapi.Capabilities)
	// OnTurn is called when a session reaches a terminal state.
	OnTurn func(*session.Session)
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is the widget facade.
type Client struct {
	opts      Options
	store     *conversation.Store
	ctrl      *session.Controller
	snapshots *storage.SnapshotStore
	logger    *slog.Logger
	userID    string

	opMu        sync.Mutex // serializes Send, Retry, Clear and Close
	closed      bool
	retriesLeft int

	statusMu sync.RWMutex
	status   chatapi.Capabilities

	pollMu     sync.Mutex
	pollCancel context.CancelFunc
	pollDone   chan struct{}

	unsubscribe func()
	closeFns    []func() error
}

// New restores the saved conversation and user id and returns a ready
// client. Storage errors are logged, never returned.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Transport == nil {
		return nil, errors.New("client: transport is required")
	}
	if opts.Backend == nil {
		opts.Backend = storage.NewMemoryBackend()
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	logger := logging.OrDefault(opts.Logger)

	c := &Client{
		opts:        opts,
		store:       conversation.NewStore(),
		logger:      logger,
		retriesLeft: opts.MaxRetries,
		status:      chatapi.Capabilities{Status: "unavailable"},
	}

	c.snapshots = storage.NewSnapshotStore(opts.Backend, opts.Widget.StorageKey, opts.Widget.UserIDKey).
		WithInterruptedText(opts.Messages.Interrupted)

	msgs, err := c.snapshots.Load(ctx)
	if err != nil {
		logger.Warn("failed to restore conversation", "key", opts.Widget.StorageKey, "error", err)
		msgs = nil
	}
	c.store.ReplaceAll(msgs)

	c.userID, err = c.snapshots.UserID(ctx)
	if err != nil {
		logger.Warn("failed to persist user id", "key", opts.Widget.UserIDKey, "error", err)
	}

	c.ctrl = session.NewController(c.store, opts.Transport, session.Options{
		UserID:   c.userID,
		Messages: opts.Messages,
		Logger:   logger,
		OnFinish: opts.OnTurn,
	})
	c.unsubscribe = c.store.Subscribe(c.persist)
	return c, nil
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Send starts a new turn. It resets the retry budget.
func (c *Client) Send(ctx context.Context, text string) (*session.Session, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	sess, err := c.ctrl.Start(ctx, text)
	if err != nil {
		return nil, err
	}
	c.retriesLeft = c.opts.MaxRetries
	return sess, nil
}

// Retry removes the failed reply at the end of the conversation and asks
// the last user question again.
func (c *Client) Retry(ctx context.Context) (*session.Session, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	tail, ok := c.store.Tail()
	if !ok || tail.Role != model.RoleAssistant || !tail.IsErrored() {
		return nil, ErrNothingToRetry
	}
	question, ok := c.store.Last(model.RoleUser)
	if !ok {
		return nil, ErrNothingToRetry
	}
	if c.retriesLeft <= 0 {
		return nil, ErrRetryBudgetExhausted
	}

	c.store.Remove(tail.ID)
	sess, err := c.ctrl.Restart(ctx, question.Text)
	if err != nil {
		return nil, err
	}
	c.retriesLeft--
	return sess, nil
}

// Cancel stops the active turn, if any.
func (c *Client) Cancel() {
	c.ctrl.Cancel()
}

// Clear empties the conversation locally and in storage, then asks the
// backend to forget it. Remote errors are logged only.
func (c *Client) Clear(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.ctrl.Cancel()
	c.store.ReplaceAll(nil)
	if err := c.snapshots.Clear(ctx); err != nil {
		c.logger.Warn("failed to clear saved conversation", "error", err)
	}
	if err := c.opts.Transport.Clear(ctx, c.userID); err != nil {
		c.logger.Info("remote clear failed", "error", err)
	}
	c.retriesLeft = c.opts.MaxRetries
	return nil
}

// Close cancels the active turn, stops polling and releases storage.
// Calling it more than once is safe.
func (c *Client) Close() error {
	c.opMu.Lock()
	if c.closed {
		c.opMu.Unlock()
		return nil
	}
	c.closed = true
	c.opMu.Unlock()

	c.ctrl.Cancel()
	c.Stop()
	c.unsubscribe()

	var errs []error
	for _, fn := range c.closeFns {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}

// =============================================================================
// READ SIDE
// =============================================================================

// Messages returns a copy of the conversation.
func (c *Client) Messages() []model.Message {
	return c.store.Snapshot()
}

// Subscribe registers fn for conversation changes.
func (c *Client) Subscribe(fn conversation.Observer) func() {
	return c.store.Subscribe(fn)
}

// Greeting returns the widget's welcome text.
func (c *Client) Greeting() string {
	return c.opts.Widget.Greeting
}

// UserID returns the persisted user id.
func (c *Client) UserID() string {
	return c.userID
}

// RetriesLeft returns the remaining retries for the current turn.
func (c *Client) RetriesLeft() int {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.retriesLeft
}

// CanRetry reports whether Retry would start a new turn.
func (c *Client) CanRetry() bool {
	tail, ok := c.store.Tail()
	return ok && tail.Role == model.RoleAssistant && tail.IsErrored() && c.RetriesLeft() > 0
}

// Active returns the running session, or nil.
func (c *Client) Active() *session.Session {
	return c.ctrl.Active()
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// persist mirrors structural changes to storage. Streaming deltas are not
// saved; the finalize that ends them is.
func (c *Client) persist(ch conversation.Change) {
	if !ch.Kind.Structural() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := c.snapshots.Save(ctx, c.store.Snapshot()); err != nil {
		c.logger.Warn("failed to save conversation", "change", ch.Kind.String(), "error", err)
	}
}
