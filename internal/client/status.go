// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"time"

	"github.com/jeranaias/presence-chat/internal/chatapi"
)

// =============================================================================
// STATUS
// =============================================================================

// CheckStatus queries the backend capabilities. It never fails: on error
// the client is marked disconnected and the last known counts are kept.
func (c *Client) CheckStatus(ctx context.Context) chatapi.Capabilities {
	caps, err := c.opts.Transport.Status(ctx)

	c.statusMu.Lock()
	if err != nil {
		c.logger.Debug("status check failed", "error", err)
		caps = c.status
		caps.Connected = false
		caps.Status = "unavailable"
		caps.Message = err.Error()
		caps.CheckedAt = time.Now()
	}
	c.status = caps
	c.statusMu.Unlock()

	if c.opts.OnStatus != nil {
		c.opts.OnStatus(caps)
	}
	return caps
}

// Status returns the last capability reading.
func (c *Client) Status() chatapi.Capabilities {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

// StartStatusPolling checks status now and then on a fixed interval until
// Stop, Close or ctx cancellation. A second call while polling is a no-op.
func (c *Client) StartStatusPolling(ctx context.Context) {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if c.pollCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.pollCancel = cancel
	c.pollDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.opts.PollInterval)
		defer ticker.Stop()

		c.CheckStatus(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.CheckStatus(ctx)
			}
		}
	}()
}

// Stop ends status polling and waits for the poller to exit.
func (c *Client) Stop() {
	c.pollMu.Lock()
	cancel, done := c.pollCancel, c.pollDone
	c.pollCancel, c.pollDone = nil, nil
	c.pollMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
