// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client is the public face of a chat widget: send, retry, clear
// and status, over one conversation that is mirrored to storage.
//
// # Key Types
//
//   - Client: the facade used by the terminal UI and the one-shot commands
//   - Options: widget profile, transport, storage backend and messages
//   - Transport: the backend operations the facade needs
//
// # Usage
//
//	c, err := client.FromConfig(ctx, cfg, "ntic2", logger)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	unsubscribe := c.Subscribe(func(ch conversation.Change) { redraw() })
//	defer unsubscribe()
//	c.StartStatusPolling(ctx)
//	_, err = c.Send(ctx, "Quels sont les horaires ?")
//
// Persistence failures never reach the caller. They are logged and the
// conversation continues in memory.
package client
