// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline restricts the chat client to a backend on the same host.
//
// Campus deployments often run the assistant backend on the machine that
// serves the dashboard. Offline mode makes the client refuse any base URL
// that is not loopback. Scheme validation (http/https only) applies in
// every mode.
//
// # Usage
//
//	offline.SetOfflineMode(cfg.Offline)
//	if err := offline.ValidateURL(cfg.Server.BaseURL); err != nil {
//	    return err
//	}
package offline
