// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"errors"
	"net"
	"net/url"
	"strings"
	"sync"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidURL is returned for URLs that do not parse or have no host.
	ErrInvalidURL = errors.New("invalid backend url")

	// ErrNonLocalhost is returned for a remote backend in offline mode.
	ErrNonLocalhost = errors.New("only localhost backends are allowed in offline mode")

	// ErrInvalidURLScheme is returned when the scheme is not http or https.
	ErrInvalidURLScheme = errors.New("only http and https schemes are allowed")
)

// =============================================================================
// MODE MANAGEMENT
// =============================================================================

var (
	offlineMode      bool
	offlineModeMutex sync.RWMutex
)

// SetOfflineMode enables or disables offline mode globally.
func SetOfflineMode(enabled bool) {
	offlineModeMutex.Lock()
	defer offlineModeMutex.Unlock()
	offlineMode = enabled
}

// IsOfflineMode returns true if offline mode is currently enabled.
func IsOfflineMode() bool {
	offlineModeMutex.RLock()
	defer offlineModeMutex.RUnlock()
	return offlineMode
}

// =============================================================================
// URL VALIDATION
// =============================================================================

// IsLocalhost reports whether host (optionally with a port) is loopback.
// Any 127.0.0.0/8 address and every IPv6 spelling of ::1 count.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))

	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// ValidateURL checks that rawURL may be used as a backend base URL.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrInvalidURLScheme
	}
	if parsed.Host == "" {
		return ErrInvalidURL
	}

	if IsOfflineMode() && !IsLocalhost(parsed.Hostname()) {
		return ErrNonLocalhost
	}
	return nil
}

// StatusBadge returns "[OFFLINE]" when offline mode is on.
func StatusBadge() string {
	if IsOfflineMode() {
		return "[OFFLINE]"
	}
	return ""
}
