// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
)

// Version information, set at build time.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// COMMANDS
// =============================================================================

// Command identifies a top-level command.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdStatus
	CmdWidgets
	CmdVersion
	CmdHelp
)

func (c Command) String() string {
	switch c {
	case CmdChat:
		return "chat"
	case CmdAsk:
		return "ask"
	case CmdStatus:
		return "status"
	case CmdWidgets:
		return "widgets"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	}
	return "unknown"
}

// Args holds the parsed command line.
type Args struct {
	Widget     string
	URL        string
	ConfigPath string
	Offline    bool
	JSON       bool
	Verbose    bool

	// Query is the question for ask.
	Query string
}

// Parse parses argv (without the program name).
func Parse(argv []string) (Command, Args, error) {
	p := NewArgParser(argv)
	args := Args{
		Widget:     p.Flag("widget", "w"),
		URL:        p.Flag("url", "u"),
		ConfigPath: p.Flag("config", "c"),
		Offline:    p.BoolFlag("offline"),
		JSON:       p.BoolFlag("json"),
		Verbose:    p.BoolFlag("verbose", "v"),
	}

	if p.BoolFlag("help", "h") {
		return CmdHelp, args, nil
	}
	if p.BoolFlag("version") {
		return CmdVersion, args, nil
	}

	switch sub := p.Positional(0); sub {
	case "", "chat":
		return CmdChat, args, nil
	case "ask":
		args.Query = strings.TrimSpace(strings.Join(p.PositionalFrom(1), " "))
		if args.Query == "" {
			return CmdAsk, args, fmt.Errorf("ask: question is required")
		}
		return CmdAsk, args, nil
	case "status":
		return CmdStatus, args, nil
	case "widgets":
		return CmdWidgets, args, nil
	case "version":
		return CmdVersion, args, nil
	case "help":
		return CmdHelp, args, nil
	default:
		return CmdHelp, args, fmt.Errorf("unknown command %q", sub)
	}
}

// =============================================================================
// USAGE
// =============================================================================

const usageText = `presence-chat - terminal client for the Smart Presence assistants

USAGE:
  presence-chat [flags]                 Start an interactive chat
  presence-chat ask [flags] QUESTION    Ask one question and print the reply
  presence-chat status [flags]          Show backend status
  presence-chat widgets                 List configured widgets
  presence-chat version                 Show version information

FLAGS:
  -w, --widget NAME    Widget profile (chatbot, smartpresence, ntic2, assistant)
  -u, --url URL        Backend base URL (overrides config)
  -c, --config PATH    Config file (default ~/.presence-chat/config.toml)
      --offline        Only allow loopback backends
      --json           JSON output for ask and status
  -v, --verbose        Debug logging

ENVIRONMENT:
  PRESENCE_BASE_URL, PRESENCE_WIDGET, PRESENCE_LOG_LEVEL,
  PRESENCE_STORAGE_BACKEND, PRESENCE_REDIS_URL, PRESENCE_OFFLINE
`

// PrintUsage writes the usage text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "presence-chat %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
}
