// presence-chat - terminal client for the Smart Presence chat assistants.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/presence-chat/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run())
}

func run() int {
	cmd, args, err := cli.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n\n", cli.ErrorStyle.Render("[Erreur]"), err)
		cli.PrintUsage(os.Stderr)
		return 2
	}

	switch cmd {
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		return 0
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout)
		return 0
	case cli.CmdWidgets:
		return exitCode(cli.RunWidgets(args, os.Stdout))
	case cli.CmdChat:
		// The REPL handles Ctrl+C itself.
		return exitCode(cli.RunChat(context.Background(), args))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case cli.CmdAsk:
		return exitCode(cli.RunAsk(ctx, args, os.Stdout))
	case cli.CmdStatus:
		return exitCode(cli.RunStatus(ctx, args, os.Stdout))
	}
	return 0
}

// exitCode prints err and maps it to a process exit status. Failures
// already shown on stdout exit non-zero without a second message.
func exitCode(err error) int {
	var turnErr *cli.TurnError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, cli.ErrDisconnected), errors.As(err, &turnErr):
		return 1
	default:
		fmt.Fprintf(os.Stderr, "%s %v\n", cli.ErrorStyle.Render("[Erreur]"), err)
		return 1
	}
}
