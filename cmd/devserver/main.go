// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command devserver runs the scripted chat backend.
//
//	devserver [--addr 127.0.0.1:8090] [--mode normal|error|broken|down|slow|corrupt|truncated]
//	          [--delay 150ms] [--rate-limit 30] [--log-level info] [--log-format text]
//
// The mode can be switched at runtime:
//
//	curl -X PUT localhost:8090/admin/mode -d '{"mode":"broken"}'
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/presence-chat/internal/devserver"
	"github.com/jeranaias/presence-chat/internal/logging"
)

func main() {
	addr := flag.String("addr", devserver.DefaultAddr, "listen address")
	modeName := flag.String("mode", string(devserver.ModeNormal), "scripted behaviour")
	delay := flag.Duration("delay", devserver.DefaultChunkDelay, "delay between frames in slow mode")
	rateLimit := flag.Int("rate-limit", 0, "chat requests per client per minute (0 disables)")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	logFormat := flag.String("log-format", logging.FormatText, "text or json")
	flag.Parse()

	logger, err := logging.New(os.Stderr, logging.Options{Level: *logLevel, Format: *logFormat})
	if err != nil {
		fmt.Fprintf(os.Stderr, "devserver: %v\n", err)
		os.Exit(2)
	}
	logging.SetDefault(logger)

	mode, err := devserver.ParseMode(*modeName)
	if err != nil {
		logger.Error("invalid mode", "error", err)
		os.Exit(2)
	}

	gin.SetMode(gin.ReleaseMode)
	srv := devserver.New(devserver.Options{
		Mode:       mode,
		ChunkDelay: *delay,
		Logger:     logger,
		RateLimit:  *rateLimit,
		RateWindow: time.Minute,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx, *addr); err != nil {
		logger.Error("devserver failed", "error", err)
		os.Exit(1)
	}
}
