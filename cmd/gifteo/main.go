// Package main is the entry point for the Gifteo backend.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (env vars, see internal/config)
// 2. Create dependencies (logger, database, server)
// 3. Start the requested command
//
// All actual logic lives in imported packages (internal/server,
// internal/notify, ...). This separation makes the app testable.
//
// COMMANDS:
//
//	gifteo serve     HTTP API plus the daily notification scheduler
//	gifteo notify    run the notification jobs once and exit (cron, debugging)
//	gifteo migrate   create/upgrade the schema and refresh global holidays
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// NotifyContext cancels ctx on Ctrl+C or SIGTERM; every command
	// shuts down through it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
