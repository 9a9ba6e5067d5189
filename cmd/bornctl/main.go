// Command bornctl runs reminder passes and manages the schema from a shell
// or an external scheduler.
//
//	bornctl remind                    # one pass for today in REMINDER_TZ
//	bornctl remind --date 2025-06-14  # replay a specific day
//	bornctl migrate up|down|status
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	// Logs go to stderr so stdout carries only command output.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	_ = godotenv.Load() // .env is optional

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "bornctl",
		Usage: "Operate the Bornify reminder service",
		Commands: []*cli.Command{
			remindCommand(logger),
			migrateCommand(logger),
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "bornctl:", err)
		os.Exit(1)
	}
}
