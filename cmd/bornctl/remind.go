package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/nyashahama/bornify-backend/internal/app"
	"github.com/nyashahama/bornify-backend/internal/calendar"
	"github.com/nyashahama/bornify-backend/internal/config"
	"github.com/nyashahama/bornify-backend/internal/store"
	"github.com/nyashahama/bornify-backend/internal/worker"
)

func remindCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "remind",
		Usage: "Run one reminder pass and print its summary as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "date",
				Usage: "Reference date (YYYY-MM-DD); defaults to today in REMINDER_TZ",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return remind(ctx, cmd.String("date"), logger)
		},
	}
}

func remind(ctx context.Context, date string, logger *slog.Logger) error {
	cfg, err := config.LoadWorker()
	if err != nil {
		return err
	}

	var today *calendar.Date
	if date != "" {
		d, err := calendar.Parse(date)
		if err != nil {
			return fmt.Errorf("--date: %w", err)
		}
		today = &d
	}

	pool, err := app.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	st := store.New(pool)
	mailer := app.NewMailer(cfg, logger)
	runner := app.NewReminderRunner(cfg, st, mailer, calendar.RealClock{}, logger)

	// The pass runs to completion once started, even if interrupted.
	runCtx := context.WithoutCancel(ctx)
	var sum worker.Summary
	if today != nil {
		sum = runner.Run(runCtx, *today)
	} else {
		sum = runner.RunToday(runCtx)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		return err
	}
	if !sum.Success {
		return cli.Exit("run failed: "+sum.ErrorMessage, 2)
	}
	return nil
}
