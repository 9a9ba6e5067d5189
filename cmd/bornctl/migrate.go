package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/nyashahama/bornify-backend/internal/store"
)

func migrateCommand(logger *slog.Logger) *cli.Command {
	dsnFlag := &cli.StringFlag{
		Name:    "database-url",
		Usage:   "Postgres connection string",
		Sources: cli.EnvVars("DATABASE_URL"),
	}

	dsn := func(cmd *cli.Command) (string, error) {
		v := cmd.String("database-url")
		if v == "" {
			return "", errors.New("DATABASE_URL or --database-url is required")
		}
		return v, nil
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Flags: []cli.Flag{dsnFlag},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: func(_ context.Context, cmd *cli.Command) error {
					url, err := dsn(cmd)
					if err != nil {
						return err
					}
					changed, err := store.MigrateUp(url)
					if err != nil {
						return err
					}
					logger.Info("migrate: up", "changed", changed)
					return nil
				},
			},
			{
				Name:      "down",
				Usage:     "Roll back the last N migrations",
				ArgsUsage: "[N]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Aliases: []string{"n"}, Value: 1, Usage: "How many migrations to roll back"},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					url, err := dsn(cmd)
					if err != nil {
						return err
					}
					steps := int(cmd.Int("steps"))
					if n := cmd.Args().First(); n != "" {
						v, err := strconv.Atoi(n)
						if err != nil {
							return fmt.Errorf("invalid step count %q", n)
						}
						steps = v
					}
					if steps < 1 {
						return fmt.Errorf("--steps must be at least 1")
					}
					if err := store.MigrateDown(url, steps); err != nil {
						return err
					}
					logger.Info("migrate: down", "steps", steps)
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "Print the current schema version",
				Action: func(_ context.Context, cmd *cli.Command) error {
					url, err := dsn(cmd)
					if err != nil {
						return err
					}
					st, err := store.MigrateStatus(url)
					if err != nil {
						return err
					}
					if !st.Applied {
						fmt.Println("no migrations applied")
						return nil
					}
					fmt.Printf("version %d (dirty: %t)\n", st.Version, st.Dirty)
					return nil
				},
			},
		},
	}
}
