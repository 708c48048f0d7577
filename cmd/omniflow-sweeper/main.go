// Package main provides the OmniFlow cleanup daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/omnipro-bh/omniflow/pkg/cmd"
	"github.com/omnipro-bh/omniflow/pkg/log"
	"github.com/omnipro-bh/omniflow/pkg/sweeper"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("sweeper")

	command := &cli.Command{
		Name:                  "omniflow-sweeper",
		Usage:                 "Periodically remove expired ownership records and old trigger flags",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "PostgreSQL connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "redis-url",
				Usage:    "Redis connection URL for sent-message records",
				Required: true,
				Sources:  cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression for the sweep schedule",
				Value:   sweeper.DefaultSchedule,
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.IntFlag{
				Name:    "keep-days",
				Usage:   "Days of daily-trigger history to keep",
				Value:   sweeper.DefaultKeepDays,
				Sources: cli.EnvVars("SWEEP_KEEP_DAYS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing OmniFlow sweeper")

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			sentStore, err := cmd.NewSentMessageStore(ctx, logger, command.String("redis-url"))
			if err != nil {
				return err
			}

			s := sweeper.NewSweeper(logger, sentStore, store).
				WithSchedule(command.String("schedule")).
				WithKeepDays(command.Int("keep-days"))

			if err := s.Start(ctx); err != nil {
				return err
			}

			defer s.Stop()

			stop, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			<-stop.Done()
			logger.InfoContext(ctx, "Shutting down sweeper")

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
