// Package main provides the OmniFlow webhook server.
package main

import (
	"context"
	"os"

	"github.com/omnipro-bh/omniflow/pkg/cmd"
	"github.com/omnipro-bh/omniflow/pkg/dispatch"
	"github.com/omnipro-bh/omniflow/pkg/engine"
	"github.com/omnipro-bh/omniflow/pkg/log"
	"github.com/omnipro-bh/omniflow/pkg/otelhelper"
	"github.com/omnipro-bh/omniflow/pkg/sandbox"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 8080

func main() {
	logger := log.WithModule("server")

	command := &cli.Command{
		Name:                  "omniflow-server",
		Usage:                 "Receive messaging webhooks and execute workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the webhook server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
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
				Name:     "gateway-url",
				Usage:    "Base URL of the messaging gateway",
				Required: true,
				Sources:  cli.EnvVars("GATEWAY_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker addresses (kafka provider only)",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing",
				Sources: cli.EnvVars("OTEL_ENABLED"),
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

			logger.InfoContext(ctx, "Initializing OmniFlow server")

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

			eventBus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			gateway := dispatch.NewGatewayClient(command.String("gateway-url"))
			dispatcher := dispatch.NewDispatcher(logger, gateway, sentStore)
			sandboxClient := sandbox.NewClient(logger, store)

			eng := engine.NewEngine(logger, store, sentStore, dispatcher, sandboxClient).
				WithEventBus(eventBus)

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "omniflow-server")
				if err != nil {
					return err
				}

				eng = eng.WithTracer(tracer)
			}

			server := NewServer(logger, store, eng)

			return server.Start(command.Int("port"))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
