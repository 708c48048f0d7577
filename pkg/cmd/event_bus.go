package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	gochannelpkg "github.com/omnipro-bh/omniflow/pkg/channels/gochannel"
	"github.com/omnipro-bh/omniflow/pkg/channels/kafka"
	"github.com/omnipro-bh/omniflow/pkg/eventbus"
)

// NewEventBus builds the lifecycle event bus. Kafka suits multi-instance deployments;
// the in-memory gochannel covers single-instance and local runs. kafkaBrokers is a
// comma-separated address list, used only by the kafka provider.
func NewEventBus(provider, kafkaBrokers string, logger *slog.Logger) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, "omniflow", strings.Split(kafkaBrokers, ","))
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel", "":
		pub, sub, err := gochannelpkg.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create gochannel pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
