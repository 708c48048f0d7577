// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/omnipro-bh/omniflow/pkg/persistence"
	"github.com/omnipro-bh/omniflow/pkg/persistence/postgresql"
	"github.com/omnipro-bh/omniflow/pkg/persistence/redisstore"
)

// NewPersistence connects the PostgreSQL layer and runs migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize persistence: %w", err)
	}

	return store, nil
}

// NewSentMessageStore connects the Redis-backed ownership record store.
func NewSentMessageStore(ctx context.Context, logger *slog.Logger, redisURL string) (persistence.SentMessageStore, error) {
	client, err := redisstore.NewClient(ctx, redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sent message store: %w", err)
	}

	return redisstore.NewSentMessageStore(client, logger), nil
}
