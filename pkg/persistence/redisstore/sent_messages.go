// Package redisstore implements the sent-message ownership store on Redis. Records are
// short-lived by contract, so native key expiry does the bulk of the cleanup.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omnipro-bh/omniflow/pkg/models"
	"github.com/omnipro-bh/omniflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "omniflow:sent:"

// DefaultTTL bounds records that arrive without an explicit expiry.
const DefaultTTL = 24 * time.Hour

type SentMessageStore struct {
	client *redis.Client
	logger *slog.Logger
}

var _ persistence.SentMessageStore = (*SentMessageStore)(nil)

func NewSentMessageStore(client *redis.Client, logger *slog.Logger) *SentMessageStore {
	return &SentMessageStore{
		client: client,
		logger: logger.With("module", "redisstore"),
	}
}

// NewClient connects to Redis from a redis:// URL.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

func (s *SentMessageStore) SaveSentMessage(ctx context.Context, record *models.SentMessageRecord) error {
	if record.ProviderMessageID == "" {
		return persistence.NewStoreError("save", "sent_message", "",
			errors.New("provider message id is required"))
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal sent message record: %w", err)
	}

	ttl := DefaultTTL
	if !record.ExpiresAt.IsZero() {
		ttl = time.Until(record.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}

	err = s.client.Set(ctx, keyPrefix+record.ProviderMessageID, payload, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to store sent message record: %w", err)
	}

	return nil
}

func (s *SentMessageStore) SentMessageByProviderID(ctx context.Context, providerMessageID string) (*models.SentMessageRecord, error) {
	payload, err := s.client.Get(ctx, keyPrefix+providerMessageID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.NewStoreError("get", "sent_message", providerMessageID,
			persistence.ErrSentMessageNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch sent message record: %w", err)
	}

	var record models.SentMessageRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("sent message record is corrupt: %w", err)
	}

	return &record, nil
}

// DeleteExpiredSentMessages removes records whose key lost its TTL, for example after a
// RESTORE without expiry. Redis evicts everything else on its own.
func (s *SentMessageStore) DeleteExpiredSentMessages(ctx context.Context) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)

	now := time.Now()

	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan sent message keys: %w", err)
		}

		for _, key := range keys {
			ttl, err := s.client.TTL(ctx, key).Result()
			if err != nil {
				s.logger.Warn("failed to read key ttl", "key", key, "error", err)

				continue
			}

			if ttl != -1 {
				continue
			}

			payload, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}

			var record models.SentMessageRecord
			if err := json.Unmarshal(payload, &record); err == nil &&
				!record.ExpiresAt.IsZero() && record.ExpiresAt.After(now) {
				continue
			}

			if err := s.client.Del(ctx, key).Err(); err != nil {
				s.logger.Warn("failed to delete expired record", "key", key, "error", err)

				continue
			}

			deleted++
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}
