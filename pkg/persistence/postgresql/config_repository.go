package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/omnipro-bh/omniflow/pkg/models"
)

// ConfigRepository reads administrator-controlled engine configuration and maintains
// contact subscriptions. Config values are JSONB arrays keyed by name; a missing key
// yields an empty list, which for the domain allowlist means fail-closed.
type ConfigRepository struct {
	db *sql.DB
}

func NewConfigRepository(db *sql.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

func (r *ConfigRepository) StringList(ctx context.Context, key string) ([]string, error) {
	var raw []byte

	err := r.db.QueryRowContext(ctx, "SELECT value FROM engine_config WHERE key = $1", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query engine config %q: %w", key, err)
	}

	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("engine config %q is not a string list: %w", key, err)
	}

	return values, nil
}

func (r *ConfigRepository) UpsertSubscription(ctx context.Context, sub *models.ContactSubscription) error {
	query := `
		INSERT INTO contact_subscriptions (contact_id, opted_out, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (contact_id) DO UPDATE SET
			opted_out = EXCLUDED.opted_out,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, sub.ContactID, sub.OptedOut, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert contact subscription: %w", err)
	}

	return nil
}
