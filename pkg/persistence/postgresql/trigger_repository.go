package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/omnipro-bh/omniflow/pkg/models"
	"github.com/omnipro-bh/omniflow/pkg/persistence"
)

// pq error code for unique_violation.
const uniqueViolation = "23505"

// TriggerRepository inserts daily-trigger flags. The PRIMARY KEY (contact_id,
// local_date) conflict is surfaced as ErrDailyTriggerExists so the engine can treat
// the insert itself as the first-message-of-day check.
type TriggerRepository struct {
	db *sql.DB
}

func NewTriggerRepository(db *sql.DB) *TriggerRepository {
	return &TriggerRepository{db: db}
}

func (r *TriggerRepository) Insert(ctx context.Context, flag *models.DailyTriggerFlag) error {
	query := `
		INSERT INTO daily_triggers (contact_id, local_date, first_timestamp)
		VALUES ($1, $2, $3)
	`

	_, err := r.db.ExecContext(ctx, query, flag.ContactID, flag.LocalDate, flag.FirstTimestamp)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewStoreError("insert", "daily_trigger", flag.ContactID, persistence.ErrDailyTriggerExists)
		}

		return fmt.Errorf("failed to insert daily trigger: %w", err)
	}

	return nil
}

// Prune deletes flags dated strictly before cutoffDate. Dates are stored as YYYY-MM-DD
// strings, so lexicographic comparison equals chronological comparison.
func (r *TriggerRepository) Prune(ctx context.Context, cutoffDate string) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM daily_triggers WHERE local_date < $1", cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("failed to prune daily triggers: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned daily triggers: %w", err)
	}

	return deleted, nil
}
