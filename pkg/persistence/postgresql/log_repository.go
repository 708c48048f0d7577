package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/omnipro-bh/omniflow/pkg/models"
)

// ExecutionLogRepository appends audit records. Logs are write-only from the engine's
// point of view; reads belong to reporting tooling.
type ExecutionLogRepository struct {
	db *sql.DB
}

func NewExecutionLogRepository(db *sql.DB) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db}
}

func (r *ExecutionLogRepository) Append(ctx context.Context, entry *models.ExecutionLog) error {
	rawPayload, err := json.Marshal(entry.TriggerPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger payload: %w", err)
	}

	rawResponses, err := json.Marshal(entry.ResponsesSent)
	if err != nil {
		return fmt.Errorf("failed to marshal responses: %w", err)
	}

	query := `
		INSERT INTO execution_logs
			(id, workflow_id, contact_id, event_type, trigger_payload, responses_sent, status, error_message, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.WorkflowID,
		entry.ContactID,
		entry.EventType,
		rawPayload,
		rawResponses,
		string(entry.Status),
		entry.ErrorMessage,
		entry.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution log: %w", err)
	}

	return nil
}
