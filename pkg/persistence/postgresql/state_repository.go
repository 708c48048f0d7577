package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/omnipro-bh/omniflow/pkg/models"
	"github.com/omnipro-bh/omniflow/pkg/persistence"
)

// StateRepository persists per-(workflow, contact) conversation state. Saves are an
// unconditional upsert; the engine's last-write-wins contract matches ON CONFLICT
// DO UPDATE exactly.
type StateRepository struct {
	db *sql.DB
}

func NewStateRepository(db *sql.DB) *StateRepository {
	return &StateRepository{db: db}
}

func (r *StateRepository) Get(ctx context.Context, workflowID, contactID string) (*models.ConversationState, error) {
	query := `
		SELECT current_node_id, context, last_message_at, last_message_date
		FROM conversation_states
		WHERE workflow_id = $1 AND contact_id = $2
	`

	state := models.ConversationState{
		WorkflowID: workflowID,
		ContactID:  contactID,
	}

	var rawContext []byte

	err := r.db.QueryRowContext(ctx, query, workflowID, contactID).Scan(
		&state.CurrentNodeID,
		&rawContext,
		&state.LastMessageAt,
		&state.LastMessageDate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStoreError("get", "conversation_state", contactID, persistence.ErrConversationStateNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query conversation state: %w", err)
	}

	if len(rawContext) > 0 {
		if err := json.Unmarshal(rawContext, &state.Context); err != nil {
			return nil, fmt.Errorf("conversation state has invalid context json: %w", err)
		}
	}

	if state.Context == nil {
		state.Context = map[string]any{}
	}

	return &state, nil
}

func (r *StateRepository) Save(ctx context.Context, state *models.ConversationState) error {
	rawContext, err := json.Marshal(state.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation context: %w", err)
	}

	query := `
		INSERT INTO conversation_states
			(workflow_id, contact_id, current_node_id, context, last_message_at, last_message_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workflow_id, contact_id) DO UPDATE SET
			current_node_id = EXCLUDED.current_node_id,
			context = EXCLUDED.context,
			last_message_at = EXCLUDED.last_message_at,
			last_message_date = EXCLUDED.last_message_date
	`

	_, err = r.db.ExecContext(ctx, query,
		state.WorkflowID,
		state.ContactID,
		state.CurrentNodeID,
		rawContext,
		state.LastMessageAt,
		state.LastMessageDate,
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation state: %w", err)
	}

	return nil
}
