// Standardized error types shared by all persistence implementations.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrConversationStateNotFound indicates no state row exists yet for the
	// (workflow, contact) pair. Expected before first contact.
	ErrConversationStateNotFound = errors.New("conversation state not found")

	// ErrSentMessageNotFound indicates no unexpired ownership record exists for the
	// provider message id.
	ErrSentMessageNotFound = errors.New("sent message record not found")

	// ErrDailyTriggerExists indicates the (contact, local date) flag was already
	// inserted, i.e. this is not the first message of the day.
	ErrDailyTriggerExists = errors.New("daily trigger already recorded")
)

// StoreError wraps persistence failures with the operation and entity context.
type StoreError struct {
	Op       string // Operation being performed (e.g. "SaveConversationState")
	Entity   string // Entity kind (e.g. "conversation_state")
	EntityID string // Identifier if applicable
	Err      error
}

func (e *StoreError) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s failed for %s %s: %v", e.Op, e.Entity, e.EntityID, e.Err)
	}

	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a store error with context.
func NewStoreError(op, entity, entityID string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, EntityID: entityID, Err: err}
}
