package models

import (
	"maps"
	"time"
)

// ConversationState is the durable pointer to where a contact currently is in a
// workflow's graph, plus accumulated variables. One row per (workflow, contact),
// created lazily on first transition. Updates are last-write-wins.
type ConversationState struct {
	WorkflowID      string         `json:"workflow_id" validate:"required"`
	ContactID       string         `json:"contact_id"  validate:"required"`
	CurrentNodeID   string         `json:"current_node_id"`
	Context         map[string]any `json:"context"`
	LastMessageAt   time.Time      `json:"last_message_at"`
	LastMessageDate string         `json:"last_message_date"` // YYYY-MM-DD in the workflow timezone
}

// WithNode returns a copy of the state pointing at the given node.
func (s *ConversationState) WithNode(nodeID string, now time.Time) *ConversationState {
	next := *s
	next.CurrentNodeID = nodeID
	next.LastMessageAt = now
	next.Context = maps.Clone(s.Context)

	return &next
}

// WithContext returns a copy of the state with vars merged into the context. The
// receiver's context map is never mutated, so a failed step leaves state untouched.
func (s *ConversationState) WithContext(vars map[string]any) *ConversationState {
	next := *s

	merged := make(map[string]any, len(s.Context)+len(vars))
	maps.Copy(merged, s.Context)
	maps.Copy(merged, vars)
	next.Context = merged

	return &next
}

// SentMessageRecord ties a provider message id to the workflow that produced it, so a
// later button click can be ownership-checked. Rows are short-lived (TTL bound).
type SentMessageRecord struct {
	WorkflowID        string    `json:"workflow_id"         validate:"required"`
	ProviderMessageID string    `json:"provider_message_id" validate:"required"`
	ContactID         string    `json:"contact_id"`
	NodeType          NodeType  `json:"node_type"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// DailyTriggerFlag marks that a contact's first message of localDate was already seen.
// The UNIQUE(contact_id, local_date) constraint is the idempotence mechanism: insertion
// conflict, not a read-then-write check, signals "not first message today".
type DailyTriggerFlag struct {
	ContactID      string    `json:"contact_id" validate:"required"`
	LocalDate      string    `json:"local_date" validate:"required"` // YYYY-MM-DD
	FirstTimestamp time.Time `json:"first_timestamp"`
}

// ContactSubscription records a contact's opt-in/opt-out choice, toggled when button
// titles match the configured subscribe/unsubscribe keyword lists.
type ContactSubscription struct {
	ContactID string    `json:"contact_id" validate:"required"`
	OptedOut  bool      `json:"opted_out"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExecutionStatus is the terminal status of one processed inbound event.
type ExecutionStatus string

const (
	ExecutionStatusSuccess ExecutionStatus = "SUCCESS"
	ExecutionStatusError   ExecutionStatus = "ERROR"
)

// ExecutionLog is the append-only audit record for one inbound event processed by one
// workflow, including ignored/inactive cases.
type ExecutionLog struct {
	ID             string           `json:"id"`
	WorkflowID     string           `json:"workflow_id"`
	ContactID      string           `json:"contact_id"`
	EventType      string           `json:"event_type"`
	TriggerPayload map[string]any   `json:"trigger_payload,omitempty"`
	ResponsesSent  []map[string]any `json:"responses_sent,omitempty"`
	Status         ExecutionStatus  `json:"status"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	ExecutedAt     time.Time        `json:"executed_at"`
}
