// Package persistence defines the storage abstraction consumed by the execution engine.
//
// The engine owns no durable state of its own; everything that survives a webhook
// delivery lives behind these interfaces.
package persistence

import (
	"context"

	"github.com/omnipro-bh/omniflow/pkg/models"
)

// WorkflowStore reads workflow definitions. Authoring is out of scope; the engine only
// ever fetches by id or lists a tenant's active workflows for the daily-trigger fan-out.
type WorkflowStore interface {
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	ActiveWorkflowsByTenant(ctx context.Context, tenantID string) ([]*models.Workflow, error)
}

// ConversationStateStore holds per-(workflow, contact) conversation progress.
// Saves are last-write-wins; concurrent deliveries for the same contact may race.
type ConversationStateStore interface {
	ConversationState(ctx context.Context, workflowID, contactID string) (*models.ConversationState, error)
	SaveConversationState(ctx context.Context, state *models.ConversationState) error
}

// SentMessageStore holds short-lived ownership records for dispatched interactive
// messages. Records expire naturally; Lookup must not return expired rows.
type SentMessageStore interface {
	SaveSentMessage(ctx context.Context, record *models.SentMessageRecord) error
	SentMessageByProviderID(ctx context.Context, providerMessageID string) (*models.SentMessageRecord, error)
	DeleteExpiredSentMessages(ctx context.Context) (int64, error)
}

// DailyTriggerStore inserts first-message-of-day flags. InsertDailyTrigger returns
// ErrDailyTriggerExists on the (contact, date) uniqueness conflict; that conflict is
// the only "not first message today" signal, so concurrent deliveries cannot double
// fire the trigger. PruneDailyTriggers deletes flags with a local date strictly before
// cutoffDate (YYYY-MM-DD); the caller owns the clock that produces the cutoff.
type DailyTriggerStore interface {
	InsertDailyTrigger(ctx context.Context, flag *models.DailyTriggerFlag) error
	PruneDailyTriggers(ctx context.Context, cutoffDate string) (int64, error)
}

// ExecutionLogStore appends audit records. Append-only by contract.
type ExecutionLogStore interface {
	AppendExecutionLog(ctx context.Context, entry *models.ExecutionLog) error
}

// SubscriptionStore upserts contact opt-in/opt-out records.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub *models.ContactSubscription) error
}

// ConfigStore reads administrator-controlled engine configuration.
type ConfigStore interface {
	AllowedDomains(ctx context.Context) ([]string, error)
	SubscribeKeywords(ctx context.Context) ([]string, error)
	UnsubscribeKeywords(ctx context.Context) ([]string, error)
}

// Persistence aggregates every store the engine needs, plus lifecycle hooks, mirroring
// how a single database-backed implementation exposes them.
type Persistence interface {
	WorkflowStore
	ConversationStateStore
	DailyTriggerStore
	ExecutionLogStore
	SubscriptionStore
	ConfigStore

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
