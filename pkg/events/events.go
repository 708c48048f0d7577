// Package events defines event types for execution lifecycle notifications.
package events

import (
	"time"
)

type EventType string

// Topic carries all execution lifecycle events.
const Topic = "omniflow.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionIgnoredEvent   EventType = "execution.ignored"
	MessageDispatchedEvent  EventType = "message.dispatched"
	DailyTriggerFiredEvent  EventType = "daily_trigger.fired"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	ContactID  string         `json:"contact_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type ExecutionStarted struct {
	BaseEvent

	EventKind string `json:"event_kind"` // text, buttonReply, listReply
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	MessagesSent int           `json:"messages_sent"`
	Duration     time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	Error string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionIgnored struct {
	BaseEvent

	Reason string `json:"reason"`
}

func (e ExecutionIgnored) GetType() EventType {
	return ExecutionIgnoredEvent
}

type MessageDispatched struct {
	BaseEvent

	NodeID            string `json:"node_id"`
	NodeType          string `json:"node_type"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

func (e MessageDispatched) GetType() EventType {
	return MessageDispatchedEvent
}

type DailyTriggerFired struct {
	BaseEvent

	LocalDate     string `json:"local_date"`
	WorkflowCount int    `json:"workflow_count"`
}

func (e DailyTriggerFired) GetType() EventType {
	return DailyTriggerFiredEvent
}
