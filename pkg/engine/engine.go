// Package engine orchestrates workflow execution for inbound webhook events: it
// classifies the event, handles idempotent daily triggering, verifies button-click
// ownership, resolves the target node and drives the traversal state machine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/omnipro-bh/omniflow/pkg/dispatch"
	"github.com/omnipro-bh/omniflow/pkg/eventbus"
	"github.com/omnipro-bh/omniflow/pkg/events"
	"github.com/omnipro-bh/omniflow/pkg/graph"
	"github.com/omnipro-bh/omniflow/pkg/models"
	"github.com/omnipro-bh/omniflow/pkg/otelhelper"
	"github.com/omnipro-bh/omniflow/pkg/persistence"
	"github.com/omnipro-bh/omniflow/pkg/sandbox"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OutcomeClass separates "nothing to do" from "tried and failed" so callers and tests
// can assert on outcome classes instead of parsing log strings.
type OutcomeClass string

const (
	OutcomeCompleted OutcomeClass = "completed"
	OutcomeIgnored   OutcomeClass = "ignored"
	OutcomeFailed    OutcomeClass = "failed"
)

// Ignore reasons reported on Outcome and lifecycle events.
const (
	ReasonEcho           = "echo of outbound message"
	ReasonNoContent      = "no text or interactive reply"
	ReasonGroupChat      = "group chats are not processed"
	ReasonInactive       = "workflow is inactive"
	ReasonOtherWorkflow  = "message belongs to a different workflow"
	ReasonRepeatedOfDay  = "not the first message of the day"
	ReasonNoTarget       = "no resolvable target node for this selection; the click may belong to a native call/url button"
	ReasonNotMessageNode = "resolved node is not a dispatchable message node"
)

// Outcome is the classified result of one inbound event.
type Outcome struct {
	Class  OutcomeClass
	Reason string
	Logs   []*models.ExecutionLog
}

// Engine executes workflows. It owns no mutable shared state; everything durable
// lives behind the persistence interfaces.
type Engine struct {
	logger     *slog.Logger
	store      persistence.Persistence
	sentStore  persistence.SentMessageStore
	dispatcher *dispatch.Dispatcher
	sandbox    *sandbox.Client
	bus        eventbus.EventBus
	tracer     trace.Tracer
	clock      clockwork.Clock
}

func NewEngine(
	logger *slog.Logger,
	store persistence.Persistence,
	sentStore persistence.SentMessageStore,
	dispatcher *dispatch.Dispatcher,
	sandboxClient *sandbox.Client,
) *Engine {
	return &Engine{
		logger:     logger.With("module", "engine"),
		store:      store,
		sentStore:  sentStore,
		dispatcher: dispatcher,
		sandbox:    sandboxClient,
		clock:      clockwork.NewRealClock(),
	}
}

// WithEventBus enables best-effort lifecycle event publishing.
func (e *Engine) WithEventBus(bus eventbus.EventBus) *Engine {
	e.bus = bus

	return e
}

// WithTracer enables span creation around event handling.
func (e *Engine) WithTracer(tracer trace.Tracer) *Engine {
	e.tracer = tracer

	return e
}

// WithClock swaps the clock, used by tests to pin dates.
func (e *Engine) WithClock(clock clockwork.Clock) *Engine {
	e.clock = clock

	return e
}

// HandleInboundEvent processes one webhook delivery for one workflow. The returned
// error covers infrastructure failures only (workflow fetch, log write); workflow-level
// failures are reported through the Outcome and its execution logs.
func (e *Engine) HandleInboundEvent(
	ctx context.Context,
	workflowID string,
	event *models.InboundEvent,
	creds dispatch.Credentials,
) (*Outcome, error) {
	if e.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "engine.handle_inbound_event",
			attribute.String(otelhelper.WorkflowIDKey, workflowID),
			attribute.String(otelhelper.ContactIDKey, event.ContactID),
			attribute.String(otelhelper.EventTypeKey, event.EventType()),
		)
		defer span.End()
	}

	logger := e.logger.With("workflow_id", workflowID, "contact_id", event.ContactID)

	// Ignorable classes produce no log entry at all; nothing user-visible happened.
	switch {
	case event.FromMe:
		return e.ignored(ctx, workflowID, event, ReasonEcho), nil
	case !event.HasContent():
		return e.ignored(ctx, workflowID, event, ReasonNoContent), nil
	case event.GroupChat:
		return e.ignored(ctx, workflowID, event, ReasonGroupChat), nil
	}

	workflow, err := e.store.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	if err := workflow.Decode(); err != nil {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", workflowID, err)
	}

	if !workflow.Active {
		entry := e.newLog(workflow.ID, event)
		entry.Status = models.ExecutionStatusSuccess
		entry.ErrorMessage = ReasonInactive
		e.appendLog(ctx, logger, entry)
		e.publish(ctx, events.ExecutionIgnored{
			BaseEvent: e.baseEvent(events.ExecutionIgnoredEvent, workflow.ID, event.ContactID),
			Reason:    ReasonInactive,
		})

		return &Outcome{Class: OutcomeIgnored, Reason: ReasonInactive, Logs: []*models.ExecutionLog{entry}}, nil
	}

	if _, isSelection := event.Selection(); isSelection {
		return e.handleSelection(ctx, logger, workflow, event, creds)
	}

	return e.handleText(ctx, logger, workflow, event, creds)
}

func (e *Engine) ignored(ctx context.Context, workflowID string, event *models.InboundEvent, reason string) *Outcome {
	e.publish(ctx, events.ExecutionIgnored{
		BaseEvent: e.baseEvent(events.ExecutionIgnoredEvent, workflowID, event.ContactID),
		Reason:    reason,
	})

	return &Outcome{Class: OutcomeIgnored, Reason: reason}
}

// handleSelection routes a button/list reply: ownership check, keyword side effect,
// graph resolution and traversal.
func (e *Engine) handleSelection(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	event *models.InboundEvent,
	creds dispatch.Credentials,
) (*Outcome, error) {
	entry := e.newLog(workflow.ID, event)

	if owned, ownerID := e.ownedByOtherWorkflow(ctx, workflow.ID, event); owned {
		logger.Info("selection belongs to a different workflow, ignoring",
			"owner_workflow_id", ownerID, "quoted_message_id", event.QuotedMessageID)

		entry.Status = models.ExecutionStatusSuccess
		entry.ErrorMessage = ReasonOtherWorkflow
		e.appendLog(ctx, logger, entry)
		e.publish(ctx, events.ExecutionIgnored{
			BaseEvent: e.baseEvent(events.ExecutionIgnoredEvent, workflow.ID, event.ContactID),
			Reason:    ReasonOtherWorkflow,
		})

		return &Outcome{Class: OutcomeIgnored, Reason: ReasonOtherWorkflow, Logs: []*models.ExecutionLog{entry}}, nil
	}

	// Started is published only once the event is committed to processing; a click
	// bounced by the ownership check above emits Ignored alone.
	e.publish(ctx, events.ExecutionStarted{
		BaseEvent: e.baseEvent(events.ExecutionStartedEvent, workflow.ID, event.ContactID),
		EventKind: event.EventType(),
	})

	// Subscribe/unsubscribe keywords are a best-effort side effect; a store failure
	// must not abort the traversal.
	e.applyKeywordSubscription(ctx, logger, event)

	// An empty stripped signal must not reach the resolver: it would match unlabeled
	// default edges.
	signal, ok := event.SelectionSignal()

	var target *models.Node
	if ok {
		target = graph.ResolveTarget(workflow, signal)
	}

	if target == nil {
		logger.Info("no target node resolved for selection", "signal", signal)

		entry.Status = models.ExecutionStatusSuccess
		entry.ErrorMessage = ReasonNoTarget
		e.appendLog(ctx, logger, entry)

		return &Outcome{Class: OutcomeCompleted, Reason: ReasonNoTarget, Logs: []*models.ExecutionLog{entry}}, nil
	}

	return e.runTraversal(ctx, logger, workflow, target, event, creds, entry)
}

// handleText fires the idempotent daily trigger. The uniqueness conflict on insert is
// the only "seen today already" signal; no read-then-write race window exists.
func (e *Engine) handleText(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	event *models.InboundEvent,
	creds dispatch.Credentials,
) (*Outcome, error) {
	now := e.clock.Now()
	localDate := now.In(workflow.Location()).Format(time.DateOnly)

	err := e.store.InsertDailyTrigger(ctx, &models.DailyTriggerFlag{
		ContactID:      event.ContactID,
		LocalDate:      localDate,
		FirstTimestamp: now,
	})

	if errors.Is(err, persistence.ErrDailyTriggerExists) {
		entry := e.newLog(workflow.ID, event)
		entry.Status = models.ExecutionStatusSuccess
		entry.ErrorMessage = ReasonRepeatedOfDay
		e.appendLog(ctx, logger, entry)
		e.publish(ctx, events.ExecutionIgnored{
			BaseEvent: e.baseEvent(events.ExecutionIgnoredEvent, workflow.ID, event.ContactID),
			Reason:    ReasonRepeatedOfDay,
		})

		return &Outcome{Class: OutcomeIgnored, Reason: ReasonRepeatedOfDay, Logs: []*models.ExecutionLog{entry}}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to insert daily trigger flag: %w", err)
	}

	// Started is published only once the trigger flag insert confirmed this is the
	// first message of the day; a repeat emits Ignored alone.
	e.publish(ctx, events.ExecutionStarted{
		BaseEvent: e.baseEvent(events.ExecutionStartedEvent, workflow.ID, event.ContactID),
		EventKind: event.EventType(),
	})

	return e.fanOutDailyTrigger(ctx, logger, workflow, event, creds, localDate)
}

// ownedByOtherWorkflow checks the quoted message against sent-message records. A
// missing record means "proceed": older deployments sent messages before ownership
// tracking existed.
func (e *Engine) ownedByOtherWorkflow(ctx context.Context, workflowID string, event *models.InboundEvent) (bool, string) {
	if event.QuotedMessageID == "" {
		return false, ""
	}

	record, err := e.sentStore.SentMessageByProviderID(ctx, event.QuotedMessageID)
	if err != nil {
		if !errors.Is(err, persistence.ErrSentMessageNotFound) {
			e.logger.Warn("sent message lookup failed, proceeding without ownership check", "error", err)
		}

		return false, ""
	}

	if record.WorkflowID != workflowID {
		return true, record.WorkflowID
	}

	return false, ""
}

func (e *Engine) applyKeywordSubscription(ctx context.Context, logger *slog.Logger, event *models.InboundEvent) {
	title := strings.TrimSpace(event.ButtonTitle)
	if title == "" {
		return
	}

	optedOut, matched := e.matchKeyword(ctx, title)
	if !matched {
		return
	}

	err := e.store.UpsertSubscription(ctx, &models.ContactSubscription{
		ContactID: event.ContactID,
		OptedOut:  optedOut,
		UpdatedAt: e.clock.Now(),
	})
	if err != nil {
		logger.Warn("failed to upsert contact subscription", "error", err, "opted_out", optedOut)
	}
}

func (e *Engine) matchKeyword(ctx context.Context, title string) (optedOut, matched bool) {
	unsubscribe, err := e.store.UnsubscribeKeywords(ctx)
	if err == nil && containsFold(unsubscribe, title) {
		return true, true
	}

	subscribe, err := e.store.SubscribeKeywords(ctx)
	if err == nil && containsFold(subscribe, title) {
		return false, true
	}

	return false, false
}

func containsFold(keywords []string, title string) bool {
	for _, keyword := range keywords {
		if strings.EqualFold(strings.TrimSpace(keyword), title) {
			return true
		}
	}

	return false
}

func (e *Engine) newLog(workflowID string, event *models.InboundEvent) *models.ExecutionLog {
	return &models.ExecutionLog{
		ID:             uuid.New().String(),
		WorkflowID:     workflowID,
		ContactID:      event.ContactID,
		EventType:      event.EventType(),
		TriggerPayload: event.Payload,
		ExecutedAt:     e.clock.Now(),
	}
}

func (e *Engine) appendLog(ctx context.Context, logger *slog.Logger, entry *models.ExecutionLog) {
	if err := e.store.AppendExecutionLog(ctx, entry); err != nil {
		logger.Error("failed to append execution log", "error", err, "log_id", entry.ID)
	}
}

func (e *Engine) baseEvent(eventType events.EventType, workflowID, contactID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  e.clock.Now(),
		WorkflowID: workflowID,
		ContactID:  contactID,
	}
}

// publish is best-effort: observers must never break event handling.
func (e *Engine) publish(ctx context.Context, event eventbus.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, string(event.GetType()), event); err != nil {
		e.logger.Warn("failed to publish lifecycle event", "error", err, "event_type", event.GetType())
	}
}

// templateContext builds the data visible to node templates: accumulated context
// variables at the top level plus reserved contact/message/vars keys.
func templateContext(event *models.InboundEvent, state *models.ConversationState) map[string]any {
	data := make(map[string]any, len(state.Context)+3)
	maps.Copy(data, state.Context)

	data["vars"] = state.Context
	data["contact"] = map[string]any{
		"id":   event.ContactID,
		"name": event.PushName,
	}
	data["message"] = map[string]any{
		"text": event.Text,
	}

	return data
}
