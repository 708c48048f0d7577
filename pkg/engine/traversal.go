package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omnipro-bh/omniflow/pkg/dispatch"
	"github.com/omnipro-bh/omniflow/pkg/events"
	"github.com/omnipro-bh/omniflow/pkg/graph"
	"github.com/omnipro-bh/omniflow/pkg/models"
	"github.com/omnipro-bh/omniflow/pkg/otelhelper"
	"github.com/omnipro-bh/omniflow/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxTraversalSteps bounds a single invocation so a cyclic graph of non-interactive
// nodes cannot spin forever.
const maxTraversalSteps = 32

// runTraversal drives the state machine from startNode until an interactive node halts
// it, an edge is missing, or a step fails. Interactive nodes are dispatched and then
// halt; non-interactive message nodes auto-continue along their first outgoing edge;
// httpRequest nodes send nothing and branch on the success/error handle.
func (e *Engine) runTraversal(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	startNode *models.Node,
	event *models.InboundEvent,
	creds dispatch.Credentials,
	entry *models.ExecutionLog,
) (*Outcome, error) {
	started := e.clock.Now()

	state, err := e.loadState(ctx, workflow, event)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation state: %w", err)
	}

	var traversalErr error

	current := startNode

	for steps := 0; current != nil; steps++ {
		if steps >= maxTraversalSteps {
			traversalErr = fmt.Errorf("traversal aborted after %d steps, graph likely cyclic", maxTraversalSteps)

			break
		}

		if current.Type == models.NodeTypeHTTPRequest {
			current, state, traversalErr = e.stepHTTP(ctx, logger, workflow, current, event, state)
			if traversalErr != nil {
				break
			}

			continue
		}

		if !current.IsMessageNode() {
			traversalErr = fmt.Errorf("%s: node %s (%s)", ReasonNotMessageNode, current.ID, current.Type)

			break
		}

		response, err := e.dispatcher.Send(ctx, workflow, current, event.ContactID, creds, templateContext(event, state))
		if err != nil {
			traversalErr = fmt.Errorf("failed to dispatch node %s: %w", current.ID, err)

			break
		}

		entry.ResponsesSent = append(entry.ResponsesSent, response)
		e.publish(ctx, events.MessageDispatched{
			BaseEvent:         e.baseEvent(events.MessageDispatchedEvent, workflow.ID, event.ContactID),
			NodeID:            current.ID,
			NodeType:          string(current.Type),
			ProviderMessageID: response.MessageID(),
		})

		// The step is durable only after the dispatch succeeded; a crash before this
		// point leaves the contact parked at the previous node.
		state = state.WithNode(current.ID, e.clock.Now())
		if err := e.store.SaveConversationState(ctx, state); err != nil {
			traversalErr = fmt.Errorf("failed to save conversation state at node %s: %w", current.ID, err)

			break
		}

		if current.IsInteractive() {
			break
		}

		edges := workflow.EdgesFrom(current.ID)
		if len(edges) == 0 {
			break
		}

		current = workflow.NodeByID(edges[0].Target)
	}

	return e.finishTraversal(ctx, logger, workflow, event, entry, started, traversalErr), nil
}

// stepHTTP executes a sandboxed request and picks the next node via the success or
// error handle. The request never fails the traversal by itself; only a missing
// outgoing handle halts it, and state context is touched only on success.
func (e *Engine) stepHTTP(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	node *models.Node,
	event *models.InboundEvent,
	state *models.ConversationState,
) (*models.Node, *models.ConversationState, error) {
	config, ok := node.Spec().(models.HTTPConfig)
	if !ok {
		return nil, state, fmt.Errorf("node %s has no decoded http config", node.ID)
	}

	result := e.sandbox.Execute(ctx, config, templateContext(event, state))

	handle := graph.HandleError
	if result.Success {
		handle = graph.HandleSuccess

		if len(result.MappedVariables) > 0 {
			state = state.WithContext(result.MappedVariables)
		}
	} else {
		logger.Info("http request node failed, following error handle",
			"node_id", node.ID, "status", result.Status, "error", result.Error)
	}

	state = state.WithNode(node.ID, e.clock.Now())
	if err := e.store.SaveConversationState(ctx, state); err != nil {
		return nil, state, fmt.Errorf("failed to save conversation state at node %s: %w", node.ID, err)
	}

	edge := workflow.EdgeFrom(node.ID, handle)
	if edge == nil {
		logger.Debug("http request node has no outgoing edge for handle, halting",
			"node_id", node.ID, "handle", handle)

		return nil, state, nil
	}

	return workflow.NodeByID(edge.Target), state, nil
}

// finishTraversal writes the single execution log for this invocation and the matching
// lifecycle event.
func (e *Engine) finishTraversal(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	event *models.InboundEvent,
	entry *models.ExecutionLog,
	started time.Time,
	traversalErr error,
) *Outcome {
	outcome := &Outcome{Class: OutcomeCompleted, Logs: []*models.ExecutionLog{entry}}

	switch {
	case traversalErr != nil:
		entry.Status = models.ExecutionStatusError
		entry.ErrorMessage = normalizeErrorValue(traversalErr)
		outcome.Class = OutcomeFailed
		outcome.Reason = entry.ErrorMessage

		logger.Error("execution failed", "error", traversalErr)
		otelhelper.SetError(trace.SpanFromContext(ctx), traversalErr,
			attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
			attribute.String(otelhelper.ContactIDKey, event.ContactID),
		)
		e.publish(ctx, events.ExecutionFailed{
			BaseEvent: e.baseEvent(events.ExecutionFailedEvent, workflow.ID, event.ContactID),
			Error:     entry.ErrorMessage,
		})
	case len(entry.ResponsesSent) == 0:
		// Zero sends with no error usually means the resolved branch dead-ends, for
		// example an httpRequest error path with no edge attached.
		entry.Status = models.ExecutionStatusSuccess
		entry.ErrorMessage = "no messages sent; the resolved branch produced no dispatchable node"
		outcome.Reason = entry.ErrorMessage

		e.publish(ctx, events.ExecutionCompleted{
			BaseEvent: e.baseEvent(events.ExecutionCompletedEvent, workflow.ID, event.ContactID),
			Duration:  e.clock.Now().Sub(started),
		})
	default:
		entry.Status = models.ExecutionStatusSuccess

		e.publish(ctx, events.ExecutionCompleted{
			BaseEvent:    e.baseEvent(events.ExecutionCompletedEvent, workflow.ID, event.ContactID),
			MessagesSent: len(entry.ResponsesSent),
			Duration:     e.clock.Now().Sub(started),
		})
	}

	e.appendLog(ctx, logger, entry)

	return outcome
}

// fanOutDailyTrigger dispatches the entry node of every active workflow of the tenant.
// Failures are isolated per workflow: one bad workflow never blocks the others, and
// each attempt gets its own execution log.
func (e *Engine) fanOutDailyTrigger(
	ctx context.Context,
	logger *slog.Logger,
	invoked *models.Workflow,
	event *models.InboundEvent,
	creds dispatch.Credentials,
	localDate string,
) (*Outcome, error) {
	workflows, err := e.store.ActiveWorkflowsByTenant(ctx, invoked.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active workflows for tenant %s: %w", invoked.TenantID, err)
	}

	outcome := &Outcome{Class: OutcomeCompleted}

	fired := 0

	for _, workflow := range workflows {
		if workflow.EntryNodeID == "" {
			continue
		}

		if err := workflow.Decode(); err != nil {
			logger.Error("skipping workflow with invalid definition", "workflow_id", workflow.ID, "error", err)

			continue
		}

		entryNode := workflow.NodeByID(workflow.EntryNodeID)
		if entryNode == nil {
			logger.Error("entry node not found", "workflow_id", workflow.ID, "entry_node_id", workflow.EntryNodeID)

			continue
		}

		entry := e.newLog(workflow.ID, event)
		wfLogger := logger.With("workflow_id", workflow.ID)

		wfOutcome, err := e.runTraversal(ctx, wfLogger, workflow, entryNode, event, creds, entry)
		if err != nil {
			// Infrastructure failure inside one workflow's traversal still must not
			// starve the remaining workflows of their daily message.
			wfLogger.Error("daily trigger dispatch failed", "error", err)

			entry.Status = models.ExecutionStatusError
			entry.ErrorMessage = normalizeErrorValue(err)
			e.appendLog(ctx, wfLogger, entry)
			outcome.Logs = append(outcome.Logs, entry)
			outcome.Class = OutcomeFailed

			continue
		}

		outcome.Logs = append(outcome.Logs, wfOutcome.Logs...)
		if wfOutcome.Class == OutcomeFailed {
			outcome.Class = OutcomeFailed
			outcome.Reason = wfOutcome.Reason
		}

		fired++
	}

	e.publish(ctx, events.DailyTriggerFired{
		BaseEvent:     e.baseEvent(events.DailyTriggerFiredEvent, invoked.ID, event.ContactID),
		LocalDate:     localDate,
		WorkflowCount: fired,
	})

	return outcome, nil
}

// loadState fetches the contact's conversation state, creating a fresh one on first
// contact. The date stamp follows the workflow's timezone.
func (e *Engine) loadState(ctx context.Context, workflow *models.Workflow, event *models.InboundEvent) (*models.ConversationState, error) {
	state, err := e.store.ConversationState(ctx, workflow.ID, event.ContactID)
	if errors.Is(err, persistence.ErrConversationStateNotFound) {
		now := e.clock.Now()

		return &models.ConversationState{
			WorkflowID:      workflow.ID,
			ContactID:       event.ContactID,
			Context:         map[string]any{},
			LastMessageAt:   now,
			LastMessageDate: now.In(workflow.Location()).Format(time.DateOnly),
		}, nil
	}

	if err != nil {
		return nil, err
	}

	if state.Context == nil {
		state.Context = map[string]any{}
	}

	return state, nil
}
