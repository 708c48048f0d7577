// Package web exposes the webhook endpoint that feeds inbound gateway events into the
// execution engine.
package web

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/omnipro-bh/omniflow/pkg/dispatch"
	"github.com/omnipro-bh/omniflow/pkg/engine"
	"github.com/omnipro-bh/omniflow/pkg/models"
	"github.com/omnipro-bh/omniflow/pkg/persistence"
)

// EventHandler is the engine surface the webhook needs.
type EventHandler interface {
	HandleInboundEvent(
		ctx context.Context,
		workflowID string,
		event *models.InboundEvent,
		creds dispatch.Credentials,
	) (*engine.Outcome, error)
}

type WebhookHandlers struct {
	handler   EventHandler
	store     persistence.Persistence
	validator *validator.Validate
	logger    *slog.Logger
}

func NewWebhookHandlers(
	handler EventHandler,
	store persistence.Persistence,
	validate *validator.Validate,
	logger *slog.Logger,
) *WebhookHandlers {
	return &WebhookHandlers{
		handler:   handler,
		store:     store,
		validator: validate,
		logger:    logger.With("module", "web"),
	}
}

// HandleWebhook processes POST /webhook/:workflowId. The gateway retries on non-2xx,
// so only malformed payloads and infrastructure failures return errors; every
// classified outcome, including ignores, answers 200.
func (h *WebhookHandlers) HandleWebhook(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	if workflowID == "" {
		return badRequest(c, "workflow id is required")
	}

	var req WebhookRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid webhook payload: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, "invalid webhook payload: "+err.Error())
	}

	creds := dispatch.Credentials{
		InstanceID: req.InstanceID,
		Token:      req.Token,
	}

	outcome, err := h.handler.HandleInboundEvent(c.Context(), workflowID, req.ToInboundEvent(), creds)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return notFound(c, "workflow not found")
		}

		h.logger.Error("webhook processing failed", "workflow_id", workflowID, "error", err)

		return internalError(c, err)
	}

	return c.JSON(WebhookResponse{
		Outcome: string(outcome.Class),
		Reason:  outcome.Reason,
		Logs:    len(outcome.Logs),
	})
}

// HealthCheck reports persistence connectivity.
func (h *WebhookHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.store.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
