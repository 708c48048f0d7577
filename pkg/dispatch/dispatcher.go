package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/omnipro-bh/omniflow/pkg/models"
	"github.com/omnipro-bh/omniflow/pkg/persistence"
	"github.com/omnipro-bh/omniflow/pkg/template"
)

// DefaultRecordTTL bounds how long a sent-message ownership record stays resolvable.
// Button clicks arrive promptly or not at all.
const DefaultRecordTTL = 24 * time.Hour

// Dispatcher maps each node type to exactly one delivery-client call shape.
type Dispatcher struct {
	logger    *slog.Logger
	client    DeliveryClient
	sentStore persistence.SentMessageStore
	clock     clockwork.Clock
	recordTTL time.Duration
}

func NewDispatcher(logger *slog.Logger, client DeliveryClient, sentStore persistence.SentMessageStore) *Dispatcher {
	return &Dispatcher{
		logger:    logger.With("module", "dispatcher"),
		client:    client,
		sentStore: sentStore,
		clock:     clockwork.NewRealClock(),
		recordTTL: DefaultRecordTTL,
	}
}

// WithClock swaps the clock, used by tests to pin record expiry.
func (d *Dispatcher) WithClock(clock clockwork.Clock) *Dispatcher {
	d.clock = clock

	return d
}

// Send dispatches one node to a contact. Template placeholders in the node config are
// resolved against tmplCtx. For interactive and carousel nodes the provider message id
// is persisted as a SentMessageRecord when resolvable; a missing id is logged and
// degrades later ownership checks to "no record found", never fails the send.
func (d *Dispatcher) Send(
	ctx context.Context,
	workflow *models.Workflow,
	node *models.Node,
	contactID string,
	creds Credentials,
	tmplCtx map[string]any,
) (ProviderResponse, error) {
	logger := d.logger.With("workflow_id", workflow.ID, "node_id", node.ID, "node_type", node.Type)

	var (
		response ProviderResponse
		err      error
	)

	switch spec := node.Spec().(type) {
	case models.TextConfig:
		response, err = d.client.SendText(ctx, creds, TextPayload{
			To:   contactID,
			Body: template.Resolve(spec.Body, tmplCtx),
		})
	case models.MediaConfig:
		response, err = d.client.SendMedia(ctx, creds, MediaPayload{
			To:        contactID,
			MediaURL:  template.Resolve(spec.MediaURL, tmplCtx),
			MediaType: spec.MediaType,
			Caption:   template.Resolve(spec.Caption, tmplCtx),
		})
	case models.LocationConfig:
		response, err = d.client.SendLocation(ctx, creds, LocationPayload{
			To:        contactID,
			Latitude:  spec.Latitude,
			Longitude: spec.Longitude,
			Name:      spec.Name,
			Address:   spec.Address,
		})
	case models.InteractiveConfig:
		response, err = d.client.SendInteractive(ctx, creds, d.buildInteractive(spec, contactID, tmplCtx))
	case models.ListConfig:
		response, err = d.client.SendInteractive(ctx, creds, d.buildList(spec, contactID, tmplCtx))
	case models.CarouselConfig:
		response, err = d.client.SendCarousel(ctx, creds, d.buildCarousel(spec, contactID, tmplCtx))
	case models.HTTPConfig:
		return nil, fmt.Errorf("node %s is not a message node", node.ID)
	default:
		return nil, fmt.Errorf("node %s has no decoded config", node.ID)
	}

	if err != nil {
		return nil, fmt.Errorf("delivery failed for node %s: %w", node.ID, err)
	}

	if node.IsInteractive() {
		d.recordSentMessage(ctx, logger, workflow.ID, contactID, node.Type, response)
	}

	return response, nil
}

func (d *Dispatcher) buildInteractive(spec models.InteractiveConfig, contactID string, tmplCtx map[string]any) InteractivePayload {
	return InteractivePayload{
		To:       contactID,
		Header:   template.Resolve(spec.Header, tmplCtx),
		Body:     template.Resolve(spec.Body, tmplCtx),
		Footer:   template.Resolve(spec.Footer, tmplCtx),
		MediaURL: spec.MediaURL,
		Buttons:  buildButtons(spec.Buttons),
	}
}

func (d *Dispatcher) buildList(spec models.ListConfig, contactID string, tmplCtx map[string]any) InteractivePayload {
	sections := make([]ProviderSection, 0, len(spec.Sections))

	for _, section := range spec.Sections {
		rows := make([]ProviderRow, 0, len(section.Rows))

		for _, row := range section.Rows {
			if row.ID == "" || row.Title == "" {
				continue
			}

			rows = append(rows, ProviderRow{
				ID:          row.ID,
				Title:       row.Title,
				Description: row.Description,
			})
		}

		// Empty sections are dropped, not an error.
		if len(rows) == 0 {
			continue
		}

		sections = append(sections, ProviderSection{Title: section.Title, Rows: rows})
	}

	buttonText := spec.ButtonText
	if buttonText == "" {
		buttonText = "Options"
	}

	return InteractivePayload{
		To:         contactID,
		Header:     template.Resolve(spec.Header, tmplCtx),
		Body:       template.Resolve(spec.Body, tmplCtx),
		Footer:     template.Resolve(spec.Footer, tmplCtx),
		ButtonText: buttonText,
		Sections:   sections,
	}
}

func (d *Dispatcher) buildCarousel(spec models.CarouselConfig, contactID string, tmplCtx map[string]any) CarouselPayload {
	cards := make([]ProviderCard, 0, len(spec.Cards))

	for _, card := range spec.Cards {
		buttons := make([]ProviderButton, 0, len(card.Buttons))

		for _, button := range card.Buttons {
			if button.ID == "" || button.Title == "" {
				continue
			}

			kind := button.EffectiveKind()

			// Carousel cards support quick-reply and url buttons only.
			switch kind {
			case models.ButtonKindQuickReply:
				buttons = append(buttons, ProviderButton{
					Type:  string(kind),
					ID:    button.ID,
					Title: button.Title,
				})
			case models.ButtonKindURL:
				if button.URL == "" {
					continue
				}

				buttons = append(buttons, ProviderButton{
					Type:  string(kind),
					ID:    button.ID,
					Title: button.Title,
					URL:   button.URL,
				})
			case models.ButtonKindCall, models.ButtonKindCopy:
				continue
			}
		}

		cards = append(cards, ProviderCard{
			ID:        card.ID,
			MediaURL:  card.MediaURL,
			MediaType: card.MediaType,
			Text:      template.Resolve(card.Text, tmplCtx),
			Buttons:   buttons,
		})
	}

	return CarouselPayload{
		To:    contactID,
		Body:  template.Resolve(spec.Body, tmplCtx),
		Cards: cards,
	}
}

// buildButtons filters to entries carrying both a title and an id, then maps the
// button kind to its provider type with the kind's required value field.
func buildButtons(buttons []models.Button) []ProviderButton {
	built := make([]ProviderButton, 0, len(buttons))

	for _, button := range buttons {
		if button.ID == "" || button.Title == "" {
			continue
		}

		provider := ProviderButton{
			Type:  string(button.EffectiveKind()),
			ID:    button.ID,
			Title: button.Title,
		}

		switch button.EffectiveKind() {
		case models.ButtonKindQuickReply:
		case models.ButtonKindCall:
			if button.Phone == "" {
				continue
			}

			provider.Phone = button.Phone
		case models.ButtonKindURL:
			if button.URL == "" {
				continue
			}

			provider.URL = button.URL
		case models.ButtonKindCopy:
			if button.CopyCode == "" {
				continue
			}

			provider.CopyCode = button.CopyCode
		}

		built = append(built, provider)
	}

	return built
}

func (d *Dispatcher) recordSentMessage(
	ctx context.Context,
	logger *slog.Logger,
	workflowID, contactID string,
	nodeType models.NodeType,
	response ProviderResponse,
) {
	messageID := response.MessageID()
	if messageID == "" {
		logger.Warn("provider response carries no resolvable message id; ownership checks will degrade")

		return
	}

	record := &models.SentMessageRecord{
		WorkflowID:        workflowID,
		ProviderMessageID: messageID,
		ContactID:         contactID,
		NodeType:          nodeType,
		ExpiresAt:         d.clock.Now().Add(d.recordTTL),
	}

	if err := d.sentStore.SaveSentMessage(ctx, record); err != nil {
		logger.Error("failed to persist sent message record", "error", err, "provider_message_id", messageID)
	}
}
