package web

import "github.com/omnipro-bh/omniflow/pkg/models"

// WebhookRequest is the wire format delivered by the messaging gateway. Only the
// message envelope is validated here; everything behavioral happens in the engine.
type WebhookRequest struct {
	InstanceID string         `json:"instance_id" validate:"required"`
	Token      string         `json:"token"       validate:"required"`
	Message    WebhookMessage `json:"message"     validate:"required"`
}

type WebhookMessage struct {
	From            string       `json:"from" validate:"required"`
	PushName        string       `json:"push_name"`
	FromMe          bool         `json:"from_me"`
	IsGroup         bool         `json:"is_group"`
	Text            string       `json:"text"`
	ButtonReply     *ReplyDetail `json:"button_reply"`
	ListReply       *ReplyDetail `json:"list_reply"`
	QuotedMessageID string       `json:"quoted_message_id"`
}

type ReplyDetail struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ToInboundEvent maps the wire payload onto the engine's event model. The raw message
// travels along as the trigger payload for audit logs.
func (r *WebhookRequest) ToInboundEvent() *models.InboundEvent {
	event := &models.InboundEvent{
		ContactID: r.Message.From,
		PushName:  r.Message.PushName,
		FromMe:    r.Message.FromMe,
		GroupChat: r.Message.IsGroup,
		Text:      r.Message.Text,

		QuotedMessageID: r.Message.QuotedMessageID,
		Payload: map[string]any{
			"from":      r.Message.From,
			"push_name": r.Message.PushName,
			"text":      r.Message.Text,
		},
	}

	if r.Message.ButtonReply != nil {
		event.ButtonReplyID = r.Message.ButtonReply.ID
		event.ButtonTitle = r.Message.ButtonReply.Title
		event.Payload["button_reply_id"] = r.Message.ButtonReply.ID
	}

	if r.Message.ListReply != nil {
		event.ListReplyID = r.Message.ListReply.ID
		event.Payload["list_reply_id"] = r.Message.ListReply.ID
	}

	return event
}

// WebhookResponse reports what the engine did with the event. The gateway only needs
// the 200; the body exists for operators replaying deliveries by hand.
type WebhookResponse struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
	Logs    int    `json:"logs"`
}
