package models

import "strings"

// InboundEvent is the raw webhook payload parsed into the shape the engine classifies.
// The thin HTTP handler fills it; the engine never touches the wire format directly.
type InboundEvent struct {
	ContactID       string         `json:"contact_id"`
	PushName        string         `json:"push_name,omitempty"`
	FromMe          bool           `json:"from_me"`    // synthetic echo of an outbound message
	GroupChat       bool           `json:"group_chat"` // workflows operate on 1:1 chats only
	Text            string         `json:"text,omitempty"`
	ButtonReplyID   string         `json:"button_reply_id,omitempty"`
	ButtonTitle     string         `json:"button_title,omitempty"`
	ListReplyID     string         `json:"list_reply_id,omitempty"`
	QuotedMessageID string         `json:"quoted_message_id,omitempty"` // provider id of the message being replied to
	Payload         map[string]any `json:"payload,omitempty"`
}

// Event type labels recorded on execution logs.
const (
	EventTypeText        = "text"
	EventTypeButtonReply = "buttonReply"
	EventTypeListReply   = "listReply"
)

// Selection returns the raw interactive selection id carried by the event, preferring
// button replies over list replies, and whether one is present.
func (e *InboundEvent) Selection() (string, bool) {
	if e.ButtonReplyID != "" {
		return e.ButtonReplyID, true
	}

	if e.ListReplyID != "" {
		return e.ListReplyID, true
	}

	return "", false
}

// SelectionSignal returns the selection id with any namespace prefix stripped: builders
// may prefix ids ("wf-7:btnA"), the graph only knows the bare id after the last colon.
func (e *InboundEvent) SelectionSignal() (string, bool) {
	raw, ok := e.Selection()
	if !ok {
		return "", false
	}

	if idx := strings.LastIndex(raw, ":"); idx >= 0 {
		raw = raw[idx+1:]
	}

	return raw, raw != ""
}

// EventType labels the event for execution logs.
func (e *InboundEvent) EventType() string {
	switch {
	case e.ButtonReplyID != "":
		return EventTypeButtonReply
	case e.ListReplyID != "":
		return EventTypeListReply
	default:
		return EventTypeText
	}
}

// HasContent reports whether the event carries anything a workflow can react to.
// Delivery receipts and system events carry neither text nor a selection.
func (e *InboundEvent) HasContent() bool {
	if strings.TrimSpace(e.Text) != "" {
		return true
	}

	_, ok := e.Selection()

	return ok
}
