// Package dispatch builds provider payloads from node configs and sends them through
// the external delivery client, recording provider message ids for ownership tracking.
package dispatch

import "context"

// Credentials identifies the tenant's messaging channel at the delivery gateway.
// Shape is opaque to the engine; it is threaded through untouched.
type Credentials struct {
	InstanceID string `json:"instance_id"`
	Token      string `json:"token"`
}

// ProviderResponse is the raw delivery-gateway response. Gateways disagree on where
// the message id lives, so it stays a loose map probed by MessageID.
type ProviderResponse map[string]any

// MessageID probes the known response shapes for the provider message id. Returns ""
// when no shape matches; callers treat that as "no ownership record possible".
func (r ProviderResponse) MessageID() string {
	if r == nil {
		return ""
	}

	// Shape 1: {"key": {"id": "..."}}
	if key, ok := r["key"].(map[string]any); ok {
		if id, ok := key["id"].(string); ok && id != "" {
			return id
		}
	}

	// Shape 2: {"messageId": "..."} / {"message_id": "..."}
	for _, field := range []string{"messageId", "message_id", "id"} {
		if id, ok := r[field].(string); ok && id != "" {
			return id
		}
	}

	// Shape 3: {"message": {"id": "..."}}
	if message, ok := r["message"].(map[string]any); ok {
		if id, ok := message["id"].(string); ok && id != "" {
			return id
		}
	}

	return ""
}

type TextPayload struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type MediaPayload struct {
	To        string `json:"to"`
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
	Caption   string `json:"caption,omitempty"`
}

type LocationPayload struct {
	To        string  `json:"to"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// ProviderButton is one button in an interactive payload. Type decides which value
// field is populated.
type ProviderButton struct {
	Type     string `json:"type"` // quick_reply, call, url, copy
	ID       string `json:"id"`
	Title    string `json:"title"`
	Phone    string `json:"phone,omitempty"`
	URL      string `json:"url,omitempty"`
	CopyCode string `json:"copy_code,omitempty"`
}

type ProviderRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type ProviderSection struct {
	Title string        `json:"title,omitempty"`
	Rows  []ProviderRow `json:"rows"`
}

// InteractivePayload covers quick-reply, button and list messages.
type InteractivePayload struct {
	To         string            `json:"to"`
	Header     string            `json:"header,omitempty"`
	Body       string            `json:"body"`
	Footer     string            `json:"footer,omitempty"`
	MediaURL   string            `json:"media_url,omitempty"`
	Buttons    []ProviderButton  `json:"buttons,omitempty"`
	ButtonText string            `json:"button_text,omitempty"`
	Sections   []ProviderSection `json:"sections,omitempty"`
}

type ProviderCard struct {
	ID        string           `json:"id,omitempty"`
	MediaURL  string           `json:"media_url,omitempty"`
	MediaType string           `json:"media_type,omitempty"`
	Text      string           `json:"text,omitempty"`
	Buttons   []ProviderButton `json:"buttons,omitempty"`
}

type CarouselPayload struct {
	To    string         `json:"to"`
	Body  string         `json:"body,omitempty"`
	Cards []ProviderCard `json:"cards"`
}

// DeliveryClient is the low-level gateway client, provided by a collaborator. Retry
// and backoff policy belongs to the client, never to the engine.
type DeliveryClient interface {
	SendText(ctx context.Context, creds Credentials, payload TextPayload) (ProviderResponse, error)
	SendMedia(ctx context.Context, creds Credentials, payload MediaPayload) (ProviderResponse, error)
	SendLocation(ctx context.Context, creds Credentials, payload LocationPayload) (ProviderResponse, error)
	SendInteractive(ctx context.Context, creds Credentials, payload InteractivePayload) (ProviderResponse, error)
	SendCarousel(ctx context.Context, creds Credentials, payload CarouselPayload) (ProviderResponse, error)
}
