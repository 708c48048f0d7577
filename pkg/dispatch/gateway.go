package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const gatewayTimeout = 15 * time.Second

// GatewayClient talks to the messaging gateway's HTTP API. One endpoint per message
// kind; instance credentials travel as headers on every call.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ DeliveryClient = (*GatewayClient)(nil)

func NewGatewayClient(baseURL string) *GatewayClient {
	return &GatewayClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: gatewayTimeout},
	}
}

func (g *GatewayClient) SendText(ctx context.Context, creds Credentials, payload TextPayload) (ProviderResponse, error) {
	return g.post(ctx, creds, "/message/text", payload)
}

func (g *GatewayClient) SendMedia(ctx context.Context, creds Credentials, payload MediaPayload) (ProviderResponse, error) {
	return g.post(ctx, creds, "/message/media", payload)
}

func (g *GatewayClient) SendLocation(ctx context.Context, creds Credentials, payload LocationPayload) (ProviderResponse, error) {
	return g.post(ctx, creds, "/message/location", payload)
}

func (g *GatewayClient) SendInteractive(ctx context.Context, creds Credentials, payload InteractivePayload) (ProviderResponse, error) {
	return g.post(ctx, creds, "/message/interactive", payload)
}

func (g *GatewayClient) SendCarousel(ctx context.Context, creds Credentials, payload CarouselPayload) (ProviderResponse, error) {
	return g.post(ctx, creds, "/message/carousel", payload)
}

func (g *GatewayClient) post(ctx context.Context, creds Credentials, path string, payload any) (ProviderResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gateway payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Instance-Id", creds.InstanceID)
	req.Header.Set("Authorization", "Bearer "+creds.Token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(raw))
	}

	var response ProviderResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &response); err != nil {
			return nil, fmt.Errorf("gateway response is not json: %w", err)
		}
	}

	return response, nil
}
