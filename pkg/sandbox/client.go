// Package sandbox performs outbound HTTP calls for httpRequest nodes under strict
// safety constraints: allowlisted HTTPS hosts only, no redirects, bounded response
// size, bounded duration. Failures never escape as errors; every outcome is a Result
// so a misconfigured node degrades through its error handle.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/omnipro-bh/omniflow/pkg/models"
	"github.com/omnipro-bh/omniflow/pkg/template"
)

const (
	// MaxResponseBytes caps response bodies at 5 MiB, checked against Content-Length
	// before reading and against actual bytes read after.
	MaxResponseBytes = 5 * 1024 * 1024

	// DefaultTimeout bounds a single request when the node sets none.
	DefaultTimeout = 10 * time.Second
)

// DomainSource supplies the administrator-controlled allowlist. An empty list disables
// outbound HTTP entirely (fail closed).
type DomainSource interface {
	AllowedDomains(ctx context.Context) ([]string, error)
}

// Result is the outcome of one sandboxed request. Success is true iff the HTTP status
// was in [200,300); every other path carries a human-readable Error.
type Result struct {
	Success         bool           `json:"success"`
	Status          int            `json:"status,omitempty"`
	Data            any            `json:"data,omitempty"`
	MappedVariables map[string]any `json:"mapped_variables,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// Client executes sandboxed requests. One blocking call per invocation, no retries.
type Client struct {
	logger  *slog.Logger
	domains DomainSource
	// transport is swappable for tests; redirect policy is always enforced here.
	transport http.RoundTripper
}

func NewClient(logger *slog.Logger, domains DomainSource) *Client {
	return &Client{
		logger:    logger.With("module", "sandbox"),
		domains:   domains,
		transport: http.DefaultTransport,
	}
}

// NewClientWithTransport is used by tests to point the client at an httptest server.
func NewClientWithTransport(logger *slog.Logger, domains DomainSource, transport http.RoundTripper) *Client {
	client := NewClient(logger, domains)
	client.transport = transport

	return client
}

// Execute performs the node's HTTP call with every config string template-resolved
// against tmplCtx. It never returns an error; validation, transport and timeout
// failures all land in Result.Error.
func (c *Client) Execute(ctx context.Context, config models.HTTPConfig, tmplCtx map[string]any) Result {
	rawURL := template.Resolve(config.URL, tmplCtx)

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return failure(fmt.Sprintf("invalid URL %q", rawURL))
	}

	if parsed.Scheme != "https" {
		return failure(fmt.Sprintf("only HTTPS URLs are allowed, got scheme %q", parsed.Scheme))
	}

	if result, ok := c.checkAllowlist(ctx, parsed.Hostname()); !ok {
		return result
	}

	method := strings.ToUpper(config.Method)
	if method == "" {
		method = http.MethodGet
	}

	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return failure(fmt.Sprintf("unsupported HTTP method %q", config.Method))
	}

	if len(config.QueryParams) > 0 {
		query := parsed.Query()
		for key, value := range template.ResolveMap(config.QueryParams, tmplCtx) {
			query.Set(key, value)
		}

		parsed.RawQuery = query.Encode()
	}

	body, contentType, bodyErr := c.buildBody(method, config, tmplCtx)
	if bodyErr != "" {
		return failure(bodyErr)
	}

	timeout := DefaultTimeout
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, parsed.String(), strings.NewReader(body))
	if err != nil {
		return failure(fmt.Sprintf("failed to build request: %v", err))
	}

	for key, value := range template.ResolveMap(config.Headers, tmplCtx) {
		req.Header.Set(key, value)
	}

	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	if result, ok := applyAuth(req, config.Auth, tmplCtx); !ok {
		return result
	}

	httpClient := &http.Client{
		Transport: c.transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			// Never follow; the 3xx itself is surfaced and rejected below.
			return http.ErrUseLastResponse
		},
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() != nil {
			return failure(fmt.Sprintf("request timed out after %s", timeout))
		}

		return failure(fmt.Sprintf("request failed: %v", err))
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return Result{Status: resp.StatusCode, Error: "redirects are not supported"}
	}

	if resp.ContentLength > MaxResponseBytes {
		return Result{
			Status: resp.StatusCode,
			Error:  fmt.Sprintf("response too large: %d bytes exceeds %d byte limit", resp.ContentLength, MaxResponseBytes),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() != nil {
			return failure(fmt.Sprintf("request timed out after %s", timeout))
		}

		return Result{Status: resp.StatusCode, Error: fmt.Sprintf("failed to read response: %v", err)}
	}

	if len(raw) > MaxResponseBytes {
		return Result{
			Status: resp.StatusCode,
			Error:  fmt.Sprintf("response too large: body exceeds %d byte limit", MaxResponseBytes),
		}
	}

	data := parseBody(resp.Header.Get("Content-Type"), raw)

	result := Result{
		Status: resp.StatusCode,
		Data:   data,
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))

		return result
	}

	result.Success = true
	result.MappedVariables = mapVariables(config.ResponseMapping, data)

	return result
}

func (c *Client) checkAllowlist(ctx context.Context, host string) (Result, bool) {
	domains, err := c.domains.AllowedDomains(ctx)
	if err != nil {
		return failure(fmt.Sprintf("failed to load domain allowlist: %v", err)), false
	}

	if len(domains) == 0 {
		return failure("no domains are allowlisted; outbound HTTP requests are disabled"), false
	}

	host = strings.ToLower(host)

	for _, domain := range domains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}

		if host == domain || strings.HasSuffix(host, "."+domain) {
			return Result{}, true
		}
	}

	return failure(fmt.Sprintf("domain %q is not in the allowlist", host)), false
}

func (c *Client) buildBody(method string, config models.HTTPConfig, tmplCtx map[string]any) (body, contentType, errMsg string) {
	if method == http.MethodGet {
		return "", "", ""
	}

	if config.BodyType == models.HTTPBodyForm || len(config.FormFields) > 0 {
		form := url.Values{}
		for key, value := range template.ResolveMap(config.FormFields, tmplCtx) {
			form.Set(key, value)
		}

		return form.Encode(), "application/x-www-form-urlencoded", ""
	}

	if config.Body == "" {
		return "", "", ""
	}

	resolved := template.Resolve(config.Body, tmplCtx)
	if !json.Valid([]byte(resolved)) {
		return "", "", "request body is not valid JSON"
	}

	return resolved, "application/json", ""
}

func applyAuth(req *http.Request, auth models.HTTPAuth, tmplCtx map[string]any) (Result, bool) {
	switch auth.Type {
	case models.HTTPAuthNone, "":
		return Result{}, true
	case models.HTTPAuthBearer:
		token := template.Resolve(auth.Token, tmplCtx)
		if token == "" {
			return failure("bearer auth configured without a token"), false
		}

		req.Header.Set("Authorization", "Bearer "+token)

		return Result{}, true
	case models.HTTPAuthBasic:
		username := template.Resolve(auth.Username, tmplCtx)
		password := template.Resolve(auth.Password, tmplCtx)
		req.SetBasicAuth(username, password)

		return Result{}, true
	}

	return failure(fmt.Sprintf("unsupported auth type %q", auth.Type)), false
}

func parseBody(contentType string, raw []byte) any {
	if strings.Contains(strings.ToLower(contentType), "json") {
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err == nil {
			return parsed
		}
	}

	return string(raw)
}

// mapVariables runs responseMapping entries against the parsed body. Unresolved paths
// are skipped, never fatal.
func mapVariables(mappings []models.ResponseMapping, data any) map[string]any {
	if len(mappings) == 0 {
		return nil
	}

	variables := make(map[string]any, len(mappings))

	for _, mapping := range mappings {
		if mapping.VariableName == "" || mapping.JSONPath == "" {
			continue
		}

		if value, ok := template.Lookup(mapping.JSONPath, data); ok {
			variables[mapping.VariableName] = value
		}
	}

	return variables
}

func failure(message string) Result {
	return Result{Error: message}
}
