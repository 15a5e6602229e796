package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mediagen/internal/infra"
	"mediagen/internal/metrics"
)

// APIKeyHeader carries the public API key.
const APIKeyHeader = "X-N8N-API-KEY"

const (
	defaultBaseURL        = "http://localhost:5678"
	defaultWebhookTimeout = 120 * time.Second
	defaultAPITimeout     = 30 * time.Second
)

var (
	// ErrMissingAPIKey indicates that an API call was attempted without credentials.
	ErrMissingAPIKey = errors.New("n8n: api key is required")
	// ErrUnauthorized is reported when the instance rejects the API key.
	ErrUnauthorized = errors.New("n8n: api key invalid or expired")
)

// APIError is a non-2xx response from the public API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("n8n: %s %s returned HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap maps 401 to ErrUnauthorized.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Options configures the n8n client.
type Options struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	WebhookTimeout time.Duration
	APITimeout     time.Duration
	Logger         *infra.Logger
}

// Client calls n8n webhooks and the workflow management API.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	webhookTimeout time.Duration
	apiTimeout     time.Duration
	logger         *infra.Logger
}

// WorkflowSummary is the listing view of a workflow.
type WorkflowSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// TriggerResult describes a webhook invocation. Response holds the decoded
// JSON body, or {"raw_text": ...} when the body is not JSON.
type TriggerResult struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code"`
	Validation string `json:"validation"`
	Response   any    `json:"response"`
	WebhookURL string `json:"webhook_url"`
}

// NewClient applies defaults.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	webhookTimeout := opts.WebhookTimeout
	if webhookTimeout <= 0 {
		webhookTimeout = defaultWebhookTimeout
	}
	apiTimeout := opts.APITimeout
	if apiTimeout <= 0 {
		apiTimeout = defaultAPITimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		baseURL:        baseURL,
		apiKey:         strings.TrimSpace(opts.APIKey),
		httpClient:     httpClient,
		webhookTimeout: webhookTimeout,
		apiTimeout:     apiTimeout,
		logger:         logger,
	}
}

// BaseURL returns the instance root without trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// HasCredentials reports whether management API calls can be made.
func (c *Client) HasCredentials() bool { return c.apiKey != "" }

// WebhookURL builds the production webhook URL for path. Paths already
// starting with webhook/ or webhook-test/ are kept as is. With full set, an
// absolute http(s) URL is used verbatim and anything else is appended to the
// base URL.
func (c *Client) WebhookURL(path string, full bool) string {
	path = strings.TrimSpace(path)
	if full {
		if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
			return path
		}
		return c.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	path = strings.TrimLeft(path, "/")
	if strings.HasPrefix(path, "webhook/") || strings.HasPrefix(path, "webhook-test/") {
		return c.baseURL + "/" + path
	}
	return c.baseURL + "/webhook/" + path
}

// TriggerWebhook POSTs {"prompt", "description"} to the webhook. Non-2xx
// responses are reported in the result; only transport failures return an
// error.
func (c *Client) TriggerWebhook(ctx context.Context, path, prompt string, full bool) (TriggerResult, error) {
	target := c.WebhookURL(path, full)
	body, err := json.Marshal(map[string]string{"prompt": prompt, "description": prompt})
	if err != nil {
		return TriggerResult{}, fmt.Errorf("n8n: encode webhook body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.webhookTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return TriggerResult{}, fmt.Errorf("n8n: build webhook request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.WebhookTriggersTotal.WithLabelValues("transport_error").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return TriggerResult{}, fmt.Errorf("n8n: webhook %s timed out: %w", target, err)
		}
		return TriggerResult{}, fmt.Errorf("n8n: could not reach %s (check N8N_MCP_BASE_URL and that n8n is running): %w", target, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.WebhookTriggersTotal.WithLabelValues("transport_error").Inc()
		return TriggerResult{}, fmt.Errorf("n8n: read webhook response: %w", err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	result := TriggerResult{
		Success:    ok,
		StatusCode: resp.StatusCode,
		Response:   decodeResponse(raw),
		WebhookURL: target,
	}
	result.Validation = validate(ok, resp.StatusCode, result.Response)
	if ok {
		metrics.WebhookTriggersTotal.WithLabelValues("success").Inc()
	} else {
		metrics.WebhookTriggersTotal.WithLabelValues("http_error").Inc()
	}
	c.logger.Info().
		Str("webhook_url", target).
		Int("status", resp.StatusCode).
		Msg("n8n: webhook triggered")
	return result, nil
}

func decodeResponse(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{"raw_text": truncate(string(raw), 500)}
	}
	return v
}

// validate explains whether the webhook produced generated media.
func validate(ok bool, status int, response any) string {
	if !ok {
		return fmt.Sprintf("HTTP %d response; check the webhook and the workflow.", status)
	}
	obj, isObj := response.(map[string]any)
	if !isObj {
		return "response OK but not a JSON object; check the workflow in n8n."
	}
	if _, has := obj["images"]; has {
		return "validated: n8n returned generated media or success."
	}
	if success, _ := obj["success"].(bool); success {
		return "validated: n8n returned generated media or success."
	}
	encoded, _ := json.Marshal(obj)
	lower := strings.ToLower(string(encoded))
	if strings.Contains(lower, "image_path") || strings.Contains(lower, "audio_path") {
		return "validated: n8n returned generated media or success."
	}
	return "response OK but without media or success field; check the workflow in n8n."
}

// ListWorkflows returns workflows, optionally only active ones. The API's
// {"data": [...]} envelope is unwrapped.
func (c *Client) ListWorkflows(ctx context.Context, activeOnly bool) ([]WorkflowSummary, error) {
	p := "/api/v1/workflows"
	if activeOnly {
		p += "?active=true"
	}
	raw, err := c.api(ctx, http.MethodGet, p, nil)
	if err != nil {
		return nil, err
	}
	return decodeSummaries(raw)
}

func decodeSummaries(raw []byte) ([]WorkflowSummary, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	trimmed := bytes.TrimSpace(raw)
	list := trimmed
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("n8n: response is not valid JSON: %w", err)
		}
		if len(envelope.Data) > 0 {
			list = envelope.Data
		}
	}
	list = bytes.TrimSpace(list)
	if len(list) > 0 && list[0] == '{' {
		var one WorkflowSummary
		if err := json.Unmarshal(list, &one); err != nil {
			return nil, fmt.Errorf("n8n: response is not valid JSON: %w", err)
		}
		return []WorkflowSummary{one}, nil
	}
	var out []WorkflowSummary
	if err := json.Unmarshal(list, &out); err != nil {
		return nil, fmt.Errorf("n8n: response is not valid JSON: %w", err)
	}
	if out == nil {
		out = []WorkflowSummary{}
	}
	return out, nil
}

// FindByName returns every workflow whose name matches exactly.
func (c *Client) FindByName(ctx context.Context, name string) ([]WorkflowSummary, error) {
	all, err := c.ListWorkflows(ctx, false)
	if err != nil {
		return nil, err
	}
	var out []WorkflowSummary
	for _, w := range all {
		if w.Name == name {
			out = append(out, w)
		}
	}
	return out, nil
}

// GetWorkflow fetches one workflow with its nodes.
func (c *Client) GetWorkflow(ctx context.Context, id string) (Workflow, error) {
	raw, err := c.api(ctx, http.MethodGet, "/api/v1/workflows/"+url.PathEscape(id), nil)
	if err != nil {
		return Workflow{}, err
	}
	var wf Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return Workflow{}, fmt.Errorf("n8n: decode workflow: %w", err)
	}
	return wf, nil
}

// CreateWorkflow stores wf and returns the id assigned by n8n.
func (c *Client) CreateWorkflow(ctx context.Context, wf Workflow) (string, error) {
	wf.ID = ""
	wf.Active = false
	raw, err := c.api(ctx, http.MethodPost, "/api/v1/workflows", wf)
	if err != nil {
		return "", err
	}
	var created struct {
		ID   string `json:"id"`
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", fmt.Errorf("n8n: decode created workflow: %w", err)
	}
	id := created.ID
	if id == "" {
		id = created.Data.ID
	}
	if id == "" {
		return "", fmt.Errorf("n8n: create response carried no id: %s", truncate(string(raw), 300))
	}
	return id, nil
}

// UpdateWorkflow replaces the editable fields of a workflow. The API rejects
// read-only fields, so only name, nodes, connections and settings are sent.
func (c *Client) UpdateWorkflow(ctx context.Context, id string, wf Workflow) error {
	settings := wf.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	body := map[string]any{
		"name":        wf.Name,
		"nodes":       wf.Nodes,
		"connections": wf.Connections,
		"settings":    settings,
	}
	_, err := c.api(ctx, http.MethodPut, "/api/v1/workflows/"+url.PathEscape(id), body)
	return err
}

// DeleteWorkflow removes a workflow.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	_, err := c.api(ctx, http.MethodDelete, "/api/v1/workflows/"+url.PathEscape(id), nil)
	return err
}

// ActivateWorkflow registers the workflow's webhooks.
func (c *Client) ActivateWorkflow(ctx context.Context, id string) error {
	_, err := c.api(ctx, http.MethodPost, "/api/v1/workflows/"+url.PathEscape(id)+"/activate", nil)
	return err
}

func (c *Client) api(ctx context.Context, method, p string, payload any) ([]byte, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("n8n: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	ctx, cancel := context.WithTimeout(ctx, c.apiTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+p, body)
	if err != nil {
		return nil, fmt.Errorf("n8n: build request: %w", err)
	}
	c.setHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("n8n: could not reach %s (check N8N_MCP_BASE_URL): %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("n8n: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Method: method, Path: p, StatusCode: resp.StatusCode, Body: truncate(string(raw), 300)}
	}
	c.logger.Debug().Str("method", method).Str("path", p).Int("status", resp.StatusCode).Msg("n8n: api call")
	return raw, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
