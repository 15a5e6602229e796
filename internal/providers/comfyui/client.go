package comfyui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediagen/internal/infra"
	"mediagen/internal/metrics"
	"mediagen/internal/storage"
)

const (
	defaultBaseURL      = "http://127.0.0.1:8188"
	defaultTimeout      = 120 * time.Second
	defaultPollInterval = time.Second
	livenessTimeout     = 5 * time.Second
	maxErrorBody        = 200
)

// Options configures the ComfyUI client.
type Options struct {
	BaseURL string
	// Timeout bounds both individual requests and the whole polling loop.
	Timeout      time.Duration
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       *infra.Logger
}

// Client submits workflows to a ComfyUI-compatible queue and polls them to
// completion. It is safe for concurrent use.
type Client struct {
	baseURL      string
	timeout      time.Duration
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *infra.Logger
}

type submitRequest struct {
	Prompt   Workflow `json:"prompt"`
	ClientID string   `json:"client_id"`
}

type submitResponse struct {
	PromptID string `json:"prompt_id"`
}

type checkpointInfo map[string]struct {
	Input struct {
		Required struct {
			CkptName []json.RawMessage `json:"ckpt_name"`
		} `json:"required"`
	} `json:"input"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		baseURL:      baseURL,
		timeout:      timeout,
		pollInterval: interval,
		httpClient:   httpClient,
		logger:       logger,
	}
}

// BaseURL returns the backend root URL.
func (c *Client) BaseURL() string { return c.baseURL }

// MaxAttempts is the number of history polls made before giving up.
func (c *Client) MaxAttempts() int {
	n := int(c.timeout / c.pollInterval)
	if n < 1 {
		return 1
	}
	return n
}

// IsAvailable probes GET /system_stats with a fixed short timeout.
func (c *Client) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, livenessTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("url", c.baseURL).Msg("comfyui: liveness probe failed")
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Checkpoints lists the model checkpoints known to the backend. Failures are
// logged and yield an empty list.
func (c *Client) Checkpoints(ctx context.Context) []string {
	raw, status, err := c.get(ctx, "/object_info/CheckpointLoaderSimple")
	if err != nil || status != http.StatusOK {
		c.logger.Warn().Err(err).Int("status", status).Msg("comfyui: could not list checkpoints")
		return nil
	}
	var info checkpointInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		c.logger.Warn().Err(err).Msg("comfyui: decode checkpoint info")
		return nil
	}
	node, ok := info["CheckpointLoaderSimple"]
	if !ok || len(node.Input.Required.CkptName) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal(node.Input.Required.CkptName[0], &names); err != nil {
		c.logger.Warn().Err(err).Msg("comfyui: decode checkpoint names")
		return nil
	}
	return names
}

// Submit enqueues a workflow after a liveness check and returns its handle.
func (c *Client) Submit(ctx context.Context, wf Workflow) (JobHandle, error) {
	if !c.IsAvailable(ctx) {
		metrics.BackendJobsSubmittedTotal.WithLabelValues("unavailable").Inc()
		return "", fmt.Errorf("%w at %s", ErrBackendUnavailable, c.baseURL)
	}
	body, err := json.Marshal(submitRequest{Prompt: wf, ClientID: uuid.NewString()})
	if err != nil {
		return "", fmt.Errorf("comfyui: encode workflow: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("comfyui: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.BackendJobsSubmittedTotal.WithLabelValues("transport_error").Inc()
		return "", &TransportError{Op: "submit workflow", Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: "read submit response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.BackendJobsSubmittedTotal.WithLabelValues("rejected").Inc()
		return "", &SubmissionRejectedError{StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(raw)), maxErrorBody)}
	}
	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("comfyui: decode submit response: %w", err)
	}
	if decoded.PromptID == "" {
		return "", errors.New("comfyui: submit response has no prompt_id")
	}
	metrics.BackendJobsSubmittedTotal.WithLabelValues("accepted").Inc()
	c.logger.Info().Str("job_id", decoded.PromptID).Msg("comfyui: workflow submitted")
	return JobHandle(decoded.PromptID), nil
}

// AwaitCompletion polls the job history until it reaches a terminal state.
// Every attempt waits one poll interval first. A failed job is returned as an
// Outcome; errors are reserved for protocol failures, cancellation and
// timeout.
func (c *Client) AwaitCompletion(ctx context.Context, handle JobHandle) (Outcome, error) {
	attempts := c.MaxAttempts()
	start := time.Now()
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-timer.C:
		}

		outcome, err := c.poll(ctx, handle)
		if err != nil {
			return Outcome{}, err
		}
		if outcome.Kind != OutcomePending {
			metrics.BackendJobOutcomesTotal.WithLabelValues(outcome.Kind.String()).Inc()
			metrics.BackendPollAttempts.Observe(float64(attempt))
			c.logger.Info().
				Str("job_id", string(handle)).
				Int("attempt", attempt).
				Str("outcome", outcome.Kind.String()).
				Msg("comfyui: job finished")
			return outcome, nil
		}
		c.logger.Debug().Str("job_id", string(handle)).Int("attempt", attempt).Msg("comfyui: job pending")
		timer.Reset(c.pollInterval)
	}

	metrics.BackendJobOutcomesTotal.WithLabelValues("timeout").Inc()
	return Outcome{}, &TimeoutError{Handle: handle, Attempts: attempts, Elapsed: time.Since(start)}
}

func (c *Client) poll(ctx context.Context, handle JobHandle) (Outcome, error) {
	raw, status, err := c.get(ctx, "/history/"+url.PathEscape(string(handle)))
	if err != nil {
		return Outcome{}, &TransportError{Op: "poll history", Err: err}
	}
	if status < 200 || status >= 300 {
		return Outcome{}, &HistoryError{Handle: handle, StatusCode: status}
	}
	var payload map[string]historyEntry
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Outcome{}, fmt.Errorf("comfyui: decode history: %w", err)
	}
	return outcomeFromHistory(payload, handle), nil
}

// Generate submits wf and waits for its artifacts.
func (c *Client) Generate(ctx context.Context, wf Workflow) ([]ArtifactRef, error) {
	handle, err := c.Submit(ctx, wf)
	if err != nil {
		return nil, err
	}
	outcome, err := c.AwaitCompletion(ctx, handle)
	if err != nil {
		return nil, err
	}
	if outcome.Kind == OutcomeFailed {
		return nil, &JobFailedError{Handle: handle, Reason: outcome.Reason}
	}
	return outcome.Artifacts, nil
}

// Download fetches an artifact into store and returns its absolute path.
func (c *Client) Download(ctx context.Context, ref ArtifactRef, store *storage.FileStore) (string, error) {
	if store == nil {
		return "", errors.New("comfyui: download requires a store")
	}
	kind := ref.Type
	if kind == "" {
		kind = "output"
	}
	q := url.Values{}
	q.Set("filename", ref.Filename)
	q.Set("subfolder", ref.Subfolder)
	q.Set("type", kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/view?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("comfyui: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Op: "download " + ref.Filename, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &DownloadError{Filename: ref.Filename, StatusCode: resp.StatusCode}
	}
	localPath, err := store.WriteFrom(ctx, path.Base(ref.Filename), resp.Body)
	if err != nil {
		return "", fmt.Errorf("comfyui: save %s: %w", ref.Filename, err)
	}
	c.logger.Debug().Str("filename", ref.Filename).Str("path", localPath).Msg("comfyui: artifact downloaded")
	return localPath, nil
}

func (c *Client) get(ctx context.Context, p string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+p, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
