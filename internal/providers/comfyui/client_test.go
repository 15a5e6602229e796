package comfyui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mediagen/internal/storage"
)

// fakeBackend emulates the queue API. historyFn decides the body of the n-th
// history poll (1-based).
type fakeBackend struct {
	t          *testing.T
	available  bool
	submitCode int
	historyFn  func(n int) (int, any)
	polls      atomic.Int32
	mu         sync.Mutex
	submitted  []submitRequest
}

func newFakeBackend(t *testing.T) *fakeBackend {
	return &fakeBackend{t: t, available: true, submitCode: http.StatusOK}
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/system_stats":
		if !f.available {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"system":{}}`))
	case r.URL.Path == "/prompt" && r.Method == http.MethodPost:
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decode submit: %v", err)
		}
		f.mu.Lock()
		f.submitted = append(f.submitted, req)
		f.mu.Unlock()
		if f.submitCode != http.StatusOK {
			w.WriteHeader(f.submitCode)
			_, _ = w.Write([]byte(strings.Repeat("x", 500)))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"prompt_id": "job-1", "number": 1})
	case strings.HasPrefix(r.URL.Path, "/history/"):
		n := int(f.polls.Add(1))
		code, body := f.historyFn(n)
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	case r.URL.Path == "/view":
		if r.URL.Query().Get("type") != "output" {
			f.t.Errorf("view type = %q, want output", r.URL.Query().Get("type"))
		}
		if r.URL.Query().Get("filename") == "missing.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("PNGDATA:" + r.URL.Query().Get("filename")))
	case r.URL.Path == "/object_info/CheckpointLoaderSimple":
		_, _ = w.Write([]byte(`{"CheckpointLoaderSimple":{"input":{"required":{"ckpt_name":[["flux1-schnell-fp8.safetensors","sdxl.safetensors"],{"tooltip":"x"}]}}}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func succeededHistory(files ...string) map[string]any {
	images := make([]any, 0, len(files)+1)
	for _, f := range files {
		images = append(images, map[string]any{"filename": f, "subfolder": "", "type": "output"})
	}
	images = append(images, map[string]any{"filename": "preview.png", "subfolder": "", "type": "temp"})
	return map[string]any{
		"job-1": map[string]any{
			"status":  map[string]any{"status_str": "success", "completed": true},
			"outputs": map[string]any{"8": map[string]any{"images": images}},
		},
	}
}

func newTestClient(t *testing.T, backend http.Handler, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:      srv.URL,
		Timeout:      timeout,
		PollInterval: 5 * time.Millisecond,
	})
}

func TestAwaitCompletionPendingThenSuccess(t *testing.T) {
	const pending = 3
	backend := newFakeBackend(t)
	backend.historyFn = func(n int) (int, any) {
		if n <= pending {
			return http.StatusOK, map[string]any{}
		}
		return http.StatusOK, succeededHistory("flux_mcp_00001_.png")
	}
	client := newTestClient(t, backend, time.Second)

	refs, err := client.Generate(context.Background(), BuildFluxWorkflow(FluxParams{Prompt: "cat"}))
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if got := backend.polls.Load(); got != pending+1 {
		t.Fatalf("history polls = %d, want %d", got, pending+1)
	}
	if len(refs) != 1 || refs[0].Filename != "flux_mcp_00001_.png" {
		t.Fatalf("artifacts = %+v, want the single output image", refs)
	}
	if len(backend.submitted) != 1 || backend.submitted[0].ClientID == "" {
		t.Fatalf("expected one submission with a client id, got %+v", backend.submitted)
	}
}

func TestAwaitCompletionKeepsPollingWhenCompletedWithoutOutputs(t *testing.T) {
	backend := newFakeBackend(t)
	backend.historyFn = func(n int) (int, any) {
		if n == 1 {
			return http.StatusOK, map[string]any{
				"job-1": map[string]any{
					"status":  map[string]any{"status_str": "success", "completed": true},
					"outputs": map[string]any{},
				},
			}
		}
		return http.StatusOK, succeededHistory("flux_mcp_00002_.png")
	}
	client := newTestClient(t, backend, time.Second)

	outcome, err := client.AwaitCompletion(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("AwaitCompletion returned error: %v", err)
	}
	if outcome.Kind != OutcomeSucceeded || len(outcome.Artifacts) != 1 {
		t.Fatalf("outcome = %+v, want succeeded with one artifact", outcome)
	}
	if got := backend.polls.Load(); got != 2 {
		t.Fatalf("history polls = %d, want 2", got)
	}
}

func TestAwaitCompletionFailureOnFirstPoll(t *testing.T) {
	backend := newFakeBackend(t)
	backend.historyFn = func(n int) (int, any) {
		return http.StatusOK, map[string]any{
			"job-1": map[string]any{"status": map[string]any{"error": "CUDA out of memory"}},
		}
	}
	client := newTestClient(t, backend, time.Second)

	_, err := client.Generate(context.Background(), Workflow{})
	var failed *JobFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("error = %v, want JobFailedError", err)
	}
	if failed.Reason != "CUDA out of memory" {
		t.Fatalf("reason = %q", failed.Reason)
	}
	if got := backend.polls.Load(); got != 1 {
		t.Fatalf("history polls = %d, want 1", got)
	}
}

func TestAwaitCompletionExecutionErrorMessage(t *testing.T) {
	backend := newFakeBackend(t)
	backend.historyFn = func(n int) (int, any) {
		return http.StatusOK, map[string]any{
			"job-1": map[string]any{"status": map[string]any{
				"status_str": "error",
				"completed":  false,
				"messages": []any{
					[]any{"execution_start", map[string]any{"prompt_id": "job-1"}},
					[]any{"execution_error", map[string]any{"node_type": "KSampler", "exception_message": "bad latent"}},
				},
			}},
		}
	}
	client := newTestClient(t, backend, time.Second)

	outcome, err := client.AwaitCompletion(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("AwaitCompletion returned error: %v", err)
	}
	if outcome.Kind != OutcomeFailed || outcome.Reason != "KSampler: bad latent" {
		t.Fatalf("outcome = %+v", outcome)
	}
}

func TestAwaitCompletionTimeoutAttempts(t *testing.T) {
	backend := newFakeBackend(t)
	backend.historyFn = func(n int) (int, any) { return http.StatusOK, map[string]any{} }
	client := newTestClient(t, backend, 40*time.Millisecond)

	if client.MaxAttempts() != 8 {
		t.Fatalf("MaxAttempts = %d, want 8", client.MaxAttempts())
	}
	_, err := client.AwaitCompletion(context.Background(), "job-1")
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("error = %v, want TimeoutError", err)
	}
	if got := backend.polls.Load(); got != 8 {
		t.Fatalf("history polls = %d, want 8", got)
	}
	if timeout.Attempts != 8 {
		t.Fatalf("TimeoutError.Attempts = %d", timeout.Attempts)
	}
}

func TestMaxAttemptsFloorsAtOne(t *testing.T) {
	client := NewClient(Options{Timeout: time.Millisecond, PollInterval: time.Second})
	if client.MaxAttempts() != 1 {
		t.Fatalf("MaxAttempts = %d, want 1", client.MaxAttempts())
	}
	client = NewClient(Options{})
	if client.MaxAttempts() != 120 {
		t.Fatalf("default MaxAttempts = %d, want 120", client.MaxAttempts())
	}
}

func TestAwaitCompletionHistoryError(t *testing.T) {
	backend := newFakeBackend(t)
	backend.historyFn = func(n int) (int, any) { return http.StatusInternalServerError, map[string]any{} }
	client := newTestClient(t, backend, time.Second)

	_, err := client.AwaitCompletion(context.Background(), "job-1")
	var herr *HistoryError
	if !errors.As(err, &herr) || herr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("error = %v, want HistoryError 500", err)
	}
	if backend.polls.Load() != 1 {
		t.Fatalf("history polls = %d, want 1", backend.polls.Load())
	}
}

func TestAwaitCompletionHonoursCancellation(t *testing.T) {
	backend := newFakeBackend(t)
	backend.historyFn = func(n int) (int, any) { return http.StatusOK, map[string]any{} }
	client := newTestClient(t, backend, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := client.AwaitCompletion(ctx, "job-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestSubmitUnavailable(t *testing.T) {
	backend := newFakeBackend(t)
	backend.available = false
	client := newTestClient(t, backend, time.Second)

	_, err := client.Submit(context.Background(), Workflow{})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("error = %v, want ErrBackendUnavailable", err)
	}
	if len(backend.submitted) != 0 {
		t.Fatalf("workflow should not be posted when backend is down")
	}
	if !IsBackendError(err) {
		t.Fatalf("IsBackendError(%v) = false", err)
	}
}

func TestSubmitRejectedTruncatesBody(t *testing.T) {
	backend := newFakeBackend(t)
	backend.submitCode = http.StatusBadRequest
	client := newTestClient(t, backend, time.Second)

	_, err := client.Submit(context.Background(), Workflow{})
	var rejected *SubmissionRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("error = %v, want SubmissionRejectedError", err)
	}
	if rejected.StatusCode != http.StatusBadRequest || len(rejected.Body) != maxErrorBody {
		t.Fatalf("rejected = %d / %d chars", rejected.StatusCode, len(rejected.Body))
	}
}

func TestDownloadWritesIntoStore(t *testing.T) {
	backend := newFakeBackend(t)
	client := newTestClient(t, backend, time.Second)
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "images"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	path, err := client.Download(context.Background(), ArtifactRef{Filename: "flux_mcp_00001_.png", Type: "output"}, store)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if filepath.Dir(path) != store.BasePath() {
		t.Fatalf("path %q not inside %q", path, store.BasePath())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "PNGDATA:flux_mcp_00001_.png" {
		t.Fatalf("content = %q", data)
	}

	_, err = client.Download(context.Background(), ArtifactRef{Filename: "missing.png", Type: "output"}, store)
	var derr *DownloadError
	if !errors.As(err, &derr) || derr.StatusCode != http.StatusNotFound {
		t.Fatalf("error = %v, want DownloadError 404", err)
	}
}

func TestCheckpoints(t *testing.T) {
	client := newTestClient(t, newFakeBackend(t), time.Second)
	got := client.Checkpoints(context.Background())
	if len(got) != 2 || got[0] != "flux1-schnell-fp8.safetensors" {
		t.Fatalf("Checkpoints = %v", got)
	}

	down := NewClient(Options{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	if names := down.Checkpoints(context.Background()); len(names) != 0 {
		t.Fatalf("Checkpoints on unreachable backend = %v, want empty", names)
	}
}
