package tools

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"mediagen/internal/audiogen"
	"mediagen/internal/catalog"
	"mediagen/internal/imagegen"
	"mediagen/internal/providers/n8n"
)

type stubImageGen struct {
	got   imagegen.GenerateRequest
	calls int
	res   imagegen.Result
}

func (s *stubImageGen) Generate(ctx context.Context, req imagegen.GenerateRequest) imagegen.Result {
	s.calls++
	s.got = req
	return s.res
}

type stubAudioGen struct {
	got audiogen.Request
	res audiogen.Result
}

func (s *stubAudioGen) Generate(ctx context.Context, req audiogen.Request) audiogen.Result {
	s.got = req
	return s.res
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

func TestImageGenerateMapsArguments(t *testing.T) {
	gen := &stubImageGen{res: imagegen.Result{Success: true, TotalGenerated: 0, Images: []imagegen.GeneratedImage{}}}
	tools := &ImageTools{Generator: gen, Catalog: catalog.New(t.TempDir())}
	tools.Register(NewServer("test", "0"))

	res, err := tools.generate(context.Background(), call(map[string]any{
		"prompt":         "A red apple on a white table",
		"aspect_ratio":   "custom",
		"width":          float64(1000),
		"height":         "700",
		"steps":          float64(99),
		"guidance_scale": float64(3.5),
		"seed":           float64(42),
		"batch_size":     float64(2),
		"output_format":  "webp",
	}))
	if err != nil || res.IsError {
		t.Fatalf("generate: %v %+v", err, res)
	}
	got := gen.got
	if got.AspectRatio != imagegen.AspectCustom || *got.Width != 1000 || *got.Height != 700 {
		t.Fatalf("dimensions = %v %v %v", got.AspectRatio, *got.Width, *got.Height)
	}
	if *got.Steps != imagegen.MaxSteps || got.GuidanceScale != 3.5 || *got.Seed != 42 || got.BatchSize != 2 {
		t.Fatalf("request = %+v", got)
	}
	if got.OutputFormat != imagegen.FormatWEBP {
		t.Fatalf("format = %q", got.OutputFormat)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(text(t, res)), &decoded); err != nil {
		t.Fatalf("default response format should be JSON: %v", err)
	}
}

func TestImageGenerateDefaults(t *testing.T) {
	gen := &stubImageGen{res: imagegen.Result{Success: true}}
	tools := &ImageTools{Generator: gen, Catalog: catalog.New(t.TempDir())}
	tools.Register(NewServer("test", "0"))

	if _, err := tools.generate(context.Background(), call(map[string]any{"prompt": "a cat", "aspect_ratio": "2:1"})); err != nil {
		t.Fatalf("generate: %v", err)
	}
	got := gen.got
	if got.AspectRatio != imagegen.AspectSquare || *got.Steps != 8 || got.GuidanceScale != 4.0 || got.Seed != nil || got.BatchSize != 1 {
		t.Fatalf("request = %+v", got)
	}
}

func TestImageGenerateExplicitZeroStepsClampsToOne(t *testing.T) {
	gen := &stubImageGen{res: imagegen.Result{Success: true}}
	tools := &ImageTools{Generator: gen, Catalog: catalog.New(t.TempDir()), DefaultSteps: 12}
	tools.Register(NewServer("test", "0"))

	if _, err := tools.generate(context.Background(), call(map[string]any{"prompt": "a cat", "steps": float64(0)})); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if *gen.got.Steps != imagegen.MinSteps {
		t.Fatalf("steps = %d, want %d", *gen.got.Steps, imagegen.MinSteps)
	}
	if _, err := tools.generate(context.Background(), call(map[string]any{"prompt": "a cat"})); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if *gen.got.Steps != 12 {
		t.Fatalf("steps = %d, want configured default 12", *gen.got.Steps)
	}
}

func TestImageGenerateRejectsShortPrompt(t *testing.T) {
	gen := &stubImageGen{}
	tools := &ImageTools{Generator: gen, Catalog: catalog.New(t.TempDir())}
	tools.Register(NewServer("test", "0"))

	res, err := tools.generate(context.Background(), call(map[string]any{"prompt": ""}))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !res.IsError {
		t.Fatalf("empty prompt should be a tool error")
	}
	if gen.calls != 0 {
		t.Fatalf("generator called %d times for invalid input", gen.calls)
	}
}

func TestImageGenerateMarkdownFailure(t *testing.T) {
	msg := "comfyui: backend unavailable"
	gen := &stubImageGen{res: imagegen.FailedResult(msg, nil)}
	tools := &ImageTools{Generator: gen, Catalog: catalog.New(t.TempDir())}
	tools.Register(NewServer("test", "0"))

	res, _ := tools.generate(context.Background(), call(map[string]any{"prompt": "a dog", "response_format": "markdown"}))
	if got := text(t, res); got != "## Generation Error\n\n"+msg {
		t.Fatalf("text = %q", got)
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 64, 32))); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestImageListAndInfo(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "flux_mcp_00001_.png"))
	tools := &ImageTools{Generator: &stubImageGen{}, Catalog: catalog.New(dir)}
	tools.Register(NewServer("test", "0"))

	res, _ := tools.list(context.Background(), call(map[string]any{"response_format": "json", "limit": float64(500)}))
	var page catalog.Page
	if err := json.Unmarshal([]byte(text(t, res)), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 1 || page.Images[0].Filename != "flux_mcp_00001_.png" || page.HasMore {
		t.Fatalf("page = %+v", page)
	}

	res, _ = tools.info(context.Background(), call(map[string]any{"image_path": "flux_mcp_00001_.png", "response_format": "json"}))
	var info catalog.Info
	if err := json.Unmarshal([]byte(text(t, res)), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Width != 64 || info.Height != 32 || info.Format != "PNG" {
		t.Fatalf("info = %+v", info)
	}

	res, _ = tools.info(context.Background(), call(map[string]any{"image_path": "missing.png"}))
	want := "## Error\n\nImage not found: 'missing.png'. Check the path or use image_gen_list to see available images."
	if got := text(t, res); got != want {
		t.Fatalf("not found = %q", got)
	}
}

func TestAudioGenerate(t *testing.T) {
	name, path := "chatterbox_1.wav", "/out/chatterbox_1.wav"
	gen := &stubAudioGen{res: audiogen.Result{
		Success: true, Filename: &name, AudioPath: &path, SampleRate: 24000, TextLength: 5, Base64Audio: "UklGRg==",
	}}
	tools := &AudioTools{Generator: gen}

	res, err := tools.generate(context.Background(), call(map[string]any{
		"text": "hello", "language": "es", "speed": float64(1.2), "include_base64": false,
	}))
	if err != nil || res.IsError {
		t.Fatalf("generate: %v %+v", err, res)
	}
	if gen.got.Language != "es" || *gen.got.Speed != 1.2 || gen.got.Exaggeration != nil {
		t.Fatalf("request = %+v", gen.got)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text(t, res)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["success"] != true || out["filename"] != name || out["sample_rate"] != float64(24000) {
		t.Fatalf("out = %v", out)
	}
	if _, has := out["base64_audio"]; has {
		t.Fatalf("base64 included although disabled")
	}
}

func TestAudioGenerateFailureAndValidation(t *testing.T) {
	msg := "tts: model missing"
	gen := &stubAudioGen{res: audiogen.Result{Error: &msg}}
	tools := &AudioTools{Generator: gen}

	res, _ := tools.generate(context.Background(), call(map[string]any{"text": "hi"}))
	var out map[string]any
	if err := json.Unmarshal([]byte(text(t, res)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["success"] != false || out["error"] != msg || out["audio_path"] != nil {
		t.Fatalf("out = %v", out)
	}

	res, _ = tools.generate(context.Background(), call(map[string]any{"text": "   "}))
	if !res.IsError {
		t.Fatalf("blank text should be a tool error")
	}
}

func TestAutomationTools(t *testing.T) {
	var webhookHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/webhook/"):
			webhookHits++
			_, _ = w.Write([]byte(`{"success":true,"images":[]}`))
		case r.URL.Path == "/api/v1/workflows" && r.Header.Get(n8n.APIKeyHeader) != "k":
			w.WriteHeader(http.StatusUnauthorized)
		case r.URL.Path == "/api/v1/workflows":
			_, _ = w.Write([]byte(`{"data":[{"id":"1","name":"Image Gen Test","active":true}]}`))
		}
	}))
	defer srv.Close()

	tools := &AutomationTools{Client: n8n.NewClient(n8n.Options{BaseURL: srv.URL, APIKey: "k"})}
	tools.Register(NewServer("test", "0"))

	res, _ := tools.trigger(context.Background(), call(map[string]any{"webhook_path": "generate-image", "prompt": "a boat"}))
	var trig n8n.TriggerResult
	if err := json.Unmarshal([]byte(text(t, res)), &trig); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !trig.Success || webhookHits != 1 || !strings.HasPrefix(trig.Validation, "validated") {
		t.Fatalf("trigger = %+v", trig)
	}

	res, _ = tools.listWorkflows(context.Background(), call(nil))
	if got := text(t, res); !strings.Contains(got, `"total": 1`) || !strings.Contains(got, `"Image Gen Test"`) {
		t.Fatalf("list = %s", got)
	}

	bad := &AutomationTools{Client: n8n.NewClient(n8n.Options{BaseURL: srv.URL, APIKey: "wrong"})}
	bad.Register(NewServer("test", "0"))
	res, _ = bad.listWorkflows(context.Background(), call(nil))
	if got := text(t, res); !strings.Contains(got, "API key invalid or expired") {
		t.Fatalf("unauthorized = %s", got)
	}

	missing := &AutomationTools{Client: n8n.NewClient(n8n.Options{BaseURL: srv.URL})}
	missing.Register(NewServer("test", "0"))
	res, _ = missing.create(context.Background(), call(nil))
	if got := text(t, res); !strings.Contains(got, "N8N_MCP_API_KEY is not set") {
		t.Fatalf("missing key = %s", got)
	}
}

func TestServerListsTools(t *testing.T) {
	s := NewServer("test", "0")
	(&ImageTools{Generator: &stubImageGen{}, Catalog: catalog.New(t.TempDir())}).Register(s)
	(&AudioTools{Generator: &stubAudioGen{}}).Register(s)

	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, name := range []string{"image_gen_generate", "image_gen_list", "image_gen_info", "audio_gen_generate"} {
		if !strings.Contains(string(raw), `"`+name+`"`) {
			t.Fatalf("tools/list missing %s: %s", name, raw)
		}
	}
}
