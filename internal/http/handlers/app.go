// Package handlers implements the REST endpoints of the image and audio
// servers.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"mediagen/internal/audiogen"
	"mediagen/internal/imagegen"
	"mediagen/internal/infra"
)

// ImageGenerator runs an image generation request.
type ImageGenerator interface {
	Generate(ctx context.Context, req imagegen.GenerateRequest) imagegen.Result
}

// ImageBackend is the liveness and inventory side of the image backend.
type ImageBackend interface {
	IsAvailable(ctx context.Context) bool
	Checkpoints(ctx context.Context) []string
	BaseURL() string
}

// AudioService synthesizes speech.
type AudioService interface {
	Health(ctx context.Context) error
	Languages(ctx context.Context) (map[string]string, error)
	Generate(ctx context.Context, req audiogen.Request) audiogen.Result
}

// App carries the dependencies of every handler. A server only sets the
// fields its routes need.
type App struct {
	Images          ImageGenerator
	Backend         ImageBackend
	Audio           AudioService
	DefaultSteps    int
	DefaultGuidance float64
	Logger          *infra.Logger
}

func (a *App) logger() *infra.Logger {
	if a.Logger == nil {
		return infra.NopLogger()
	}
	return a.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]any{"success": false, "error": msg})
}

// decode reads a JSON object body into a generic map so aliased field names
// can be resolved by the caller.
func decode(r *http.Request) (map[string]any, bool) {
	body := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, false
	}
	return body, true
}

func firstString(body map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := body[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func number(body map[string]any, key string) (float64, bool) {
	switch v := body[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func optionalInt(body map[string]any, key string) *int {
	f, ok := number(body, key)
	if !ok {
		return nil
	}
	v := int(f)
	return &v
}

func optionalFloat(body map[string]any, key string) *float64 {
	f, ok := number(body, key)
	if !ok {
		return nil
	}
	return &f
}
