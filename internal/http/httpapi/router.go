package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediagen/internal/http/handlers"
	"mediagen/internal/infra"
	"mediagen/internal/middleware"
)

func base(cfg infra.HTTPConfig, logger infra.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
		middleware.CORS(cfg.AllowedOrigins),
	)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// NewImageRouter serves the image REST API.
func NewImageRouter(app *handlers.App, cfg infra.HTTPConfig, logger infra.Logger) http.Handler {
	r := base(cfg, logger)
	r.Get("/health", app.ImageHealth)
	r.With(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)).Post("/generate", app.ImageGenerate)
	r.Get("/openapi.json", app.OpenAPIJSON)
	r.Get("/docs", app.OpenAPIDocs)
	return r
}

// NewAudioRouter serves the speech REST API.
func NewAudioRouter(app *handlers.App, cfg infra.HTTPConfig, logger infra.Logger) http.Handler {
	r := base(cfg, logger)
	r.Get("/health", app.AudioHealth)
	r.Get("/languages", app.Languages)
	r.With(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)).Post("/generate", app.AudioGenerate)
	r.Get("/openapi.json", app.OpenAPIJSON)
	r.Get("/docs", app.OpenAPIDocs)
	return r
}

// NewMCPRouter mounts an MCP transport handler at path, with the same access
// log and CORS handling as the REST servers.
func NewMCPRouter(path string, mcp http.Handler, cfg infra.HTTPConfig, logger infra.Logger) http.Handler {
	r := base(cfg, logger)
	r.Handle(path, mcp)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}
