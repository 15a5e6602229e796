// Command imagegen serves the image tools over MCP and the image REST API.
package main

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mediagen/internal/catalog"
	"mediagen/internal/http/handlers"
	"mediagen/internal/http/httpapi"
	"mediagen/internal/imagegen"
	"mediagen/internal/infra"
	"mediagen/internal/providers/comfyui"
	"mediagen/internal/storage"
	"mediagen/internal/tools"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadImageConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	client := comfyui.NewClient(comfyui.Options{
		BaseURL: cfg.ComfyUIURL,
		Timeout: cfg.ComfyUITimeout,
		Logger:  &logger,
	})
	store, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open output dir")
	}
	gen, err := imagegen.NewGenerator(imagegen.Options{
		Backend:       client,
		Store:         store,
		Checkpoint:    cfg.DefaultModel,
		DefaultWidth:  cfg.DefaultWidth,
		DefaultHeight: cfg.DefaultHeight,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build generator")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checkBackend(ctx, client, cfg.DefaultModel, logger)

	mcp := tools.NewServer("flux-image-generator", version)
	(&tools.ImageTools{
		Generator:       gen,
		Catalog:         catalog.New(cfg.OutputDir),
		DefaultSteps:    cfg.DefaultSteps,
		DefaultGuidance: cfg.DefaultGuidance,
		Logger:          &logger,
	}).Register(mcp)

	app := &handlers.App{
		Images:          gen,
		Backend:         client,
		DefaultSteps:    cfg.DefaultSteps,
		DefaultGuidance: cfg.DefaultGuidance,
		Logger:          &logger,
	}

	servers := []*infra.HTTPServer{
		infra.NewHTTPServer("mcp", cfg.MCPAddr(), cfg.HTTP, httpapi.NewMCPRouter(tools.EndpointPath, tools.Handler(mcp), cfg.HTTP, logger)),
		infra.NewHTTPServer("rest", cfg.RESTAddr(), cfg.HTTP, httpapi.NewImageRouter(app, cfg.HTTP, logger)),
	}
	logger.Info().Str("comfyui", cfg.ComfyUIURL).Str("output_dir", cfg.OutputDir).Msg("image server starting")
	if err := infra.RunServers(ctx, logger, 10*time.Second, servers...); err != nil {
		logger.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}

// checkBackend logs backend availability and warns when the configured
// checkpoint is missing. It never blocks startup.
func checkBackend(ctx context.Context, client *comfyui.Client, model string, logger infra.Logger) {
	if !client.IsAvailable(ctx) {
		logger.Warn().Str("comfyui", client.BaseURL()).Msg("ComfyUI is not reachable; generation will fail until it is started")
		return
	}
	checkpoints := client.Checkpoints(ctx)
	if len(checkpoints) > 0 && !slices.Contains(checkpoints, model) {
		logger.Warn().Str("model", model).Strs("available", checkpoints).Msg("configured checkpoint not found in ComfyUI")
		return
	}
	logger.Info().Str("comfyui", client.BaseURL()).Int("checkpoints", len(checkpoints)).Msg("ComfyUI available")
}
