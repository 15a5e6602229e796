// Command audiogen serves speech synthesis over MCP and REST.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mediagen/internal/audiogen"
	"mediagen/internal/http/handlers"
	"mediagen/internal/http/httpapi"
	"mediagen/internal/infra"
	"mediagen/internal/providers/tts"
	"mediagen/internal/storage"
	"mediagen/internal/tools"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadAudioConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	backend, err := tts.NewExecBackend(cfg.EngineCommand, cfg.Device, cfg.EngineTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid engine command")
	}
	store, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open output dir")
	}
	engine, err := tts.NewEngine(tts.Options{Backend: backend, Store: store, Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build engine")
	}
	svc, err := audiogen.NewService(audiogen.Options{
		Engine:                 engine,
		DefaultAudioPromptPath: cfg.DefaultAudioPromptPath,
		Logger:                 &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build service")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcp := tools.NewServer("chatterbox-audio-generator", version)
	(&tools.AudioTools{Generator: svc}).Register(mcp)
	app := &handlers.App{Audio: svc, Logger: &logger}

	servers := []*infra.HTTPServer{
		infra.NewHTTPServer("mcp", cfg.MCPAddr(), cfg.HTTP, httpapi.NewMCPRouter(tools.EndpointPath, tools.Handler(mcp), cfg.HTTP, logger)),
		infra.NewHTTPServer("rest", cfg.RESTAddr(), cfg.HTTP, httpapi.NewAudioRouter(app, cfg.HTTP, logger)),
	}
	logger.Info().Str("device", cfg.Device).Str("output_dir", cfg.OutputDir).Msg("audio server starting; the model loads on first use")
	err = infra.RunServers(ctx, logger, 10*time.Second, servers...)
	if cerr := engine.Close(); cerr != nil {
		logger.Warn().Err(cerr).Msg("engine close failed")
	}
	if err != nil {
		logger.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}
