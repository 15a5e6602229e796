// Command automation serves the n8n tools over MCP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mediagen/internal/http/httpapi"
	"mediagen/internal/infra"
	"mediagen/internal/providers/n8n"
	"mediagen/internal/tools"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadAutomationConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)
	if cfg.APIKey == "" {
		logger.Warn().Msg("N8N_MCP_API_KEY is not set; listing and creating workflows will fail")
	}

	client := n8n.NewClient(n8n.Options{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Logger: &logger})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcp := tools.NewServer("n8n-automation", version)
	(&tools.AutomationTools{Client: client, ImageGenURL: cfg.ImageGenURL, Logger: &logger}).Register(mcp)

	srv := infra.NewHTTPServer("mcp", cfg.MCPAddr(), cfg.HTTP, httpapi.NewMCPRouter(tools.EndpointPath, tools.Handler(mcp), cfg.HTTP, logger))
	logger.Info().Str("n8n", cfg.BaseURL).Msg("automation server starting")
	if err := infra.RunServers(ctx, logger, 10*time.Second, srv); err != nil {
		logger.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}
