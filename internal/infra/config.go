package infra

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	minComfyUITimeout = 10 * time.Second
	maxComfyUITimeout = 900 * time.Second

	// imageBatchLimit mirrors imagegen.MaxBatchSize; a batch polls once per
	// image, sequentially.
	imageBatchLimit     = 4
	responseWriteMargin = 60 * time.Second
)

// HTTPConfig holds listener settings shared by every binary.
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RateLimitPerMin int
	// AllowedOrigins lists browser origins allowed by CORS. Empty disables
	// CORS headers.
	AllowedOrigins []string
}

// ImageConfig configures the image generation servers (IMAGE_MCP_ prefix).
type ImageConfig struct {
	AppEnv          string
	LogLevel        string
	ComfyUIURL      string
	ComfyUITimeout  time.Duration
	OutputDir       string
	DefaultWidth    int
	DefaultHeight   int
	DefaultSteps    int
	DefaultGuidance float64
	DefaultModel    string
	ServerHost      string
	ServerPort      int
	RESTPort        int
	HTTP            HTTPConfig
}

// AudioConfig configures the speech synthesis servers (AUDIO_MCP_ prefix).
type AudioConfig struct {
	AppEnv                 string
	LogLevel               string
	OutputDir              string
	Device                 string
	DefaultAudioPromptPath string
	EngineCommand          string
	EngineTimeout          time.Duration
	ServerHost             string
	ServerPort             int
	RESTPort               int
	HTTP                   HTTPConfig
}

// AutomationConfig configures the n8n bridge (N8N_MCP_ prefix).
type AutomationConfig struct {
	AppEnv      string
	LogLevel    string
	BaseURL     string
	APIKey      string
	ImageGenURL string
	AudioGenURL string
	ServerHost  string
	ServerPort  int
	HTTP        HTTPConfig
}

// MCPAddr returns the listen address of the tool server.
func (c *ImageConfig) MCPAddr() string { return joinAddr(c.ServerHost, c.ServerPort) }

// RESTAddr returns the listen address of the REST server.
func (c *ImageConfig) RESTAddr() string { return joinAddr(c.ServerHost, c.RESTPort) }

// MCPAddr returns the listen address of the tool server.
func (c *AudioConfig) MCPAddr() string { return joinAddr(c.ServerHost, c.ServerPort) }

// RESTAddr returns the listen address of the REST server.
func (c *AudioConfig) RESTAddr() string { return joinAddr(c.ServerHost, c.RESTPort) }

// MCPAddr returns the listen address of the tool server.
func (c *AutomationConfig) MCPAddr() string { return joinAddr(c.ServerHost, c.ServerPort) }

// LoadImageConfig reads the image server configuration from the environment
// and makes sure the output directory exists.
func LoadImageConfig() (*ImageConfig, error) {
	const p = "IMAGE_MCP_"
	timeout := time.Duration(getEnvFloat(p+"COMFYUI_TIMEOUT", 120) * float64(time.Second))
	timeout = clampDuration(timeout, minComfyUITimeout, maxComfyUITimeout)
	cfg := &ImageConfig{
		AppEnv:          getEnv("APP_ENV", "production"),
		LogLevel:        getEnv(p+"LOG_LEVEL", "INFO"),
		ComfyUIURL:      strings.TrimRight(getEnv(p+"COMFYUI_URL", "http://127.0.0.1:8188"), "/"),
		ComfyUITimeout:  timeout,
		OutputDir:       getEnv(p+"OUTPUT_DIR", "./outputs/images"),
		DefaultWidth:    getEnvInt(p+"DEFAULT_WIDTH", 3840),
		DefaultHeight:   getEnvInt(p+"DEFAULT_HEIGHT", 2160),
		DefaultSteps:    getEnvInt(p+"DEFAULT_STEPS", 8),
		DefaultGuidance: getEnvFloat(p+"DEFAULT_GUIDANCE", 4.0),
		DefaultModel:    getEnv(p+"DEFAULT_MODEL", "flux1-schnell-fp8.safetensors"),
		ServerHost:      getEnv(p+"SERVER_HOST", "127.0.0.1"),
		ServerPort:      getEnvPort(p+"SERVER_PORT", 8001),
		RESTPort:        getEnvPort(p+"REST_PORT", 8002),
		HTTP:            loadHTTPConfig(imageWriteTimeout(timeout)),
	}
	dir, err := ensureDir(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	cfg.OutputDir = dir
	return cfg, nil
}

// LoadAudioConfig reads the speech server configuration from the environment.
func LoadAudioConfig() (*AudioConfig, error) {
	const p = "AUDIO_MCP_"
	cfg := &AudioConfig{
		AppEnv:                 getEnv("APP_ENV", "production"),
		LogLevel:               getEnv(p+"LOG_LEVEL", "INFO"),
		OutputDir:              getEnv(p+"OUTPUT_DIR", "./outputs/audio"),
		Device:                 getEnv(p+"DEVICE", "cuda"),
		DefaultAudioPromptPath: getEnvAllowEmpty(p+"DEFAULT_AUDIO_PROMPT_PATH", "voiceReference.mp3"),
		EngineCommand:          getEnv(p+"ENGINE_COMMAND", "python3 -m chatterbox_bridge"),
		EngineTimeout:          time.Second * time.Duration(getEnvInt(p+"ENGINE_TIMEOUT_SECONDS", 300)),
		ServerHost:             getEnv(p+"SERVER_HOST", "127.0.0.1"),
		ServerPort:             getEnvPort(p+"SERVER_PORT", 8003),
		RESTPort:               getEnvPort(p+"REST_PORT", 8004),
		HTTP:                   loadHTTPConfig(600 * time.Second),
	}
	switch cfg.Device {
	case "cuda", "cpu", "mps":
	default:
		return nil, fmt.Errorf("%sDEVICE must be one of cuda, cpu, mps (got %q)", p, cfg.Device)
	}
	dir, err := ensureDir(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	cfg.OutputDir = dir
	return cfg, nil
}

// LoadAutomationConfig reads the n8n bridge configuration from the environment.
func LoadAutomationConfig() (*AutomationConfig, error) {
	const p = "N8N_MCP_"
	cfg := &AutomationConfig{
		AppEnv:      getEnv("APP_ENV", "production"),
		LogLevel:    getEnv(p+"LOG_LEVEL", "INFO"),
		BaseURL:     strings.TrimRight(getEnv(p+"BASE_URL", "http://localhost:5678"), "/"),
		APIKey:      strings.TrimSpace(os.Getenv(p + "API_KEY")),
		ImageGenURL: getEnv(p+"IMAGE_GEN_URL", "http://host.docker.internal:8002/generate"),
		AudioGenURL: getEnv(p+"AUDIO_GEN_URL", "http://host.docker.internal:8004/generate"),
		ServerHost:  getEnv(p+"SERVER_HOST", "127.0.0.1"),
		ServerPort:  getEnvPort(p+"SERVER_PORT", 8010),
		HTTP:        loadHTTPConfig(180 * time.Second),
	}
	return cfg, nil
}

// imageWriteTimeout covers a full batch: every image may use the whole
// ComfyUI timeout before the response is written.
func imageWriteTimeout(comfyTimeout time.Duration) time.Duration {
	return comfyTimeout*imageBatchLimit + responseWriteMargin
}

func loadHTTPConfig(writeTimeout time.Duration) HTTPConfig {
	return HTTPConfig{
		ReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		WriteTimeout:    time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", int(writeTimeout/time.Second))),
		IdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS"),
	}
}

func ensureDir(dir string) (string, error) {
	if !filepath.IsAbs(dir) {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir %s: %w", dir, err)
	}
	return dir, nil
}

func joinAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// getEnvAllowEmpty lets operators disable a default by exporting an empty value.
func getEnvAllowEmpty(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvPort(key string, fallback int) int {
	port := getEnvInt(key, fallback)
	if port < 1024 || port > 65535 {
		return fallback
	}
	return port
}
