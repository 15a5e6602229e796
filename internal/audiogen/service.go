package audiogen

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"mediagen/internal/infra"
	"mediagen/internal/metrics"
	"mediagen/internal/providers/tts"
)

// Engine is the synthesis runtime. *tts.Engine satisfies it.
type Engine interface {
	Load(ctx context.Context) (tts.ModelInfo, error)
	Languages(ctx context.Context) (map[string]string, error)
	Synthesize(ctx context.Context, req tts.Request) (tts.Clip, error)
}

// Options configures a Service.
type Options struct {
	Engine Engine
	// DefaultAudioPromptPath is used as voice reference when the request has
	// none and the file exists. Empty disables it.
	DefaultAudioPromptPath string
	Logger                 *infra.Logger
}

// Service validates audio requests, resolves the voice reference and turns
// engine results into response records.
type Service struct {
	engine        Engine
	defaultPrompt string
	logger        *infra.Logger
}

// Result is the response record of one synthesis. Filename, AudioPath and
// Error are pointers so they serialize as null when absent.
type Result struct {
	Success     bool    `json:"success"`
	Filename    *string `json:"filename"`
	AudioPath   *string `json:"audio_path"`
	SampleRate  int     `json:"sample_rate,omitempty"`
	TextLength  int     `json:"text_length,omitempty"`
	LanguageID  string  `json:"language_id,omitempty"`
	Base64Audio string  `json:"base64_audio,omitempty"`
	Error       *string `json:"error"`
}

// NewService validates dependencies.
func NewService(opts Options) (*Service, error) {
	if opts.Engine == nil {
		return nil, errors.New("audiogen: engine is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Service{
		engine:        opts.Engine,
		defaultPrompt: opts.DefaultAudioPromptPath,
		logger:        logger,
	}, nil
}

// Health loads the model if needed and reports whether it is usable.
func (s *Service) Health(ctx context.Context) error {
	_, err := s.engine.Load(ctx)
	return err
}

// Languages lists the supported language codes with English names.
func (s *Service) Languages(ctx context.Context) (map[string]string, error) {
	return s.engine.Languages(ctx)
}

// Generate synthesizes req. Every failure, validation included, is returned
// as a Result with Success false.
func (s *Service) Generate(ctx context.Context, req Request) (result Result) {
	start := time.Now()
	defer func() {
		status := metrics.Status(result.Success)
		metrics.GenerationsTotal.WithLabelValues("audio", status).Inc()
		metrics.GenerationLatencySeconds.WithLabelValues("audio", status).Observe(time.Since(start).Seconds())
	}()

	params, err := req.Normalize()
	if err != nil {
		return failed(err)
	}
	params.AudioPromptPath = s.resolveVoice(params.AudioPromptPath)

	clip, err := s.engine.Synthesize(ctx, params)
	if err != nil {
		s.logger.Error().Err(err).Str("language_id", params.LanguageID).Msg("audiogen: synthesis failed")
		return failed(err)
	}
	return Result{
		Success:     true,
		Filename:    &clip.Filename,
		AudioPath:   &clip.Path,
		SampleRate:  clip.SampleRate,
		TextLength:  utf8.RuneCountInString(params.Text),
		LanguageID:  params.LanguageID,
		Base64Audio: base64.StdEncoding.EncodeToString(clip.WAV),
	}
}

// resolveVoice returns an absolute path to an existing voice reference, or
// "" to use the model's built-in voice. A relative request path is resolved
// against the working directory and dropped when it does not exist.
func (s *Service) resolveVoice(requested string) string {
	if requested != "" {
		if p, ok := existingFile(requested); ok {
			return p
		}
		s.logger.Warn().Str("audio_prompt_path", requested).Msg("audiogen: voice reference not found, using default voice")
	}
	if s.defaultPrompt != "" {
		if p, ok := existingFile(s.defaultPrompt); ok {
			return p
		}
	}
	return ""
}

func existingFile(p string) (string, bool) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", false
	}
	return abs, true
}

func failed(err error) Result {
	msg := err.Error()
	return Result{Success: false, Error: &msg}
}
