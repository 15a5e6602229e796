package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"mediagen/internal/infra"
	"mediagen/internal/storage"
)

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Backend is the model runtime behind the engine.
type Backend interface {
	// Probe loads the model and reports its properties.
	Probe(ctx context.Context) (ModelInfo, error)
	// Generate returns a PCM WAV clip for req.
	Generate(ctx context.Context, req Request) ([]byte, error)
}

// ModelInfo describes a loaded model.
type ModelInfo struct {
	SampleRate int
	Languages  map[string]string
}

// Request carries synthesis parameters. Values are expected to be in range;
// callers clamp them.
type Request struct {
	Text              string
	LanguageID        string
	AudioPromptPath   string
	Exaggeration      float64
	CFGWeight         float64
	Temperature       float64
	RepetitionPenalty float64
	MinP              float64
	TopP              float64
	Speed             float64
}

// Clip is a synthesized and post-processed file.
type Clip struct {
	Path       string
	Filename   string
	SampleRate int
	WAV        []byte
	Duration   time.Duration
}

// Options configures an Engine.
type Options struct {
	Backend Backend
	Store   *storage.FileStore
	Logger  *infra.Logger
	// Now is used for file names; defaults to time.Now.
	Now func() time.Time
}

// Engine owns the process-wide model. The model is loaded lazily by the first
// caller; concurrent callers wait for that load. A failed load is not cached.
// Synthesis runs one request at a time.
type Engine struct {
	backend Backend
	store   *storage.FileStore
	logger  *infra.Logger
	now     func() time.Time

	mu     sync.Mutex
	info   ModelInfo
	loaded bool

	slot chan struct{}
}

// NewEngine validates dependencies.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Backend == nil {
		return nil, errors.New("tts: backend is required")
	}
	if opts.Store == nil {
		return nil, errors.New("tts: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		backend: opts.Backend,
		store:   opts.Store,
		logger:  logger,
		now:     now,
		slot:    make(chan struct{}, 1),
	}, nil
}

// Load initializes the model once.
func (e *Engine) Load(ctx context.Context) (ModelInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return e.info, nil
	}
	start := time.Now()
	e.logger.Info().Msg("tts: loading model")
	info, err := e.backend.Probe(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("tts: model load failed")
		return ModelInfo{}, err
	}
	e.info = info
	e.loaded = true
	e.logger.Info().
		Int("sample_rate", info.SampleRate).
		Int("languages", len(info.Languages)).
		Dur("elapsed", time.Since(start)).
		Msg("tts: model ready")
	return info, nil
}

// unload forgets the model so the next Load probes the backend again.
func (e *Engine) unload() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		e.logger.Warn().Msg("tts: engine process lost; model will reload on next request")
	}
	e.loaded = false
	e.info = ModelInfo{}
}

// Close releases the backend when it holds resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.loaded = false
	e.mu.Unlock()
	if c, ok := e.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Loaded reports whether the model is ready without triggering a load.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Languages returns code → English name for the loaded model, or English only
// when the model cannot be loaded.
func (e *Engine) Languages(ctx context.Context) (map[string]string, error) {
	info, err := e.Load(ctx)
	if err != nil || len(info.Languages) == 0 {
		return map[string]string{"en": "English"}, err
	}
	out := make(map[string]string, len(info.Languages))
	for code, name := range info.Languages {
		if name == "" {
			name = LanguageName(code)
		}
		out[code] = name
	}
	return out, nil
}

// Synthesize generates speech for req, post-processes it and writes it into
// the store as chatterbox_<unix-ms>.wav.
func (e *Engine) Synthesize(ctx context.Context, req Request) (Clip, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return Clip{}, ErrEmptyText
	}
	req.LanguageID = NormalizeLanguage(req.LanguageID)
	info, err := e.Load(ctx)
	if err != nil {
		return Clip{}, err
	}

	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		return Clip{}, ctx.Err()
	}
	defer func() { <-e.slot }()

	filename := fmt.Sprintf("chatterbox_%d.wav", e.now().UnixMilli())
	start := time.Now()
	raw, err := e.backend.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, ErrBridgeExited) {
			e.unload()
		}
		return Clip{}, err
	}
	decoded, err := decodeWAV(raw)
	if err != nil {
		return Clip{}, err
	}
	if decoded.sampleRate == 0 {
		decoded.sampleRate = info.SampleRate
	}
	if req.Speed > 0 && !nearlyOne(req.Speed) {
		decoded.samples = TimeStretch(decoded.samples, req.Speed)
	}
	decoded.samples = NormalizeLoudness(decoded.samples, decoded.sampleRate, TargetLoudness)

	path, err := e.store.WriteWith(ctx, filename, func(f *os.File) error {
		return encodeWAV(f, decoded)
	})
	if err != nil {
		return Clip{}, fmt.Errorf("tts: save audio: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, fmt.Errorf("tts: read back audio: %w", err)
	}
	out := Clip{
		Path:       path,
		Filename:   filename,
		SampleRate: decoded.sampleRate,
		WAV:        data,
		Duration:   decoded.duration(),
	}
	e.logger.Info().
		Str("filename", filename).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("tts: audio generated")
	return out, nil
}

// NormalizeLanguage reduces a tag to its lower-case base language ("es-MX" →
// "es"). Unparseable or empty input falls back to English.
func NormalizeLanguage(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "en"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "en"
	}
	base, _ := tag.Base()
	if base.String() == "und" {
		return "en"
	}
	return base.String()
}

// LanguageName returns the English display name of a language code.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

func nearlyOne(v float64) bool {
	d := v - 1
	return d < 1e-6 && d > -1e-6
}
