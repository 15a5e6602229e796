package imagegen

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Parameter bounds accepted from callers. Out-of-range values are clamped,
// over-long text is truncated.
const (
	MinPromptLength   = 3
	MaxPromptLength   = 2000
	MaxNegativeLength = 500
	MinDimension      = 256
	MaxDimension      = 4096
	MinSteps          = 1
	MaxSteps          = 50
	MinGuidance       = 0.0
	MaxGuidance       = 20.0
	MaxSeed           = 1<<32 - 1
	MinBatchSize      = 1
	MaxBatchSize      = 4

	DefaultNegativePrompt = "blurry, low quality, distorted, watermark, text"
	DefaultSteps          = 8
	DefaultGuidance       = 4.0
)

// ImageFormat is the requested output encoding.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
	FormatWEBP ImageFormat = "webp"
)

// ParseImageFormat falls back to PNG for unknown values.
func ParseImageFormat(s string) ImageFormat {
	switch f := ImageFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJPEG, FormatWEBP:
		return f
	case "jpg":
		return FormatJPEG
	default:
		return FormatPNG
	}
}

// ResponseFormat selects how results are rendered for tool callers.
type ResponseFormat string

const (
	ResponseJSON     ResponseFormat = "json"
	ResponseMarkdown ResponseFormat = "markdown"
)

// ParseResponseFormat returns fallback for unknown values.
func ParseResponseFormat(s string, fallback ResponseFormat) ResponseFormat {
	switch f := ResponseFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case ResponseJSON, ResponseMarkdown:
		return f
	default:
		return fallback
	}
}

// GenerateRequest describes one text-to-image request.
type GenerateRequest struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    AspectRatio
	Width          *int
	Height         *int
	// Steps is nil when the caller gave none; an explicit value is clamped.
	Steps          *int
	GuidanceScale  float64
	Seed           *int64
	BatchSize      int
	OutputFormat   ImageFormat
}

// ValidationError reports input that cannot be repaired by clamping.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Normalize trims and truncates text, fills defaults and clamps numeric
// fields into range. Only a prompt shorter than MinPromptLength is rejected.
func (r GenerateRequest) Normalize() (GenerateRequest, error) {
	r.Prompt = truncateRunes(strings.TrimSpace(r.Prompt), MaxPromptLength)
	if utf8.RuneCountInString(r.Prompt) < MinPromptLength {
		return r, &ValidationError{Field: "prompt", Message: fmt.Sprintf("must be at least %d characters", MinPromptLength)}
	}
	r.NegativePrompt = strings.TrimSpace(r.NegativePrompt)
	if r.NegativePrompt == "" {
		r.NegativePrompt = DefaultNegativePrompt
	}
	r.NegativePrompt = truncateRunes(r.NegativePrompt, MaxNegativeLength)
	if r.AspectRatio == "" {
		r.AspectRatio = AspectSquare
	}
	if r.Width != nil {
		w := clampInt(*r.Width, MinDimension, MaxDimension)
		r.Width = &w
	}
	if r.Height != nil {
		h := clampInt(*r.Height, MinDimension, MaxDimension)
		r.Height = &h
	}
	steps := DefaultSteps
	if r.Steps != nil {
		steps = clampInt(*r.Steps, MinSteps, MaxSteps)
	}
	r.Steps = &steps
	r.GuidanceScale = clampFloat(r.GuidanceScale, MinGuidance, MaxGuidance)
	if r.Seed != nil {
		s := *r.Seed
		if s < 0 {
			s = 0
		}
		if s > MaxSeed {
			s = MaxSeed
		}
		r.Seed = &s
	}
	if r.BatchSize == 0 {
		r.BatchSize = MinBatchSize
	}
	r.BatchSize = clampInt(r.BatchSize, MinBatchSize, MaxBatchSize)
	if r.OutputFormat == "" {
		r.OutputFormat = FormatPNG
	}
	return r, nil
}

// GeneratedImage describes one image written to the output directory.
type GeneratedImage struct {
	ImagePath        string  `json:"image_path"`
	Filename         string  `json:"filename"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	Format           string  `json:"format"`
	Seed             int64   `json:"seed"`
	Prompt           string  `json:"prompt"`
	Steps            int     `json:"steps"`
	GuidanceScale    float64 `json:"guidance_scale"`
	FileSizeBytes    int64   `json:"file_size_bytes"`
	GenerationTimeMS int64   `json:"generation_time_ms"`
}

// Result is the outcome of a batch. Error is nil on success.
type Result struct {
	Success        bool             `json:"success"`
	Images         []GeneratedImage `json:"images"`
	TotalGenerated int              `json:"total_generated"`
	Error          *string          `json:"error"`
}

// FailedResult builds an unsuccessful result that keeps already produced images.
func FailedResult(msg string, images []GeneratedImage) Result {
	if images == nil {
		images = []GeneratedImage{}
	}
	return Result{Success: false, Images: images, TotalGenerated: len(images), Error: &msg}
}

// FormatFileSize renders byte counts as B, KB or MB with one decimal.
func FormatFileSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func clampFloat(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
