package audiogen

import (
	"math"
	"strings"
	"unicode/utf8"

	"mediagen/internal/providers/tts"
)

// MaxTextLength caps synthesized text; longer input is truncated.
const MaxTextLength = 5000

// Range declares the accepted interval and default of a tuning parameter.
type Range struct {
	Min, Max, Default float64
}

// Clamp returns the default for nil or NaN, otherwise v bounded to the range.
func (r Range) Clamp(v *float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return r.Default
	}
	return math.Max(r.Min, math.Min(r.Max, *v))
}

var (
	Exaggeration      = Range{Min: 0, Max: 2, Default: 0.4}
	CFGWeight         = Range{Min: 0, Max: 1, Default: 0.5}
	Temperature       = Range{Min: 0.05, Max: 2, Default: 0.6}
	RepetitionPenalty = Range{Min: 1, Max: 3, Default: 2.0}
	MinP              = Range{Min: 0, Max: 1, Default: 0.05}
	TopP              = Range{Min: 0, Max: 1, Default: 1.0}
	Speed             = Range{Min: 0.5, Max: 1.5, Default: 1.0}
)

// Request is untrusted caller input. Nil tuning values take their defaults.
type Request struct {
	Text              string
	AudioPromptPath   string
	Language          string
	Exaggeration      *float64
	CFGWeight         *float64
	Temperature       *float64
	RepetitionPenalty *float64
	MinP              *float64
	TopP              *float64
	Speed             *float64
}

// ValidationError reports input that cannot be clamped into shape.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Normalize trims and truncates the text and clamps every tuning value. The
// voice reference is resolved separately by the Service.
func (r Request) Normalize() (tts.Request, error) {
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return tts.Request{}, &ValidationError{Field: "text", Message: "text is required"}
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		text = string([]rune(text)[:MaxTextLength])
	}
	return tts.Request{
		Text:              text,
		LanguageID:        tts.NormalizeLanguage(r.Language),
		AudioPromptPath:   strings.TrimSpace(r.AudioPromptPath),
		Exaggeration:      Exaggeration.Clamp(r.Exaggeration),
		CFGWeight:         CFGWeight.Clamp(r.CFGWeight),
		Temperature:       Temperature.Clamp(r.Temperature),
		RepetitionPenalty: RepetitionPenalty.Clamp(r.RepetitionPenalty),
		MinP:              MinP.Clamp(r.MinP),
		TopP:              TopP.Clamp(r.TopP),
		Speed:             Speed.Clamp(r.Speed),
	}, nil
}
