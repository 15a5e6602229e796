package handlers

import (
	"context"
	"errors"
	"net/http"

	"mediagen/internal/imagegen"
)

const checkpointSampleSize = 5

// ImageHealth reports whether the image backend answers, with a sample of its
// checkpoints.
func (a *App) ImageHealth(w http.ResponseWriter, r *http.Request) {
	base := a.Backend.BaseURL()
	if !a.Backend.IsAvailable(r.Context()) {
		a.json(w, http.StatusServiceUnavailable, map[string]any{
			"ok":      false,
			"comfyui": base,
			"error":   "ComfyUI is not reachable. Start it before generating images.",
		})
		return
	}
	sample := a.Backend.Checkpoints(r.Context())
	if len(sample) > checkpointSampleSize {
		sample = sample[:checkpointSampleSize]
	}
	if sample == nil {
		sample = []string{}
	}
	a.json(w, http.StatusOK, map[string]any{
		"ok":                 true,
		"comfyui":            base,
		"message":            "ComfyUI available",
		"checkpoints_sample": sample,
	})
}

// ImageGenerate accepts {"description"|"prompt", aspect_ratio, width, height,
// steps, guidance_scale, negative_prompt, seed, batch_size, output_format}.
// Generation failures are reported with 200 and success false.
func (a *App) ImageGenerate(w http.ResponseWriter, r *http.Request) {
	body, ok := decode(r)
	if !ok {
		a.error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	aspect, ok := imagegen.ParseAspectRatio(firstString(body, "aspect_ratio"))
	if !ok {
		aspect = imagegen.AspectLandscape
	}
	steps, guidance := a.DefaultSteps, a.DefaultGuidance
	if steps <= 0 {
		steps = imagegen.DefaultSteps
	}
	if guidance <= 0 {
		guidance = imagegen.DefaultGuidance
	}
	if v, ok := number(body, "steps"); ok {
		steps = int(v)
	}
	if v, ok := number(body, "guidance_scale"); ok {
		guidance = v
	}
	req := imagegen.GenerateRequest{
		Prompt:         firstString(body, "description", "prompt"),
		NegativePrompt: firstString(body, "negative_prompt"),
		AspectRatio:    aspect,
		Width:          optionalInt(body, "width"),
		Height:         optionalInt(body, "height"),
		Steps:          &steps,
		GuidanceScale:  guidance,
		OutputFormat:   imagegen.ParseImageFormat(firstString(body, "output_format")),
	}
	if v, ok := number(body, "batch_size"); ok {
		req.BatchSize = int(v)
	}
	if v, ok := number(body, "seed"); ok {
		seed := int64(v)
		req.Seed = &seed
	}

	normalized, err := req.Normalize()
	if err != nil {
		var verr *imagegen.ValidationError
		if errors.As(err, &verr) {
			a.error(w, http.StatusBadRequest, "description or prompt must be at least 3 characters")
			return
		}
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}
	a.logger().Info().Str("aspect_ratio", string(normalized.AspectRatio)).Int("steps", *normalized.Steps).Msg("handlers: image generate")

	res := a.Images.Generate(context.WithoutCancel(r.Context()), normalized)
	a.json(w, http.StatusOK, res)
}
