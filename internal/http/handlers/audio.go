package handlers

import (
	"context"
	"errors"
	"net/http"

	"mediagen/internal/audiogen"
)

// AudioHealth loads the engine on first call and reports 503 until it works.
func (a *App) AudioHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.Audio.Health(r.Context()); err != nil {
		a.logger().Warn().Err(err).Msg("handlers: audio engine unavailable")
		a.json(w, http.StatusServiceUnavailable, map[string]any{
			"ok":           false,
			"model_loaded": false,
			"error":        err.Error(),
			"hint":         "Check AUDIO_MCP_ENGINE_COMMAND and AUDIO_MCP_DEVICE (cuda, cpu or mps).",
		})
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"ok":           true,
		"message":      "TTS engine ready",
		"model_loaded": true,
	})
}

// Languages lists the engine's languages. When the engine cannot be asked the
// fallback list is returned together with the error.
func (a *App) Languages(w http.ResponseWriter, r *http.Request) {
	langs, err := a.Audio.Languages(r.Context())
	out := map[string]any{"languages": langs, "count": len(langs)}
	if err != nil {
		out["error"] = err.Error()
	}
	a.json(w, http.StatusOK, out)
}

// AudioGenerate accepts {"text"|"prompt", "audio_prompt_path"|"audio_prompt",
// "language"|"language_id", exaggeration, temperature, cfg_weight,
// repetition_penalty, min_p, top_p, speed}.
func (a *App) AudioGenerate(w http.ResponseWriter, r *http.Request) {
	body, ok := decode(r)
	if !ok {
		a.error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req := audiogen.Request{
		Text:              firstString(body, "text", "prompt"),
		AudioPromptPath:   firstString(body, "audio_prompt_path", "audio_prompt"),
		Language:          firstString(body, "language", "language_id"),
		Exaggeration:      optionalFloat(body, "exaggeration"),
		CFGWeight:         optionalFloat(body, "cfg_weight"),
		Temperature:       optionalFloat(body, "temperature"),
		RepetitionPenalty: optionalFloat(body, "repetition_penalty"),
		MinP:              optionalFloat(body, "min_p"),
		TopP:              optionalFloat(body, "top_p"),
		Speed:             optionalFloat(body, "speed"),
	}
	if _, err := req.Normalize(); err != nil {
		var verr *audiogen.ValidationError
		if errors.As(err, &verr) {
			a.error(w, http.StatusBadRequest, "text (or prompt) is required")
			return
		}
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}

	res := a.Audio.Generate(context.WithoutCancel(r.Context()), req)
	if !res.Success {
		msg := ""
		if res.Error != nil {
			msg = *res.Error
		}
		a.json(w, http.StatusOK, map[string]any{
			"success":    false,
			"filename":   nil,
			"audio_path": nil,
			"error":      msg,
		})
		return
	}
	a.json(w, http.StatusOK, res)
}
