package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"mediagen/internal/audiogen"
)

// AudioGenerator synthesizes speech. *audiogen.Service satisfies it.
type AudioGenerator interface {
	Generate(ctx context.Context, req audiogen.Request) audiogen.Result
}

// AudioTools serves audio_gen_generate.
type AudioTools struct {
	Generator AudioGenerator
}

// Register adds the audio tool to s.
func (t *AudioTools) Register(s *server.MCPServer) {
	s.AddTool(audioTool(), t.generate)
}

func rangeNumber(name, desc string, r audiogen.Range) mcp.ToolOption {
	return mcp.WithNumber(name, mcp.Description(desc), mcp.Min(r.Min), mcp.Max(r.Max), mcp.DefaultNumber(r.Default))
}

func audioTool() mcp.Tool {
	return mcp.NewTool("audio_gen_generate",
		mcp.WithDescription("Generate speech (WAV) from text with a multilingual TTS model."),
		mcp.WithTitleAnnotation("Generate audio (TTS)"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to speak (1-5000 characters)."),
			mcp.MinLength(1)),
		mcp.WithString("audio_prompt_path", mcp.Description("Reference clip for voice cloning (optional).")),
		mcp.WithString("language", mcp.Description("Language code (en, es, fr, de, it, pt, ja, zh, ...)."),
			mcp.DefaultString("en")),
		rangeNumber("exaggeration", "Emotional intensity. Lower is more sober.", audiogen.Exaggeration),
		rangeNumber("temperature", "Sampling temperature. Lower is clearer.", audiogen.Temperature),
		rangeNumber("cfg_weight", "CFG weight / pacing.", audiogen.CFGWeight),
		rangeNumber("speed", "Speech rate. 1.0 is normal, below 1 slower, above 1 faster.", audiogen.Speed),
		mcp.WithBoolean("include_base64", mcp.Description("Include the WAV as base64 in the response."),
			mcp.DefaultBool(true)),
	)
}

func (t *AudioTools) generate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	in := audiogen.Request{
		Text:            req.GetString("text", ""),
		AudioPromptPath: req.GetString("audio_prompt_path", ""),
		Language:        req.GetString("language", "en"),
		Exaggeration:    optionalFloat(args, "exaggeration"),
		Temperature:     optionalFloat(args, "temperature"),
		CFGWeight:       optionalFloat(args, "cfg_weight"),
		Speed:           optionalFloat(args, "speed"),
	}
	if _, err := in.Normalize(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := t.Generator.Generate(context.WithoutCancel(ctx), in)
	if !res.Success {
		msg := ""
		if res.Error != nil {
			msg = *res.Error
		}
		return jsonText(map[string]any{
			"success":    false,
			"error":      msg,
			"audio_path": nil,
			"filename":   nil,
		}), nil
	}
	out := map[string]any{
		"success":     true,
		"audio_path":  res.AudioPath,
		"filename":    res.Filename,
		"sample_rate": res.SampleRate,
		"text_length": res.TextLength,
	}
	if req.GetBool("include_base64", true) {
		out["base64_audio"] = res.Base64Audio
	}
	return jsonText(out), nil
}
