package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"mediagen/internal/catalog"
	"mediagen/internal/imagegen"
	"mediagen/internal/infra"
)

// ImageGenerator runs a generation request. *imagegen.Generator satisfies it.
type ImageGenerator interface {
	Generate(ctx context.Context, req imagegen.GenerateRequest) imagegen.Result
}

// ImageTools serves image_gen_generate, image_gen_list and image_gen_info.
type ImageTools struct {
	Generator       ImageGenerator
	Catalog         *catalog.Catalog
	DefaultSteps    int
	DefaultGuidance float64
	Logger          *infra.Logger
}

// Register adds the image tools to s.
func (t *ImageTools) Register(s *server.MCPServer) {
	if t.Logger == nil {
		t.Logger = infra.NopLogger()
	}
	if t.DefaultSteps <= 0 {
		t.DefaultSteps = imagegen.DefaultSteps
	}
	if t.DefaultGuidance <= 0 {
		t.DefaultGuidance = imagegen.DefaultGuidance
	}
	s.AddTool(t.generateTool(), t.generate)
	s.AddTool(listTool(), t.list)
	s.AddTool(infoTool(), t.info)
}

func aspectNames() []string {
	out := make([]string, 0, len(imagegen.AspectRatios()))
	for _, a := range imagegen.AspectRatios() {
		out = append(out, string(a))
	}
	return out
}

func (t *ImageTools) generateTool() mcp.Tool {
	return mcp.NewTool("image_gen_generate",
		mcp.WithDescription("Generate images from text with FLUX.1 through ComfyUI. "+
			"Returns the absolute paths of the generated files with their metadata, as JSON or Markdown."),
		mcp.WithTitleAnnotation("Generate image with FLUX.1"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
		mcp.WithString("prompt", mcp.Required(),
			mcp.Description("Detailed description of the image (3-2000 characters)."),
			mcp.MinLength(imagegen.MinPromptLength)),
		mcp.WithString("negative_prompt",
			mcp.Description("Elements to avoid."),
			mcp.DefaultString(imagegen.DefaultNegativePrompt)),
		mcp.WithString("aspect_ratio",
			mcp.Description("Preset ratio, or custom to use width and height."),
			mcp.Enum(aspectNames()...),
			mcp.DefaultString(string(imagegen.AspectSquare))),
		mcp.WithNumber("width", mcp.Description("Width in pixels, custom ratio only. Rounded down to a multiple of 64."),
			mcp.Min(imagegen.MinDimension), mcp.Max(imagegen.MaxDimension)),
		mcp.WithNumber("height", mcp.Description("Height in pixels, custom ratio only. Rounded down to a multiple of 64."),
			mcp.Min(imagegen.MinDimension), mcp.Max(imagegen.MaxDimension)),
		mcp.WithNumber("steps", mcp.Description("Sampling steps. FLUX schnell works well with 4-8."),
			mcp.Min(imagegen.MinSteps), mcp.Max(imagegen.MaxSteps), mcp.DefaultNumber(float64(t.DefaultSteps))),
		mcp.WithNumber("guidance_scale", mcp.Description("Guidance scale."),
			mcp.Min(imagegen.MinGuidance), mcp.Max(imagegen.MaxGuidance), mcp.DefaultNumber(t.DefaultGuidance)),
		mcp.WithNumber("seed", mcp.Description("Seed for reproducible output. Random when omitted."),
			mcp.Min(0), mcp.Max(imagegen.MaxSeed)),
		mcp.WithString("output_format", mcp.Enum("png", "jpeg", "webp"), mcp.DefaultString("png")),
		mcp.WithNumber("batch_size", mcp.Description("Images to generate; each uses seed+i."),
			mcp.Min(imagegen.MinBatchSize), mcp.Max(imagegen.MaxBatchSize), mcp.DefaultNumber(1)),
		mcp.WithString("response_format", mcp.Enum("json", "markdown"), mcp.DefaultString("json")),
	)
}

func (t *ImageTools) generate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	format := imagegen.ParseResponseFormat(req.GetString("response_format", ""), imagegen.ResponseJSON)

	aspect, ok := imagegen.ParseAspectRatio(req.GetString("aspect_ratio", string(imagegen.AspectSquare)))
	if !ok {
		aspect = imagegen.AspectSquare
	}
	genReq := imagegen.GenerateRequest{
		Prompt:         req.GetString("prompt", ""),
		NegativePrompt: req.GetString("negative_prompt", ""),
		AspectRatio:    aspect,
		Width:          optionalInt(args, "width"),
		Height:         optionalInt(args, "height"),
		Steps:          optionalInt(args, "steps"),
		GuidanceScale:  req.GetFloat("guidance_scale", t.DefaultGuidance),
		BatchSize:      req.GetInt("batch_size", 1),
		OutputFormat:   imagegen.ParseImageFormat(req.GetString("output_format", "png")),
	}
	if genReq.Steps == nil {
		steps := t.DefaultSteps
		genReq.Steps = &steps
	}
	if f, ok := optionalNumber(args, "seed"); ok {
		seed := int64(f)
		genReq.Seed = &seed
	}

	normalized, err := genReq.Normalize()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t.Logger.Info().Str("prompt", truncateRunes(normalized.Prompt, 60)).Msg("tools: image_gen_generate")

	res := t.Generator.Generate(context.WithoutCancel(ctx), normalized)
	return mcp.NewToolResultText(imagegen.Render(res, format)), nil
}

func listTool() mcp.Tool {
	return mcp.NewTool("image_gen_list",
		mcp.WithDescription("List previously generated images, newest first, with pagination."),
		mcp.WithTitleAnnotation("List generated images"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
		mcp.WithNumber("limit", mcp.Min(1), mcp.Max(catalog.MaxLimit), mcp.DefaultNumber(catalog.DefaultLimit)),
		mcp.WithNumber("offset", mcp.Min(0), mcp.DefaultNumber(0)),
		mcp.WithString("response_format", mcp.Enum("json", "markdown"), mcp.DefaultString("markdown")),
	)
}

func (t *ImageTools) list(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	asJSON := imagegen.ParseResponseFormat(req.GetString("response_format", ""), imagegen.ResponseMarkdown) == imagegen.ResponseJSON
	limit := clamp(req.GetInt("limit", catalog.DefaultLimit), 1, catalog.MaxLimit)
	offset := max(req.GetInt("offset", 0), 0)

	page, err := t.Catalog.List(offset, limit)
	if err != nil {
		t.Logger.Error().Err(err).Msg("tools: image_gen_list")
		return mcp.NewToolResultText(catalog.RenderError(err.Error(), asJSON)), nil
	}
	return mcp.NewToolResultText(catalog.RenderPage(page, asJSON)), nil
}

func infoTool() mcp.Tool {
	return mcp.NewTool("image_gen_info",
		mcp.WithDescription("Read metadata of a generated image: dimensions, format, color mode and size. "+
			"Accepts an absolute path or a file name inside the output directory."),
		mcp.WithTitleAnnotation("Get image info"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
		mcp.WithString("image_path", mcp.Required(), mcp.Description("Absolute path or file name.")),
		mcp.WithString("response_format", mcp.Enum("json", "markdown"), mcp.DefaultString("markdown")),
	)
}

func (t *ImageTools) info(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	asJSON := imagegen.ParseResponseFormat(req.GetString("response_format", ""), imagegen.ResponseMarkdown) == imagegen.ResponseJSON
	p := req.GetString("image_path", "")

	info, err := t.Catalog.Info(p)
	var decodeErr *catalog.DecodeError
	switch {
	case err == nil:
		return mcp.NewToolResultText(catalog.RenderInfo(info, asJSON)), nil
	case errors.Is(err, catalog.ErrNotFound):
		msg := fmt.Sprintf("Image not found: '%s'. Check the path or use image_gen_list to see available images.", p)
		return mcp.NewToolResultText(catalog.RenderError(msg, asJSON)), nil
	case errors.As(err, &decodeErr):
		t.Logger.Warn().Err(err).Str("path", decodeErr.Path).Msg("tools: unreadable image")
		msg := fmt.Sprintf("Could not read the image: %v. Check that the file is a valid image (PNG, JPEG, WEBP).", decodeErr.Err)
		return mcp.NewToolResultText(catalog.RenderError(msg, asJSON)), nil
	default:
		return mcp.NewToolResultText(catalog.RenderError(err.Error(), asJSON)), nil
	}
}
