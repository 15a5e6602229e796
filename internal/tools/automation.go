package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"mediagen/internal/infra"
	"mediagen/internal/providers/n8n"
)

const maxAutomationPrompt = 2000

// AutomationTools serves the n8n tools.
type AutomationTools struct {
	Client *n8n.Client
	// ImageGenURL is the generator endpoint wired into created workflows
	// when the caller gives none.
	ImageGenURL string
	Logger      *infra.Logger
}

// Register adds the automation tools to s.
func (t *AutomationTools) Register(s *server.MCPServer) {
	if t.Logger == nil {
		t.Logger = infra.NopLogger()
	}
	if t.ImageGenURL == "" {
		t.ImageGenURL = n8n.ImageTemplate.GeneratorURL
	}
	s.AddTool(triggerTool(), t.trigger)
	s.AddTool(listWorkflowsTool(), t.listWorkflows)
	s.AddTool(t.createTool(), t.create)
}

func triggerTool() mcp.Tool {
	return mcp.NewTool("n8n_trigger_image_workflow",
		mcp.WithDescription("Trigger an n8n workflow through its webhook to generate an image. "+
			"The prompt is sent as {\"prompt\", \"description\"}; the response is checked for image data or success."),
		mcp.WithTitleAnnotation("Generate image via n8n"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
		mcp.WithString("webhook_path", mcp.Required(),
			mcp.Description("Webhook path in n8n, e.g. 'generate-image', or a full URL with use_full_url."),
			mcp.MinLength(1)),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Image prompt (1-2000 characters)."),
			mcp.MinLength(1)),
		mcp.WithBoolean("use_full_url", mcp.Description("Treat webhook_path as a complete URL."),
			mcp.DefaultBool(false)),
	)
}

func (t *AutomationTools) trigger(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := strings.TrimSpace(req.GetString("webhook_path", ""))
	prompt := strings.TrimSpace(req.GetString("prompt", ""))
	if path == "" {
		return mcp.NewToolResultError("webhook_path is required"), nil
	}
	if prompt == "" {
		return mcp.NewToolResultError("prompt is required"), nil
	}
	prompt = truncateRunes(prompt, maxAutomationPrompt)

	res, err := t.Client.TriggerWebhook(context.WithoutCancel(ctx), path, prompt, req.GetBool("use_full_url", false))
	if err != nil {
		t.Logger.Error().Err(err).Str("webhook_path", path).Msg("tools: webhook trigger failed")
		return errorJSON(err.Error()), nil
	}
	return jsonText(res), nil
}

func listWorkflowsTool() mcp.Tool {
	return mcp.NewTool("n8n_list_workflows",
		mcp.WithDescription("List workflows of the n8n instance (needs a valid API key). "+
			"Useful to find ids and names when wiring the image webhook."),
		mcp.WithTitleAnnotation("List n8n workflows"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
		mcp.WithBoolean("active_only", mcp.Description("Only return active workflows."), mcp.DefaultBool(true)),
	)
}

func (t *AutomationTools) listWorkflows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflows, err := t.Client.ListWorkflows(ctx, req.GetBool("active_only", true))
	if err != nil {
		return errorJSON(describeAPIError(err)), nil
	}
	return jsonText(map[string]any{
		"total":     len(workflows),
		"workflows": workflows,
	}), nil
}

func (t *AutomationTools) createTool() mcp.Tool {
	return mcp.NewTool("n8n_create_image_workflow",
		mcp.WithDescription("Create and activate an n8n workflow: Webhook (POST generate-image) -> "+
			"HTTP Request to the image generator -> Respond to Webhook."),
		mcp.WithTitleAnnotation("Create image generation test workflow"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
		mcp.WithString("image_gen_url", mcp.Description("REST endpoint of the image generator."),
			mcp.DefaultString(t.ImageGenURL)),
	)
}

func (t *AutomationTools) create(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target := strings.TrimSpace(req.GetString("image_gen_url", ""))
	if target == "" {
		target = t.ImageGenURL
	}
	res, err := t.Client.Provision(context.WithoutCancel(ctx), n8n.ImageTemplate, target)
	if err != nil {
		return errorJSON(describeAPIError(err)), nil
	}
	return jsonText(res), nil
}

// describeAPIError adds configuration hints to the common failures.
func describeAPIError(err error) string {
	switch {
	case errors.Is(err, n8n.ErrMissingAPIKey):
		return "N8N_MCP_API_KEY is not set. Add your n8n API key to .env."
	case errors.Is(err, n8n.ErrUnauthorized):
		return "API key invalid or expired. Check N8N_MCP_API_KEY."
	default:
		return err.Error()
	}
}

func errorJSON(msg string) *mcp.CallToolResult {
	return jsonText(map[string]any{"success": false, "error": msg})
}
