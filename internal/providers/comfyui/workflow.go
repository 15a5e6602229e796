package comfyui

// Node is one step of a backend workflow graph. Inputs hold literal values or
// links of the form []any{nodeID, outputIndex}.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// Workflow maps node ids to nodes. encoding/json sorts map keys, so the same
// workflow always marshals to the same bytes.
type Workflow map[string]Node

// DefaultFilenamePrefix is used by SaveImage when FluxParams leaves it empty.
const DefaultFilenamePrefix = "flux_mcp"

// FluxParams are the inputs of the text-to-image graph.
type FluxParams struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	Guidance       float64
	Seed           int64
	Checkpoint     string
	FilenamePrefix string
}

func link(node string, output int) []any {
	return []any{node, output}
}

// BuildFluxWorkflow returns the checkpoint → encode → sample → decode → save
// graph. It is a pure function of p.
func BuildFluxWorkflow(p FluxParams) Workflow {
	prefix := p.FilenamePrefix
	if prefix == "" {
		prefix = DefaultFilenamePrefix
	}
	return Workflow{
		"1": {
			ClassType: "CheckpointLoaderSimple",
			Inputs:    map[string]any{"ckpt_name": p.Checkpoint},
		},
		"2": {
			ClassType: "CLIPTextEncode",
			Inputs:    map[string]any{"text": p.Prompt, "clip": link("1", 1)},
		},
		"3": {
			ClassType: "CLIPTextEncode",
			Inputs:    map[string]any{"text": p.NegativePrompt, "clip": link("1", 1)},
		},
		"4": {
			ClassType: "EmptyLatentImage",
			Inputs:    map[string]any{"width": p.Width, "height": p.Height, "batch_size": 1},
		},
		"5": {
			ClassType: "FluxGuidance",
			Inputs:    map[string]any{"conditioning": link("2", 0), "guidance": p.Guidance},
		},
		"6": {
			ClassType: "KSampler",
			Inputs: map[string]any{
				"model":        link("1", 0),
				"positive":     link("5", 0),
				"negative":     link("3", 0),
				"latent_image": link("4", 0),
				"seed":         p.Seed,
				"steps":        p.Steps,
				"cfg":          1.0,
				"sampler_name": "euler",
				"scheduler":    "simple",
				"denoise":      1.0,
			},
		},
		"7": {
			ClassType: "VAEDecode",
			Inputs:    map[string]any{"samples": link("6", 0), "vae": link("1", 2)},
		},
		"8": {
			ClassType: "SaveImage",
			Inputs:    map[string]any{"images": link("7", 0), "filename_prefix": prefix},
		},
	}
}
