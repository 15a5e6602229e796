package comfyui

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestBuildFluxWorkflowIsDeterministic(t *testing.T) {
	p := FluxParams{
		Prompt:         "a lighthouse at dusk",
		NegativePrompt: "blurry",
		Width:          2048,
		Height:         2048,
		Steps:          8,
		Guidance:       4,
		Seed:           42,
		Checkpoint:     "flux1-schnell-fp8.safetensors",
	}
	a, err := json.Marshal(BuildFluxWorkflow(p))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := json.Marshal(BuildFluxWorkflow(p))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("workflow bytes differ between builds")
	}
}

func TestBuildFluxWorkflowGraph(t *testing.T) {
	wf := BuildFluxWorkflow(FluxParams{Prompt: "p", NegativePrompt: "n", Width: 1024, Height: 512, Steps: 4, Guidance: 3.5, Seed: 7, Checkpoint: "ckpt"})

	wantClasses := map[string]string{
		"1": "CheckpointLoaderSimple",
		"2": "CLIPTextEncode",
		"3": "CLIPTextEncode",
		"4": "EmptyLatentImage",
		"5": "FluxGuidance",
		"6": "KSampler",
		"7": "VAEDecode",
		"8": "SaveImage",
	}
	if len(wf) != len(wantClasses) {
		t.Fatalf("node count = %d, want %d", len(wf), len(wantClasses))
	}
	for id, class := range wantClasses {
		if wf[id].ClassType != class {
			t.Fatalf("node %s class = %q, want %q", id, wf[id].ClassType, class)
		}
	}

	sampler := wf["6"].Inputs
	if sampler["seed"] != int64(7) || sampler["steps"] != 4 || sampler["cfg"] != 1.0 {
		t.Fatalf("sampler inputs = %+v", sampler)
	}
	if sampler["sampler_name"] != "euler" || sampler["scheduler"] != "simple" {
		t.Fatalf("sampler settings = %+v", sampler)
	}
	pos, ok := sampler["positive"].([]any)
	if !ok || pos[0] != "5" || pos[1] != 0 {
		t.Fatalf("positive link = %#v, want [5 0]", sampler["positive"])
	}
	latent := wf["4"].Inputs
	if latent["width"] != 1024 || latent["height"] != 512 || latent["batch_size"] != 1 {
		t.Fatalf("latent inputs = %+v", latent)
	}
	if wf["5"].Inputs["guidance"] != 3.5 {
		t.Fatalf("guidance = %v", wf["5"].Inputs["guidance"])
	}
	if wf["8"].Inputs["filename_prefix"] != DefaultFilenamePrefix {
		t.Fatalf("filename_prefix = %v", wf["8"].Inputs["filename_prefix"])
	}
	if wf["2"].Inputs["text"] != "p" || wf["3"].Inputs["text"] != "n" {
		t.Fatalf("prompts not wired to the encoders")
	}
}
