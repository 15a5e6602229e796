package n8n

import "strings"

const (
	nodeWebhook = "n8n-nodes-base.webhook"
	nodeHTTP    = "n8n-nodes-base.httpRequest"
	nodeRespond = "n8n-nodes-base.respondToWebhook"

	respondFirstItem = "firstIncomingItem"
)

// Node is one step of an n8n workflow.
type Node struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	TypeVersion float64        `json:"typeVersion"`
	Position    []float64      `json:"position"`
	Parameters  map[string]any `json:"parameters"`
	WebhookID   string         `json:"webhookId,omitempty"`
	Credentials map[string]any `json:"credentials,omitempty"`
}

// Connection links the main output of one node to another node.
type Connection struct {
	Node  string `json:"node"`
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// Workflow mirrors the public API representation. Connections are keyed by
// source node name, then output type.
type Workflow struct {
	ID          string                               `json:"id,omitempty"`
	Name        string                               `json:"name"`
	Active      bool                                 `json:"active,omitempty"`
	Nodes       []Node                               `json:"nodes"`
	Connections map[string]map[string][][]Connection `json:"connections"`
	Settings    map[string]any                       `json:"settings"`
}

// Template describes a Webhook → HTTP Request → Respond to Webhook workflow
// that forwards the webhook body to a generator's REST endpoint.
type Template struct {
	Name         string
	WebhookPath  string
	GeneratorURL string
	nodeIDs      [3]string
}

var (
	// ImageTemplate forwards to the image REST service.
	ImageTemplate = Template{
		Name:         "Image Gen Test",
		WebhookPath:  "generate-image",
		GeneratorURL: "http://host.docker.internal:8002/generate",
		nodeIDs:      [3]string{"w1", "h1", "r1"},
	}
	// AudioTemplate forwards to the audio REST service.
	AudioTemplate = Template{
		Name:         "Audio Gen Test",
		WebhookPath:  "generate-audio",
		GeneratorURL: "http://host.docker.internal:8004/generate",
		nodeIDs:      [3]string{"wa1", "ha1", "ra1"},
	}
)

// TemplateFor returns the template of a media kind ("image" or "audio").
func TemplateFor(kind string) (Template, bool) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "image":
		return ImageTemplate, true
	case "audio":
		return AudioTemplate, true
	}
	return Template{}, false
}

// Build renders the workflow. An empty generatorURL uses the template default.
func (t Template) Build(generatorURL string) Workflow {
	if strings.TrimSpace(generatorURL) == "" {
		generatorURL = t.GeneratorURL
	}
	webhookID, httpID, respondID := t.nodeIDs[0], t.nodeIDs[1], t.nodeIDs[2]
	return Workflow{
		Name: t.Name,
		Nodes: []Node{
			{
				ID:          webhookID,
				Name:        "Webhook",
				Type:        nodeWebhook,
				TypeVersion: 2,
				Position:    []float64{0, 0},
				Parameters: map[string]any{
					"path":           t.WebhookPath,
					"httpMethod":     "POST",
					"responseMode":   "responseNode",
					"responseNodeId": respondID,
				},
			},
			{
				ID:          httpID,
				Name:        "HTTP Request",
				Type:        nodeHTTP,
				TypeVersion: 4.2,
				Position:    []float64{280, 0},
				Parameters: map[string]any{
					"method":      "POST",
					"url":         generatorURL,
					"sendBody":    true,
					"specifyBody": "json",
					"jsonBody":    "={{ JSON.stringify($json.body || $json) }}",
				},
			},
			{
				ID:          respondID,
				Name:        "Respond to Webhook",
				Type:        nodeRespond,
				TypeVersion: 1.1,
				Position:    []float64{560, 0},
				Parameters:  map[string]any{"respondWith": respondFirstItem},
			},
		},
		Connections: map[string]map[string][][]Connection{
			"Webhook":      {"main": {{{Node: "HTTP Request", Type: "main", Index: 0}}}},
			"HTTP Request": {"main": {{{Node: "Respond to Webhook", Type: "main", Index: 0}}}},
		},
		Settings: map[string]any{},
	}
}

// Patch points every HTTP Request node at generatorURL and makes Respond to
// Webhook nodes return the first incoming item. It reports whether anything
// changed.
func Patch(wf *Workflow, generatorURL string) bool {
	changed := false
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		if n.Parameters == nil {
			continue
		}
		switch n.Type {
		case nodeHTTP:
			if url, _ := n.Parameters["url"].(string); generatorURL != "" && url != generatorURL {
				n.Parameters["url"] = generatorURL
				changed = true
			}
		case nodeRespond:
			if mode, _ := n.Parameters["respondWith"].(string); mode != respondFirstItem {
				n.Parameters["respondWith"] = respondFirstItem
				delete(n.Parameters, "responseBody")
				changed = true
			}
		}
	}
	return changed
}
