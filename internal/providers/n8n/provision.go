package n8n

import (
	"context"
	"fmt"
)

// ProvisionResult reports a created or synced workflow.
type ProvisionResult struct {
	Success    bool   `json:"success"`
	WorkflowID string `json:"workflow_id"`
	WebhookURL string `json:"webhook_url"`
	Activated  bool   `json:"activated"`
	Created    bool   `json:"created"`
	Updated    bool   `json:"updated"`
	Removed    int    `json:"duplicates_removed,omitempty"`
	Message    string `json:"message"`
}

// Provision creates the template workflow and activates it. A failed
// activation is reported in the result, not as an error, because the
// workflow exists and can be activated by hand.
func (c *Client) Provision(ctx context.Context, t Template, generatorURL string) (ProvisionResult, error) {
	id, err := c.CreateWorkflow(ctx, t.Build(generatorURL))
	if err != nil {
		return ProvisionResult{}, err
	}
	res := ProvisionResult{
		Success:    true,
		WorkflowID: id,
		WebhookURL: c.WebhookURL(t.WebhookPath, false),
		Created:    true,
	}
	c.activate(ctx, &res)
	return res, nil
}

// Sync makes exactly one workflow named t.Name exist, pointing at
// generatorURL, and activates it. Duplicates are deleted and recreated from
// the template; a single existing workflow is patched in place.
func (c *Client) Sync(ctx context.Context, t Template, generatorURL string) (ProvisionResult, error) {
	if generatorURL == "" {
		generatorURL = t.GeneratorURL
	}
	matches, err := c.FindByName(ctx, t.Name)
	if err != nil {
		return ProvisionResult{}, err
	}
	removed := 0
	if len(matches) > 1 {
		for _, w := range matches {
			if err := c.DeleteWorkflow(ctx, w.ID); err != nil {
				c.logger.Warn().Err(err).Str("workflow_id", w.ID).Msg("n8n: could not delete duplicate")
				continue
			}
			removed++
		}
		matches = nil
	}
	if len(matches) == 0 {
		res, err := c.Provision(ctx, t, generatorURL)
		res.Removed = removed
		return res, err
	}

	id := matches[0].ID
	wf, err := c.GetWorkflow(ctx, id)
	if err != nil {
		return ProvisionResult{}, err
	}
	res := ProvisionResult{
		Success:    true,
		WorkflowID: id,
		WebhookURL: c.WebhookURL(t.WebhookPath, false),
	}
	if Patch(&wf, generatorURL) {
		if err := c.UpdateWorkflow(ctx, id, wf); err != nil {
			return ProvisionResult{}, fmt.Errorf("n8n: save workflow %s: %w", id, err)
		}
		res.Updated = true
	}
	c.activate(ctx, &res)
	return res, nil
}

func (c *Client) activate(ctx context.Context, res *ProvisionResult) {
	if err := c.ActivateWorkflow(ctx, res.WorkflowID); err != nil {
		c.logger.Warn().Err(err).Str("workflow_id", res.WorkflowID).Msg("n8n: activation failed")
		res.Message = "Workflow saved but not activated; enable it in the n8n editor."
		return
	}
	res.Activated = true
	res.Message = "Workflow saved and activated."
}
