package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mediagen/internal/providers/n8n"
)

func workflowCmd(s *settings, ui *ui) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage generator workflows in n8n",
	}
	cmd.AddCommand(workflowCreateCmd(s, ui))
	cmd.AddCommand(workflowSyncCmd(s, ui))
	cmd.AddCommand(workflowTriggerCmd(s, ui))
	cmd.AddCommand(workflowListCmd(s, ui))
	return cmd
}

func templateFlag(cmd *cobra.Command, kind *string) {
	cmd.Flags().StringVar(kind, "kind", "image", "Generator kind: image or audio")
}

func resolveTemplate(s *settings, kind, url string) (n8n.Template, string, error) {
	tpl, ok := n8n.TemplateFor(kind)
	if !ok {
		return n8n.Template{}, "", fmt.Errorf("unknown kind %q (want image or audio)", kind)
	}
	if url == "" {
		url = s.generatorURL(kind)
	}
	return tpl, url, nil
}

func workflowCreateCmd(s *settings, ui *ui) *cobra.Command {
	var kind, url string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create and activate a generator workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, url, err := resolveTemplate(s, kind, url)
			if err != nil {
				return err
			}
			res, err := s.client().Provision(cmd.Context(), tpl, url)
			if err != nil {
				return hint(err)
			}
			return printProvision(cmd, s, ui, res)
		},
	}
	templateFlag(cmd, &kind)
	cmd.Flags().StringVar(&url, "generator-url", "", "Generator REST endpoint (defaults to N8N_MCP_IMAGE_GEN_URL / N8N_MCP_AUDIO_GEN_URL)")
	return cmd
}

func workflowSyncCmd(s *settings, ui *ui) *cobra.Command {
	var kind, url string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Create the workflow, or patch and reactivate the existing one",
		Long: "sync looks the workflow up by name. Duplicates are deleted and the workflow is recreated; " +
			"a single match is patched to point at the generator URL and respond with its output.",
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, url, err := resolveTemplate(s, kind, url)
			if err != nil {
				return err
			}
			res, err := s.client().Sync(cmd.Context(), tpl, url)
			if err != nil {
				return hint(err)
			}
			return printProvision(cmd, s, ui, res)
		},
	}
	templateFlag(cmd, &kind)
	cmd.Flags().StringVar(&url, "generator-url", "", "Generator REST endpoint")
	return cmd
}

func workflowTriggerCmd(s *settings, ui *ui) *cobra.Command {
	var kind, path string
	var full bool
	cmd := &cobra.Command{
		Use:   "trigger <prompt>",
		Short: "Call a workflow webhook with a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				tpl, ok := n8n.TemplateFor(kind)
				if !ok {
					return fmt.Errorf("unknown kind %q (want image or audio)", kind)
				}
				path = tpl.WebhookPath
			}
			res, err := s.client().TriggerWebhook(cmd.Context(), path, args[0], full)
			if err != nil {
				return err
			}
			if s.asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			out := cmd.OutOrStdout()
			status := ui.ok("OK")
			if !res.Success {
				status = ui.err("FAILED")
			}
			fmt.Fprintf(out, "%s %s %s\n", status, ui.dim(res.WebhookURL), ui.dim(fmt.Sprintf("(HTTP %d)", res.StatusCode)))
			fmt.Fprintln(out, ui.info(res.Validation))
			if !res.Success {
				return errors.New("webhook call failed")
			}
			return nil
		},
	}
	templateFlag(cmd, &kind)
	cmd.Flags().StringVar(&path, "path", "", "Webhook path or full URL (defaults to the kind's path)")
	cmd.Flags().BoolVar(&full, "full-url", false, "Treat --path as a full URL")
	return cmd
}

func workflowListCmd(s *settings, ui *ui) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List n8n workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			workflows, err := s.client().ListWorkflows(cmd.Context(), !all)
			if err != nil {
				return hint(err)
			}
			if s.asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"total": len(workflows), "workflows": workflows})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.title(fmt.Sprintf("%d workflow(s)", len(workflows))))
			for _, wf := range workflows {
				state := ui.dim("inactive")
				if wf.Active {
					state = ui.ok("active")
				}
				fmt.Fprintf(out, "  %-10s %-8s %s\n", wf.ID, state, wf.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include inactive workflows")
	return cmd
}

func printProvision(cmd *cobra.Command, s *settings, ui *ui, res n8n.ProvisionResult) error {
	if s.asJSON {
		return printJSON(cmd.OutOrStdout(), res)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", ui.ok("[OK]"), res.Message)
	fmt.Fprintf(out, "  %s %s\n", ui.dim("workflow:"), res.WorkflowID)
	fmt.Fprintf(out, "  %s %s\n", ui.dim("webhook: "), res.WebhookURL)
	if !res.Activated {
		fmt.Fprintln(out, ui.warn("  workflow is not active; activate it in the n8n editor"))
	}
	return nil
}

func hint(err error) error {
	switch {
	case errors.Is(err, n8n.ErrMissingAPIKey):
		return fmt.Errorf("%w: set N8N_MCP_API_KEY or pass --api-key", err)
	case errors.Is(err, n8n.ErrUnauthorized):
		return fmt.Errorf("%w: check N8N_MCP_API_KEY", err)
	}
	return err
}
