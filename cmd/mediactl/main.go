// Command mediactl manages the n8n workflows wired to the generators and
// inspects generated images.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mediagen/internal/infra"
	"mediagen/internal/providers/n8n"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

// settings are resolved from the environment first and overridden by flags.
type settings struct {
	baseURL     string
	apiKey      string
	imageGenURL string
	audioGenURL string
	timeout     time.Duration
	asJSON      bool
}

func (s *settings) client() *n8n.Client {
	return n8n.NewClient(n8n.Options{BaseURL: s.baseURL, APIKey: s.apiKey, APITimeout: s.timeout})
}

func (s *settings) generatorURL(kind string) string {
	if kind == "audio" {
		return s.audioGenURL
	}
	return s.imageGenURL
}

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ui := newUI()
	root := newRootCmd(ui)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, ui.err("[ERROR]"), err.Error())
		return 1
	}
	return 0
}

func newRootCmd(ui *ui) *cobra.Command {
	cfg, _ := infra.LoadAutomationConfig()
	s := &settings{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		imageGenURL: cfg.ImageGenURL,
		audioGenURL: cfg.AudioGenURL,
		timeout:     30 * time.Second,
	}

	root := &cobra.Command{
		Use:   "mediactl",
		Short: "mediagen CLI",
		Long:  "mediactl provisions and tests the n8n workflows that call the image and audio generators.",
	}
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&s.baseURL, "n8n-url", s.baseURL, "n8n base URL (N8N_MCP_BASE_URL)")
	root.PersistentFlags().StringVar(&s.apiKey, "api-key", s.apiKey, "n8n API key (N8N_MCP_API_KEY)")
	root.PersistentFlags().DurationVar(&s.timeout, "timeout", s.timeout, "n8n API timeout")
	root.PersistentFlags().BoolVar(&s.asJSON, "json", false, "Print raw JSON")

	root.AddCommand(workflowCmd(s, ui))
	root.AddCommand(imagesCmd(s, ui))
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
