package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mediagen/internal/catalog"
	"mediagen/pkg/zip"
)

func defaultImageDir() string {
	if v := os.Getenv("IMAGE_MCP_OUTPUT_DIR"); v != "" {
		return v
	}
	return "./outputs/images"
}

func imagesCmd(s *settings, ui *ui) *cobra.Command {
	dir := defaultImageDir()
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Inspect generated images",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", dir, "Image output directory (IMAGE_MCP_OUTPUT_DIR)")

	var offset, limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List generated images, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := catalog.New(dir).List(offset, limit)
			if err != nil {
				return err
			}
			if s.asJSON {
				return printJSON(cmd.OutOrStdout(), page)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.title(fmt.Sprintf("%d of %d image(s) in %s", page.Count, page.Total, dir)))
			for _, e := range page.Images {
				fmt.Fprintf(out, "  %-40s %10s  %s\n", e.Filename, e.FileSize, ui.dim(e.ModifiedAt))
			}
			if page.NextOffset != nil {
				fmt.Fprintln(out, ui.dim(fmt.Sprintf("more: --offset %d", *page.NextOffset)))
			}
			return nil
		},
	}
	list.Flags().IntVar(&offset, "offset", 0, "Entries to skip")
	list.Flags().IntVar(&limit, "limit", catalog.DefaultLimit, "Entries to show (1-100)")

	info := &cobra.Command{
		Use:   "info <path>",
		Short: "Show dimensions, format and size of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := catalog.New(dir).Info(args[0])
			if errors.Is(err, catalog.ErrNotFound) {
				return fmt.Errorf("image not found: %s", args[0])
			}
			if err != nil {
				return err
			}
			if s.asJSON {
				return printJSON(cmd.OutOrStdout(), in)
			}
			fmt.Fprint(cmd.OutOrStdout(), catalog.RenderInfo(in, false))
			return nil
		},
	}

	var exportLimit int
	export := &cobra.Command{
		Use:   "export <archive.zip>",
		Short: "Bundle the newest images into a zip archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := catalog.New(dir).List(0, exportLimit)
			if err != nil {
				return err
			}
			if page.Count == 0 {
				return fmt.Errorf("no images in %s", dir)
			}
			files := make([]zip.File, 0, page.Count)
			for _, e := range page.Images {
				files = append(files, zip.File{Path: e.ImagePath})
			}
			out, err := os.Create(args[0])
			if err != nil {
				return err
			}
			n, err := zip.Archive(out, files)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d image(s) written to %s\n", ui.ok("[OK]"), n, args[0])
			return nil
		},
	}
	export.Flags().IntVar(&exportLimit, "limit", catalog.MaxLimit, "Newest images to include (1-100)")

	cmd.AddCommand(list, info, export)
	return cmd
}
