package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RenderPage formats a listing as indented JSON or Markdown.
func RenderPage(p Page, asJSON bool) string {
	if asJSON {
		return mustJSON(p)
	}
	if p.Total == 0 {
		return "## Generated Images\n\n*No images in the output directory.*"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Generated Images (%d total, showing %d)\n\n", p.Total, p.Count)
	for _, img := range p.Images {
		fmt.Fprintf(&b, "- **%s** (%s, %s)\n", img.Filename, img.FileSize, img.ModifiedAt)
		fmt.Fprintf(&b, "  `%s`\n", img.ImagePath)
	}
	if p.HasMore && p.NextOffset != nil {
		fmt.Fprintf(&b, "\n*Use offset=%d to see more.*", *p.NextOffset)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderInfo formats image metadata as indented JSON or Markdown.
func RenderInfo(i Info, asJSON bool) string {
	if asJSON {
		return mustJSON(i)
	}
	return fmt.Sprintf("## Info: %s\n\n"+
		"- **Dimensions**: %d×%dpx\n"+
		"- **Format**: %s (%s)\n"+
		"- **File size**: %s\n"+
		"- **Modified**: %s\n"+
		"- **Path**: `%s`",
		i.Filename, i.Width, i.Height, i.Format, i.Mode, i.FileSize, i.ModifiedAt, i.ImagePath)
}

// RenderError formats a lookup failure.
func RenderError(msg string, asJSON bool) string {
	if asJSON {
		return mustJSON(map[string]string{"error": msg})
	}
	return "## Error\n\n" + msg
}

func mustJSON(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(out)
}
