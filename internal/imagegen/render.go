package imagegen

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const markdownPromptPreview = 100

// Render serializes a result for tool callers.
func Render(res Result, format ResponseFormat) string {
	if format == ResponseJSON {
		return renderJSON(res)
	}
	if !res.Success {
		msg := ""
		if res.Error != nil {
			msg = *res.Error
		}
		return "## Generation Error\n\n" + msg
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Generated Images (%d)\n", res.TotalGenerated)
	for i, img := range res.Images {
		fmt.Fprintf(&b, "\n### Image %d\n", i+1)
		fmt.Fprintf(&b, "- **File**: `%s`\n", img.ImagePath)
		fmt.Fprintf(&b, "- **Dimensions**: %d×%dpx\n", img.Width, img.Height)
		fmt.Fprintf(&b, "- **Format**: %s\n", strings.ToUpper(img.Format))
		fmt.Fprintf(&b, "- **Seed**: `%d`\n", img.Seed)
		fmt.Fprintf(&b, "- **Steps**: %d\n", img.Steps)
		fmt.Fprintf(&b, "- **Size**: %s\n", FormatFileSize(img.FileSizeBytes))
		fmt.Fprintf(&b, "- **Time**: %dms\n", img.GenerationTimeMS)
		fmt.Fprintf(&b, "- **Prompt**: *%s*\n", previewPrompt(img.Prompt))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderJSON(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"success": false, "error": %q}`, err.Error())
	}
	return string(out)
}

func previewPrompt(p string) string {
	if utf8.RuneCountInString(p) <= markdownPromptPreview {
		return p
	}
	return string([]rune(p)[:markdownPromptPreview]) + "..."
}
