package pipeline

import (
	"strings"

	"github.com/valyala/fasttemplate"
)

const (
	captionPlaceholder = "{caption}"
	tagsPlaceholder    = "{tags}"
)

// BuildRefinePrompt combines the refine instruction with the primary caption
// and any tag-model output. A template containing {caption} or {tags} is
// substituted; otherwise the parts are joined line by line.
func BuildRefinePrompt(refine, caption string, tags []string) string {
	tagText := strings.Join(tags, "\n")
	if strings.Contains(refine, captionPlaceholder) || strings.Contains(refine, tagsPlaceholder) {
		return fasttemplate.ExecuteStringStd(refine, "{", "}", map[string]interface{}{
			"caption": caption,
			"tags":    tagText,
		})
	}
	out := refine + "\n" + caption
	if len(tags) > 0 {
		out += "\n" + tagText
	}
	return out
}
