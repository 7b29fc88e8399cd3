package transform

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ComposeInstructions appends the trimmed system prompt and each non-empty
// context (as "Context:\n<text>") to base, separated by blank lines. The
// base is returned unchanged when there is nothing to add.
func ComposeInstructions(base, system string, contexts ...string) string {
	var extras []string
	if s := strings.TrimSpace(system); s != "" {
		extras = append(extras, s)
	}
	for _, c := range contexts {
		if c = strings.TrimSpace(c); c != "" {
			extras = append(extras, "Context:\n"+c)
		}
	}
	if len(extras) == 0 {
		return base
	}
	joined := strings.Join(extras, "\n\n")
	base = strings.TrimRight(base, "\n")
	if base == "" {
		return joined
	}
	return base + "\n\n" + joined
}

// SystemText extracts a system prompt given as a string or as a list of
// text blocks.
func SystemText(system gjson.Result) string {
	if system.Type == gjson.String {
		return system.Str
	}
	if !system.IsArray() {
		return ""
	}
	var parts []string
	for _, block := range system.Array() {
		if block.Type == gjson.String {
			parts = append(parts, block.Str)
			continue
		}
		if t := block.Get("text"); t.Type == gjson.String && t.Str != "" {
			parts = append(parts, t.Str)
		}
	}
	return strings.Join(parts, "\n\n")
}
