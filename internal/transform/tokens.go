package transform

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	"github.com/n0madic/claude-chatmock/internal/types"
)

// EstimateInputTokens approximates the prompt size as a quarter of the
// character length of the instructions plus every serialized input item.
// Items are measured as JSON with ", " and ": " separators.
func EstimateInputTokens(instructions string, items []types.ResponsesInputItem) int {
	chars := utf8.RuneCountInString(instructions)
	for _, item := range items {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(item); err != nil {
			continue
		}
		chars += spacedJSONLen(bytes.TrimRight(buf.Bytes(), "\n"))
	}
	return chars / 4
}

// spacedJSONLen returns the rune length of compact JSON once a space follows
// every separator outside string literals.
func spacedJSONLen(compact []byte) int {
	n := utf8.RuneCount(compact)
	inString, escaped := false, false
	for _, c := range compact {
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && (c == ',' || c == ':'):
			n++
		}
	}
	return n
}
