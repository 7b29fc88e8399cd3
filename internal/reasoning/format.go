package reasoning

import (
	"strings"

	"github.com/n0madic/claude-chatmock/internal/types"
)

// Compat modes for rendering reasoning to clients that have no native
// reasoning channel.
const (
	CompatThinkTags = "think-tags"
	CompatO3        = "o3"
	CompatLegacy    = "legacy"
	CompatCurrent   = "current"
)

// NormalizeCompat lower-cases mode and falls back to think-tags.
func NormalizeCompat(mode string) string {
	switch m := strings.ToLower(strings.TrimSpace(mode)); m {
	case CompatO3, CompatLegacy, CompatCurrent:
		return m
	default:
		return CompatThinkTags
	}
}

// ApplyReasoningToMessage adds reasoning text to a non-streaming chat message
// based on the compat mode.
func ApplyReasoningToMessage(message *types.ChatResponseMsg, reasoningText, compat string) {
	if reasoningText == "" {
		return
	}
	switch NormalizeCompat(compat) {
	case CompatO3:
		message.Reasoning = types.ReasoningContent{
			Content: []types.ReasoningPart{{Type: "text", Text: reasoningText}},
		}
	case CompatLegacy, CompatCurrent:
		message.ReasoningSummary = reasoningText
	default:
		message.Content = "<think>" + reasoningText + "</think>" + message.Content
	}
}

// ThinkTags wraps streamed reasoning in a single <think>...</think> span
// ahead of the answer text. The zero value is ready to use.
type ThinkTags struct {
	open   bool
	closed bool
}

// Reasoning returns the text to emit for a reasoning delta. Reasoning that
// arrives after the answer started is dropped.
func (t *ThinkTags) Reasoning(delta string) string {
	if t.closed {
		return ""
	}
	if !t.open {
		t.open = true
		return "<think>" + delta
	}
	return delta
}

// Text returns the text to emit for an answer delta, closing an open span.
func (t *ThinkTags) Text(delta string) string {
	if t.open && !t.closed {
		t.closed = true
		return "</think>" + delta
	}
	t.closed = true
	return delta
}

// Close returns the closing tag if a span is still open.
func (t *ThinkTags) Close() string {
	if t.open && !t.closed {
		t.closed = true
		return "</think>"
	}
	return ""
}
