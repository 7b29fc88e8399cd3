package transform

import (
	"github.com/tidwall/gjson"

	"github.com/n0madic/claude-chatmock/internal/models"
	"github.com/n0madic/claude-chatmock/internal/reasoning"
	"github.com/n0madic/claude-chatmock/internal/types"
)

// Options carries the process-wide settings used to build a Conversation.
type Options struct {
	BaseInstructions string
	Files            FilePolicy
	DefaultMaxTokens int
	DebugModel       string
	Reasoning        reasoning.Defaults
	// DefaultStream applies when the body has no "stream" field.
	DefaultStream bool
}

// BuildConversation assembles the canonical request from a parsed JSON
// body. The returned Model is empty when the body names no model and no
// debug model is configured; callers reject that case.
func BuildConversation(body gjson.Result, opts Options) *types.Conversation {
	requested := body.Get("model").String()
	conv := &types.Conversation{
		RequestedModel: requested,
		Model:          models.NormalizeModelName(requested, opts.DebugModel),
		Stream:         opts.DefaultStream,
		MaxTokens:      opts.DefaultMaxTokens,
	}
	if s := body.Get("stream"); s.Exists() {
		conv.Stream = s.Bool()
	}
	if mt := body.Get("max_tokens"); mt.Type == gjson.Number && mt.Int() > 0 {
		conv.MaxTokens = int(mt.Int())
	}

	messages := NormalizeMessages(body.Get("messages"))
	if snippets := RenderFileSnippets(body.Get("files"), opts.Files); len(snippets) > 0 {
		messages = AppendToFirstUser(messages, snippets)
	}
	messages = AttachImages(messages, body.Get("images"))
	conv.Messages = messages

	conv.Instructions = ComposeInstructions(
		opts.BaseInstructions,
		SystemText(body.Get("system")),
		firstString(body.Get("context")),
		firstString(body.Get("project_context")),
	)

	conv.Tools = ConvertTools(body.Get("tools"))
	conv.ToolChoice = NormalizeToolChoice(body.Get("tool_choice"))
	conv.ParallelToolCalls = body.Get("parallel_tool_calls").Bool()
	for _, v := range body.Get("include").Array() {
		if v.Type == gjson.String {
			conv.Include = append(conv.Include, v.Str)
		}
	}

	var requestedReasoning *types.ReasoningParam
	if r := body.Get("reasoning"); r.IsObject() {
		requestedReasoning = &types.ReasoningParam{
			Effort:  r.Get("effort").String(),
			Summary: r.Get("summary").String(),
		}
	}
	conv.Reasoning = reasoning.Resolve(opts.Reasoning, requestedReasoning, requested, conv.Model)
	return conv
}

// AttachImages adds top-level request images to the last user message,
// appending a new user message when there is none.
func AttachImages(messages []types.Message, images gjson.Result) []types.Message {
	var parts []types.Part
	for _, img := range images.Array() {
		if url := ToDataURL(img.String()); url != "" {
			parts = append(parts, types.ImagePart(url))
		}
	}
	if len(parts) == 0 {
		return messages
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleUser {
			messages[i].Content = append(messages[i].Content, parts...)
			return messages
		}
	}
	return append(messages, types.Message{Role: types.RoleUser, Content: parts})
}
