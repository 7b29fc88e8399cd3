package codec

import (
	"io"
	"net/http"
	"time"

	"github.com/n0madic/claude-chatmock/internal/reasoning"
	"github.com/n0madic/claude-chatmock/internal/stream"
	"github.com/n0madic/claude-chatmock/internal/types"
)

// ChatEncoder encodes responses in OpenAI Chat Completions format.
// Reasoning is rendered according to the compat mode.
type ChatEncoder struct {
	Model        string
	Compat       string
	IncludeUsage bool

	created   int64
	think     reasoning.ThinkTags
	sentRole  bool
	toolIndex int
}

func NewChatEncoder(model, compat string, includeUsage bool) *ChatEncoder {
	return &ChatEncoder{
		Model:        model,
		Compat:       reasoning.NormalizeCompat(compat),
		IncludeUsage: includeUsage,
		created:      time.Now().Unix(),
	}
}

func (e *ChatEncoder) WriteStreamHeaders(w http.ResponseWriter) {
	setSSEHeaders(w)
}

func (e *ChatEncoder) WriteEvent(w io.Writer, ev stream.Event) error {
	var delta types.ChatDelta
	switch ev.Kind {
	case stream.KindText:
		delta.Content = ev.Text
		if e.Compat == reasoning.CompatThinkTags {
			delta.Content = e.think.Text(ev.Text)
		}
	case stream.KindReasoning:
		switch e.Compat {
		case reasoning.CompatThinkTags:
			delta.Content = e.think.Reasoning(ev.Text)
			if delta.Content == "" {
				return nil
			}
		case reasoning.CompatO3:
			delta.Reasoning = types.ReasoningContent{Content: []types.ReasoningPart{{Type: "text", Text: ev.Text}}}
		default:
			delta.ReasoningSummary = ev.Text
		}
	case stream.KindToolCall:
		tc := ev.ToolCall.Canonical()
		tc.Index = e.toolIndex
		e.toolIndex++
		delta.ToolCalls = []types.ToolCall{tc}
	default:
		return nil
	}
	if !e.sentRole {
		delta.Role = types.RoleAssistant
		e.sentRole = true
	}
	return writeSSE(w, e.chunk(ev.ResponseID, delta, nil))
}

func (e *ChatEncoder) WriteStop(w io.Writer, st *stream.State) error {
	if closing := e.think.Close(); closing != "" {
		if err := writeSSE(w, e.chunk(st.ResponseID, types.ChatDelta{Content: closing}, nil)); err != nil {
			return err
		}
	}
	reason := finishReason(st)
	final := e.chunk(st.ResponseID, types.ChatDelta{}, &reason)
	if e.IncludeUsage {
		final.Usage = st.Usage
	}
	if err := writeSSE(w, final); err != nil {
		return err
	}
	return writeSSEDone(w)
}

func (e *ChatEncoder) WriteAggregate(w http.ResponseWriter, st *stream.State) {
	message := types.ChatResponseMsg{Role: types.RoleAssistant, Content: st.Text}
	for _, tc := range st.ToolCalls {
		message.ToolCalls = append(message.ToolCalls, tc.Canonical())
	}
	reasoning.ApplyReasoningToMessage(&message, st.Reasoning, e.Compat)

	reason := finishReason(st)
	WriteJSON(w, http.StatusOK, types.ChatCompletionResponse{
		ID:      st.ResponseID,
		Object:  "chat.completion",
		Created: e.created,
		Model:   e.Model,
		Choices: []types.ChatChoice{{Index: 0, Message: message, FinishReason: &reason}},
		Usage:   st.Usage,
	})
}

func (e *ChatEncoder) WriteError(w http.ResponseWriter, status int, message string) {
	WriteError(w, status, message)
}

func (e *ChatEncoder) chunk(id string, delta types.ChatDelta, finish *string) types.ChatCompletionChunk {
	return types.ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: e.created,
		Model:   e.Model,
		Choices: []types.ChatChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

func finishReason(st *stream.State) string {
	if len(st.ToolCalls) > 0 {
		return "tool_calls"
	}
	return "stop"
}
