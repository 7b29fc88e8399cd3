package codec

import (
	"io"
	"net/http"
	"strings"

	"github.com/n0madic/claude-chatmock/internal/stream"
	"github.com/n0madic/claude-chatmock/internal/types"
)

// ClaudeEncoder renders the Claude Code streaming surface: message_delta
// events, one message_stop event and the [DONE] sentinel.
type ClaudeEncoder struct {
	// Model is echoed as requested by the client.
	Model string
}

func NewClaudeEncoder(model string) *ClaudeEncoder {
	return &ClaudeEncoder{Model: model}
}

func (e *ClaudeEncoder) WriteStreamHeaders(w http.ResponseWriter) {
	setSSEHeaders(w)
}

func (e *ClaudeEncoder) WriteEvent(w io.Writer, ev stream.Event) error {
	delta := &types.ClaudeDelta{
		Messages: []types.ClaudeDeltaMessage{{Role: types.RoleAssistant, Content: []types.ClaudeBlock{}}},
	}
	switch ev.Kind {
	case stream.KindText:
		delta.Messages[0].Content = append(delta.Messages[0].Content, types.ClaudeBlock{Type: "text_delta", Text: ev.Text})
	case stream.KindReasoning:
		delta.Messages[0].Content = append(delta.Messages[0].Content, types.ClaudeBlock{Type: "reasoning_delta", Text: ev.Text})
	case stream.KindToolCall:
		delta.ToolCalls = []types.ClaudeToolUse{toolUse(*ev.ToolCall)}
	default:
		return nil
	}
	return writeSSE(w, types.ClaudeStreamChunk{
		Type:  "message_delta",
		ID:    ev.ResponseID,
		Model: e.Model,
		Delta: delta,
	})
}

func (e *ClaudeEncoder) WriteStop(w io.Writer, st *stream.State) error {
	err := writeSSE(w, types.ClaudeStreamChunk{
		Type:  "message_stop",
		ID:    st.ResponseID,
		Model: e.Model,
		Message: &types.ClaudeStop{
			Status:     "stopped",
			StopReason: st.StopReason(),
			Usage:      st.Usage,
		},
	})
	if err != nil {
		return err
	}
	return writeSSEDone(w)
}

func (e *ClaudeEncoder) WriteAggregate(w http.ResponseWriter, st *stream.State) {
	WriteJSON(w, http.StatusOK, ClaudeMessage(e.Model, st))
}

func (e *ClaudeEncoder) WriteError(w http.ResponseWriter, status int, message string) {
	WriteError(w, status, message)
}

// ClaudeMessage assembles the non-streaming response: reasoning first when
// present, then text, then one tool_use block per call.
func ClaudeMessage(model string, st *stream.State) types.ClaudeMessage {
	content := []any{}
	if strings.TrimSpace(st.Reasoning) != "" {
		content = append(content, types.ClaudeBlock{Type: "reasoning", Text: st.Reasoning})
	}
	if st.Text != "" {
		content = append(content, types.ClaudeBlock{Type: "text", Text: st.Text})
	}
	for _, tc := range st.ToolCalls {
		content = append(content, toolUse(tc))
	}
	return types.ClaudeMessage{
		ID:         st.ResponseID,
		Type:       "message",
		Model:      model,
		Role:       types.RoleAssistant,
		Content:    content,
		StopReason: st.StopReason(),
		Usage:      st.Usage,
	}
}

func toolUse(tc stream.ToolCall) types.ClaudeToolUse {
	return types.ClaudeToolUse{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Input}
}
