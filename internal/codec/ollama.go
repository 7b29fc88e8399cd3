package codec

import (
	"io"
	"net/http"
	"time"

	"github.com/n0madic/claude-chatmock/internal/reasoning"
	"github.com/n0madic/claude-chatmock/internal/stream"
	"github.com/n0madic/claude-chatmock/internal/types"
)

// OllamaEncoder encodes responses as Ollama /api/chat NDJSON. With the
// think-tags compat mode reasoning is inlined into the content; otherwise
// it goes to the message thinking field.
type OllamaEncoder struct {
	Model  string
	Compat string

	createdAt string
	think     reasoning.ThinkTags
}

func NewOllamaEncoder(model, compat string) *OllamaEncoder {
	return &OllamaEncoder{
		Model:     model,
		Compat:    reasoning.NormalizeCompat(compat),
		createdAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func (e *OllamaEncoder) WriteStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
}

func (e *OllamaEncoder) WriteEvent(w io.Writer, ev stream.Event) error {
	msg := types.OllamaMessage{Role: types.RoleAssistant}
	switch ev.Kind {
	case stream.KindText:
		msg.Content = ev.Text
		if e.Compat == reasoning.CompatThinkTags {
			msg.Content = e.think.Text(ev.Text)
		}
	case stream.KindReasoning:
		if e.Compat != reasoning.CompatThinkTags {
			msg.Thinking = ev.Text
			break
		}
		msg.Content = e.think.Reasoning(ev.Text)
		if msg.Content == "" {
			return nil
		}
	case stream.KindToolCall:
		msg.ToolCalls = []types.OllamaToolCall{ollamaToolCall(*ev.ToolCall)}
	default:
		return nil
	}
	return e.writeLine(w, types.OllamaStreamChunk{Model: e.Model, CreatedAt: e.createdAt, Message: msg})
}

func (e *OllamaEncoder) WriteStop(w io.Writer, st *stream.State) error {
	if closing := e.think.Close(); closing != "" {
		chunk := types.OllamaStreamChunk{
			Model:     e.Model,
			CreatedAt: e.createdAt,
			Message:   types.OllamaMessage{Role: types.RoleAssistant, Content: closing},
		}
		if err := e.writeLine(w, chunk); err != nil {
			return err
		}
	}
	return e.writeLine(w, e.final(types.OllamaMessage{Role: types.RoleAssistant}))
}

func (e *OllamaEncoder) WriteAggregate(w http.ResponseWriter, st *stream.State) {
	msg := types.OllamaMessage{Role: types.RoleAssistant, Content: st.Text}
	if st.Reasoning != "" {
		if e.Compat == reasoning.CompatThinkTags {
			msg.Content = "<think>" + st.Reasoning + "</think>" + st.Text
		} else {
			msg.Thinking = st.Reasoning
		}
	}
	for _, tc := range st.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ollamaToolCall(tc))
	}
	WriteJSON(w, http.StatusOK, e.final(msg))
}

func (e *OllamaEncoder) WriteError(w http.ResponseWriter, status int, message string) {
	WriteOllamaError(w, status, message)
}

func (e *OllamaEncoder) final(msg types.OllamaMessage) types.OllamaStreamChunk {
	return types.OllamaStreamChunk{
		Model:          e.Model,
		CreatedAt:      e.createdAt,
		Message:        msg,
		Done:           true,
		DoneReason:     "stop",
		OllamaFakeEval: types.OllamaFakeEvalDefaults,
	}
}

func (e *OllamaEncoder) writeLine(w io.Writer, v any) error {
	data, err := marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func ollamaToolCall(tc stream.ToolCall) types.OllamaToolCall {
	return types.OllamaToolCall{Function: types.OllamaFunctionCall{Name: tc.Name, Arguments: tc.Input}}
}
