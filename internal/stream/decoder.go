package stream

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/n0madic/claude-chatmock/internal/transform"
	"github.com/n0madic/claude-chatmock/internal/types"
)

// Upstream event types the decoder acts on.
const (
	eventTextDelta         = "response.output_text.delta"
	eventReasoningSummary  = "response.reasoning_summary_text.delta"
	eventReasoningText     = "response.reasoning_text.delta"
	eventOutputItemDone    = "response.output_item.done"
	eventResponseCompleted = "response.completed"
	eventResponseFailed    = "response.failed"
	defaultFailureMessage  = "response.failed"
	stopReasonEndTurn      = "end_turn"
	stopReasonToolUse      = "tool_use"
)

// ToolCall is a completed function call from the upstream. Input is the
// decoded argument value; Arguments is its serialized form.
type ToolCall struct {
	ID        string
	Name      string
	Input     any
	Arguments string
}

// Canonical returns the call as a canonical tool call.
func (tc ToolCall) Canonical() types.ToolCall {
	return types.NewToolCall(tc.ID, tc.Name, tc.Arguments)
}

// State is the accumulated result of one upstream call.
type State struct {
	ResponseID    string
	Text          string
	Reasoning     string
	Usage         *types.Usage
	ToolCalls     []ToolCall
	TerminalError string
}

// StopReason is "tool_use" when the turn produced tool calls.
func (s *State) StopReason() string {
	if len(s.ToolCalls) > 0 {
		return stopReasonToolUse
	}
	return stopReasonEndTurn
}

// Decoder folds upstream frames into a State. It is not safe for
// concurrent use; one decoder serves one upstream call.
type Decoder struct {
	responseID string
	text       strings.Builder
	reasoning  strings.Builder
	usage      *types.Usage
	toolCalls  []ToolCall
	failure    string
	finished   bool
}

// NewDecoder returns a decoder reporting responseID until a frame carries
// its own id.
func NewDecoder(responseID string) *Decoder {
	return &Decoder{responseID: responseID}
}

// Decode applies one frame. It returns the client-visible event the frame
// produced, if any.
func (d *Decoder) Decode(f Frame) (Event, bool) {
	if id := f.Data.Get("response.id"); id.Type == gjson.String && id.Str != "" {
		d.responseID = id.Str
	}
	if u := parseUsage(f.Data.Get("response.usage")); u != nil {
		d.usage = u
	}

	switch f.Type {
	case eventTextDelta:
		delta := f.Data.Get("delta").String()
		if delta == "" {
			return Event{}, false
		}
		d.text.WriteString(delta)
		return Event{Kind: KindText, ResponseID: d.responseID, Text: delta}, true
	case eventReasoningSummary, eventReasoningText:
		delta := f.Data.Get("delta").String()
		if delta == "" {
			return Event{}, false
		}
		d.reasoning.WriteString(delta)
		return Event{Kind: KindReasoning, ResponseID: d.responseID, Text: delta}, true
	case eventOutputItemDone:
		tc, ok := convertToolItem(f.Data.Get("item"))
		if !ok {
			return Event{}, false
		}
		d.toolCalls = append(d.toolCalls, tc)
		return Event{Kind: KindToolCall, ResponseID: d.responseID, ToolCall: &tc}, true
	case eventResponseFailed:
		d.failure = defaultFailureMessage
		if msg := f.Data.Get("response.error.message"); msg.Type == gjson.String {
			d.failure = msg.Str
		}
		d.finished = true
	case eventResponseCompleted:
		d.finished = true
	}
	return Event{}, false
}

// Finished reports whether a completed or failed frame was seen.
func (d *Decoder) Finished() bool { return d.finished }

// Failure returns the upstream error message of a failed response.
func (d *Decoder) Failure() string { return d.failure }

// State returns a snapshot of the accumulated state.
func (d *Decoder) State() *State {
	return &State{
		ResponseID:    d.responseID,
		Text:          d.text.String(),
		Reasoning:     d.reasoning.String(),
		Usage:         d.usage,
		ToolCalls:     append([]ToolCall(nil), d.toolCalls...),
		TerminalError: d.failure,
	}
}

// parseUsage maps Responses usage to chat-style counters. The latest frame
// carrying usage wins; counts are not summed.
func parseUsage(usage gjson.Result) *types.Usage {
	if !usage.IsObject() {
		return nil
	}
	u := &types.Usage{
		PromptTokens:     int(usage.Get("input_tokens").Int()),
		CompletionTokens: int(usage.Get("output_tokens").Int()),
	}
	if total := usage.Get("total_tokens"); total.Type == gjson.Number {
		u.TotalTokens = int(total.Int())
	} else {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

// convertToolItem builds a ToolCall from a function_call output item.
// Arguments that are not valid JSON are wrapped as {"raw": value}.
func convertToolItem(item gjson.Result) (ToolCall, bool) {
	if item.Get("type").String() != "function_call" {
		return ToolCall{}, false
	}
	name := item.Get("name")
	if name.Type != gjson.String || name.Str == "" {
		return ToolCall{}, false
	}
	tc := ToolCall{Name: name.Str}
	for _, key := range []string{"call_id", "id"} {
		if v := item.Get(key); v.Type == gjson.String && v.Str != "" {
			tc.ID = v.Str
			break
		}
	}
	if tc.ID == "" {
		tc.ID = transform.NewCallID()
	}

	args := item.Get("arguments")
	switch {
	case args.Type == gjson.String && gjson.Valid(args.Str):
		var v any
		if err := json.Unmarshal([]byte(args.Str), &v); err == nil {
			tc.Input, tc.Arguments = v, args.Str
			return tc, true
		}
		tc.Input = map[string]any{"raw": args.Str}
	case args.IsObject() || args.IsArray():
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(args.Raw)); err == nil {
			tc.Input, tc.Arguments = args.Value(), buf.String()
			return tc, true
		}
		tc.Input = map[string]any{"raw": args.Value()}
	default:
		tc.Input = map[string]any{"raw": args.Value()}
	}
	data, _ := json.Marshal(tc.Input)
	tc.Arguments = string(data)
	return tc, true
}
