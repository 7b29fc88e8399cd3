package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0madic/claude-chatmock/internal/types"
)

func TestToResponsesInput(t *testing.T) {
	messages := []types.Message{
		{Role: "user", Content: []types.Part{types.TextPart("hi"), types.ImagePart("data:image/png;base64,AAAA")}},
		{
			Role:      "assistant",
			Content:   []types.Part{types.TextPart("calling"), types.ImagePart("https://example.com/x.png")},
			ToolCalls: []types.ToolCall{types.NewToolCall("call_1", "lookup", `{"q":"x"}`)},
		},
		{Role: "tool", ToolCallID: "call_1", Content: []types.Part{types.TextPart("result")}},
		{Role: "assistant", Content: []types.Part{}, ToolCalls: []types.ToolCall{types.NewToolCall("call_2", "noop", "{}")}},
		{Role: "tool", ToolCallID: "call_2", Content: []types.Part{}},
		{Role: "user", Content: []types.Part{types.TextPart("")}},
	}

	items := ToResponsesInput(messages)
	require.Len(t, items, 6)

	assert.Equal(t, types.ResponsesInputItem{
		Type: "message",
		Role: "user",
		Content: []types.ResponsesContent{
			{Type: "input_text", Text: "hi"},
			{Type: "input_image", ImageURL: "data:image/png;base64,AAAA"},
		},
	}, items[0])

	// assistant images are dropped, text becomes output_text
	assert.Equal(t, "message", items[1].Type)
	assert.Equal(t, []types.ResponsesContent{{Type: "output_text", Text: "calling"}}, items[1].Content)

	assert.Equal(t, types.ResponsesInputItem{Type: "function_call", Name: "lookup", Arguments: `{"q":"x"}`, CallID: "call_1"}, items[2])

	assert.Equal(t, "function_call_output", items[3].Type)
	assert.Equal(t, "call_1", items[3].CallID)
	require.NotNil(t, items[3].Output)
	assert.Equal(t, "result", *items[3].Output)

	assert.Equal(t, "function_call", items[4].Type)
	assert.Equal(t, "call_2", items[4].CallID)

	require.NotNil(t, items[5].Output)
	assert.Equal(t, "", *items[5].Output)
}

func TestToResponsesInputEmpty(t *testing.T) {
	items := ToResponsesInput(nil)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestEstimateInputTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateInputTokens("", nil))
	assert.Equal(t, 2, EstimateInputTokens("abcdefghi", nil))
	assert.Equal(t, 1, EstimateInputTokens("日本語の", nil))

	// {"type": "message", "role": "user", "content": [{"type": "input_text", "text": "<é>"}]}
	// is 87 characters when HTML characters are left unescaped.
	items := []types.ResponsesInputItem{{
		Type:    "message",
		Role:    "user",
		Content: []types.ResponsesContent{{Type: "input_text", Text: "<é>"}},
	}}
	assert.Equal(t, (4+87)/4, EstimateInputTokens("abcd", items))
}

func TestSpacedJSONLen(t *testing.T) {
	assert.Equal(t, 0, spacedJSONLen(nil))
	assert.Equal(t, len(`{"a": 1, "b": [1, 2]}`), spacedJSONLen([]byte(`{"a":1,"b":[1,2]}`)))
	// separators inside strings, including after an escaped quote, stay as they are
	assert.Equal(t, len(`{"arguments": "{\"a\":1,\"b\":[1,2]}", "call_id": "c1"}`),
		spacedJSONLen([]byte(`{"arguments":"{\"a\":1,\"b\":[1,2]}","call_id":"c1"}`)))
	assert.Equal(t, 3, spacedJSONLen([]byte(`"é"`)))
}
