package stream

import (
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/n0madic/claude-chatmock/internal/types"
)

func frame(raw string) Frame {
	data := gjson.Parse(raw)
	return Frame{Type: data.Get("type").String(), Data: data}
}

func TestReaderSkipsNoise(t *testing.T) {
	input := strings.Join([]string{
		"event: response.created",
		"data: {\"type\":\"a\"}",
		"",
		": keep-alive",
		"data: not json",
		"data: [1,2]",
		"data:    ",
		"data: {\"type\":\"b\"}",
		"data: [DONE]",
		"data: {\"type\":\"c\"}",
	}, "\n")
	r := NewReader(strings.NewReader(input))

	f, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", f.Type)
	f, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", f.Type)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderResponseIDLatch(t *testing.T) {
	d := NewDecoder(DefaultResponseID)
	d.Decode(frame(`{"type":"response.created","response":{"id":"first"}}`))
	ev, ok := d.Decode(frame(`{"type":"response.output_text.delta","delta":"x","response":{"id":"second"}}`))
	require.True(t, ok)
	assert.Equal(t, "second", ev.ResponseID)
	d.Decode(frame(`{"type":"response.in_progress","response":{"id":""}}`))
	assert.Equal(t, "second", d.State().ResponseID)
}

func TestDecoderUsageOverwrites(t *testing.T) {
	d := NewDecoder(DefaultResponseID)
	d.Decode(frame(`{"type":"response.in_progress","response":{"usage":{"input_tokens":10,"output_tokens":1}}}`))
	d.Decode(frame(`{"type":"response.completed","response":{"usage":{"input_tokens":10,"output_tokens":7,"total_tokens":20}}}`))
	assert.Equal(t, &types.Usage{PromptTokens: 10, CompletionTokens: 7, TotalTokens: 20}, d.State().Usage)
	assert.True(t, d.Finished())
	assert.Empty(t, d.Failure())
}

func TestDecoderSkipsEmptyDeltas(t *testing.T) {
	d := NewDecoder(DefaultResponseID)
	_, ok := d.Decode(frame(`{"type":"response.output_text.delta","delta":""}`))
	assert.False(t, ok)
	_, ok = d.Decode(frame(`{"type":"response.reasoning_text.delta"}`))
	assert.False(t, ok)
}

func TestConvertToolItem(t *testing.T) {
	tests := []struct {
		name      string
		item      string
		wantOK    bool
		wantID    string
		wantInput any
		wantArgs  string
	}{
		{
			name:      "json string arguments",
			item:      `{"type":"function_call","call_id":"c1","id":"fc_1","name":"f","arguments":"{\"a\":1}"}`,
			wantOK:    true,
			wantID:    "c1",
			wantInput: map[string]any{"a": float64(1)},
			wantArgs:  `{"a":1}`,
		},
		{
			name:      "falls back to item id",
			item:      `{"type":"function_call","call_id":"","id":"fc_1","name":"f","arguments":"[]"}`,
			wantOK:    true,
			wantID:    "fc_1",
			wantInput: []any{},
			wantArgs:  `[]`,
		},
		{
			name:      "non-json string",
			item:      `{"type":"function_call","call_id":"c","name":"f","arguments":"ls -la"}`,
			wantOK:    true,
			wantID:    "c",
			wantInput: map[string]any{"raw": "ls -la"},
			wantArgs:  `{"raw":"ls -la"}`,
		},
		{
			name:      "object arguments",
			item:      `{"type":"function_call","call_id":"c","name":"f","arguments":{"b": [1, 2]}}`,
			wantOK:    true,
			wantID:    "c",
			wantInput: map[string]any{"b": []any{float64(1), float64(2)}},
			wantArgs:  `{"b":[1,2]}`,
		},
		{
			name:      "number arguments",
			item:      `{"type":"function_call","call_id":"c","name":"f","arguments":5}`,
			wantOK:    true,
			wantID:    "c",
			wantInput: map[string]any{"raw": float64(5)},
			wantArgs:  `{"raw":5}`,
		},
		{
			name:      "missing arguments",
			item:      `{"type":"function_call","call_id":"c","name":"f"}`,
			wantOK:    true,
			wantID:    "c",
			wantInput: map[string]any{"raw": nil},
			wantArgs:  `{"raw":null}`,
		},
		{name: "missing name", item: `{"type":"function_call","call_id":"c","arguments":"{}"}`},
		{name: "non-string name", item: `{"type":"function_call","name":7}`},
		{name: "other item", item: `{"type":"message","name":"f"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, ok := convertToolItem(gjson.Parse(tt.item))
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantID, tc.ID)
			assert.Equal(t, "f", tc.Name)
			assert.Equal(t, tt.wantInput, tc.Input)
			assert.Equal(t, tt.wantArgs, tc.Arguments)

			var reparsed any
			require.NoError(t, json.Unmarshal([]byte(tc.Arguments), &reparsed))
		})
	}
}

func TestConvertToolItemGeneratesID(t *testing.T) {
	tc, ok := convertToolItem(gjson.Parse(`{"type":"function_call","name":"f","arguments":"{}"}`))
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(tc.ID, "claude_tool_"))

	other, _ := convertToolItem(gjson.Parse(`{"type":"function_call","name":"f","arguments":"{}"}`))
	assert.NotEqual(t, tc.ID, other.ID)
}
