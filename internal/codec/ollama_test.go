package codec

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/n0madic/claude-chatmock/internal/stream"
)

func TestOllamaStream(t *testing.T) {
	var sb strings.Builder
	enc := NewOllamaEncoder("gpt-5", "think-tags")
	require.NoError(t, enc.WriteEvent(&sb, stream.Event{Kind: stream.KindReasoning, Text: "why"}))
	require.NoError(t, enc.WriteEvent(&sb, stream.Event{Kind: stream.KindToolCall, ToolCall: &stream.ToolCall{Name: "f", Input: map[string]any{"a": 1}}}))
	require.NoError(t, enc.WriteEvent(&sb, stream.Event{Kind: stream.KindText, Text: "ok"}))
	require.NoError(t, enc.WriteStop(&sb, &stream.State{}))

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "<think>why", gjson.Get(lines[0], "message.content").String())
	assert.False(t, gjson.Get(lines[0], "done").Bool())
	assert.Equal(t, "f", gjson.Get(lines[1], "message.tool_calls.0.function.name").String())
	assert.Equal(t, int64(1), gjson.Get(lines[1], "message.tool_calls.0.function.arguments.a").Int())
	assert.Equal(t, "</think>ok", gjson.Get(lines[2], "message.content").String())
	assert.True(t, gjson.Get(lines[3], "done").Bool())
	assert.Equal(t, "stop", gjson.Get(lines[3], "done_reason").String())
	assert.Equal(t, "gpt-5", gjson.Get(lines[3], "model").String())
	assert.True(t, gjson.Get(lines[3], "eval_count").Exists())
}

func TestOllamaThinkingField(t *testing.T) {
	var sb strings.Builder
	enc := NewOllamaEncoder("gpt-5", "current")
	require.NoError(t, enc.WriteEvent(&sb, stream.Event{Kind: stream.KindReasoning, Text: "why"}))
	assert.Equal(t, "why", gjson.Get(sb.String(), "message.thinking").String())
	assert.Equal(t, "", gjson.Get(sb.String(), "message.content").String())

	rec := httptest.NewRecorder()
	enc.WriteAggregate(rec, &stream.State{Text: "answer", Reasoning: "why"})
	assert.Equal(t, "answer", gjson.Get(rec.Body.String(), "message.content").String())
	assert.Equal(t, "why", gjson.Get(rec.Body.String(), "message.thinking").String())
	assert.True(t, gjson.Get(rec.Body.String(), "done").Bool())
}

func TestOllamaError(t *testing.T) {
	rec := httptest.NewRecorder()
	NewOllamaEncoder("m", "").WriteError(rec, 400, "Missing model")
	assert.Equal(t, 400, rec.Code)
	assert.JSONEq(t, `{"error":"Missing model"}`, rec.Body.String())
}
