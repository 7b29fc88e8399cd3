package types

// ClaudeStreamChunk is one `data:` event of the Claude Code streaming surface.
// Type is "message_delta" while content flows and "message_stop" once.
type ClaudeStreamChunk struct {
	Type    string       `json:"type"`
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Delta   *ClaudeDelta `json:"delta,omitempty"`
	Message *ClaudeStop  `json:"message,omitempty"`
}

// ClaudeDelta carries incremental assistant content and completed tool calls.
type ClaudeDelta struct {
	Messages  []ClaudeDeltaMessage `json:"messages"`
	ToolCalls []ClaudeToolUse      `json:"tool_calls,omitempty"`
}

// ClaudeDeltaMessage wraps delta blocks for the assistant role.
type ClaudeDeltaMessage struct {
	Role    string        `json:"role"`
	Content []ClaudeBlock `json:"content"`
}

// ClaudeBlock is a text-bearing block: text_delta, reasoning_delta,
// text or reasoning.
type ClaudeBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClaudeToolUse is a completed tool call with parsed input.
type ClaudeToolUse struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input any    `json:"input"`
}

// ClaudeStop is the terminal message of a successful stream.
type ClaudeStop struct {
	Status     string `json:"status"`
	StopReason string `json:"stop_reason"`
	Usage      *Usage `json:"usage,omitempty"`
}

// ClaudeMessage is the aggregated non-streaming response. Content holds
// ClaudeBlock and ClaudeToolUse values in output order.
type ClaudeMessage struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Model      string `json:"model"`
	Role       string `json:"role"`
	Content    []any  `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      *Usage `json:"usage,omitempty"`
}

// CountTokensResponse is returned by the token estimation endpoint.
type CountTokensResponse struct {
	InputTokens            int `json:"input_tokens"`
	CacheCreateInputTokens int `json:"cache_create_input_tokens"`
	CacheReadInputTokens   int `json:"cache_read_input_tokens"`
}
