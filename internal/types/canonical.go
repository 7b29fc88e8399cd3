package types

import "strings"

// Canonical roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Part kinds.
const (
	PartText  = "text"
	PartImage = "image_url"
)

// Message is the canonical conversation entry every inbound format is
// normalized into. Only assistant messages carry ToolCalls and only tool
// messages carry ToolCallID. Content is never nil.
type Message struct {
	Role       string     `json:"role"`
	Content    []Part     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Part is one content element of a Message: text or an image reference
// (http(s) URL or data URL).
type Part struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// TextPart returns a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ImagePart returns an image part.
func ImagePart(url string) Part {
	return Part{Type: PartImage, ImageURL: url}
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Content {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// Conversation is the format-agnostic request assembled by a route handler
// before upstream dispatch.
type Conversation struct {
	RequestedModel string
	Model          string
	Messages       []Message
	Instructions   string
	Tools          []ResponsesTool
	ToolChoice     any
	// ParallelToolCalls and Include are forwarded from the client body.
	ParallelToolCalls bool
	Include           []string
	Reasoning         *ReasoningParam
	MaxTokens         int
	Stream            bool
	SessionID         string
}
