package transform

import (
	"github.com/n0madic/claude-chatmock/internal/types"
)

// ToResponsesInput converts canonical messages to upstream input items.
// An assistant message yields its content message first, then one
// function_call item per tool call; a tool message yields a
// function_call_output item.
func ToResponsesInput(messages []types.Message) []types.ResponsesInputItem {
	items := []types.ResponsesInputItem{}
	for _, m := range messages {
		if m.Role == types.RoleTool {
			output := m.Text()
			items = append(items, types.ResponsesInputItem{
				Type:   "function_call_output",
				CallID: m.ToolCallID,
				Output: &output,
			})
			continue
		}

		if content := contentItems(m); len(content) > 0 {
			items = append(items, types.ResponsesInputItem{
				Type:    "message",
				Role:    m.Role,
				Content: content,
			})
		}

		if m.Role != types.RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			items = append(items, types.ResponsesInputItem{
				Type:      "function_call",
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
				CallID:    tc.ID,
			})
		}
	}
	return items
}

func contentItems(m types.Message) []types.ResponsesContent {
	textType := "input_text"
	if m.Role == types.RoleAssistant {
		textType = "output_text"
	}
	var out []types.ResponsesContent
	for _, p := range m.Content {
		switch p.Type {
		case types.PartText:
			if p.Text != "" {
				out = append(out, types.ResponsesContent{Type: textType, Text: p.Text})
			}
		case types.PartImage:
			// upstream only takes images on user turns
			if p.ImageURL != "" && m.Role == types.RoleUser {
				out = append(out, types.ResponsesContent{Type: "input_image", ImageURL: p.ImageURL})
			}
		}
	}
	return out
}
