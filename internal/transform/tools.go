package transform

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/n0madic/claude-chatmock/internal/types"
)

// ConvertTools maps inbound tool declarations to upstream function tools.
// Both the nested {"type":"function","function":{...}} shape and the flat
// Claude shape are accepted. Declarations without a name are dropped.
func ConvertTools(tools gjson.Result) []types.ResponsesTool {
	out := []types.ResponsesTool{}
	if !tools.IsArray() {
		return out
	}
	for _, tool := range tools.Array() {
		if !tool.IsObject() {
			continue
		}
		var name, description string
		var schema gjson.Result
		if fn := tool.Get("function"); tool.Get("type").String() == "function" && fn.IsObject() {
			name = firstString(fn.Get("name"), tool.Get("name"))
			description = firstString(fn.Get("description"), tool.Get("description"), tool.Get("summary"))
			schema = firstObject(fn.Get("parameters"), fn.Get("input_schema"), tool.Get("parameters"), tool.Get("input_schema"))
		} else {
			name = firstString(tool.Get("name"), tool.Get("tool"))
			description = firstString(tool.Get("description"), tool.Get("summary"))
			schema = firstObject(tool.Get("input_schema"), tool.Get("parameters"))
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, types.ResponsesTool{
			Type:        "function",
			Name:        name,
			Description: description,
			Parameters:  objectSchema(schema),
		})
	}
	return out
}

// objectSchema keeps every caller-supplied key and guarantees "type" and
// an object-valued "properties".
func objectSchema(schema gjson.Result) map[string]any {
	params := map[string]any{}
	if schema.IsObject() {
		if err := json.Unmarshal([]byte(schema.Raw), &params); err != nil {
			params = map[string]any{}
		}
	}
	if _, ok := params["type"]; !ok {
		params["type"] = "object"
	}
	if _, ok := params["properties"].(map[string]any); !ok {
		params["properties"] = map[string]any{}
	}
	return params
}

// NormalizeToolChoice maps a tool-choice directive to the upstream form:
// "auto", "none", or {"type":"function","name":...}. Anything else is "auto".
func NormalizeToolChoice(choice gjson.Result) any {
	switch {
	case choice.Type == gjson.String:
		if choice.Str == "auto" || choice.Str == "none" {
			return choice.Str
		}
	case choice.IsObject():
		switch kind := choice.Get("type").String(); kind {
		case "function", "tool":
			name := strings.TrimSpace(choice.Get("name").String())
			if name == "" {
				name = strings.TrimSpace(choice.Get("function.name").String())
			}
			if name != "" {
				return map[string]any{"type": "function", "name": name}
			}
		case "auto", "none":
			return kind
		}
	}
	return "auto"
}

// Client shapes for EchoToolChoice.
const (
	ShapeClaude = "claude"
	ShapeOpenAI = "openai"
)

// EchoToolChoice maps a normalized tool choice back to the client's shape.
func EchoToolChoice(choice any, shape string) any {
	m, ok := choice.(map[string]any)
	if !ok {
		return choice
	}
	name, _ := m["name"].(string)
	if name == "" {
		return "auto"
	}
	if shape == ShapeClaude {
		return map[string]any{"type": "tool", "name": name}
	}
	return map[string]any{"type": "function", "function": map[string]any{"name": name}}
}

func firstObject(values ...gjson.Result) gjson.Result {
	for _, v := range values {
		if v.IsObject() {
			return v
		}
	}
	return gjson.Result{}
}
