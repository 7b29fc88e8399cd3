package transform

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/n0madic/claude-chatmock/internal/types"
)

// NormalizeMessages converts an inbound message array of any supported
// client shape into canonical messages. Claude-style block content,
// OpenAI/Ollama chat entries (message-level tool_calls, role "tool" with
// tool_call_id, per-message images) and plain strings are all accepted.
// Nothing is rejected: unknown roles become "user" and unknown blocks are
// ignored unless they carry text.
func NormalizeMessages(messages gjson.Result) []types.Message {
	n := &normalizer{ids: make(map[string]string)}
	if !messages.IsArray() {
		return n.out
	}
	messages.ForEach(func(_, msg gjson.Result) bool {
		if msg.IsObject() {
			n.message(msg)
		}
		return true
	})
	return n.out
}

// NewCallID returns a fresh tool-call id.
func NewCallID() string {
	return "claude_tool_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

type normalizer struct {
	out []types.Message

	// ids maps inbound tool-call ids to the ids sent upstream.
	ids map[string]string
	// pending holds emitted call ids in issue order for results that
	// arrive without any id.
	pending callQueue

	role  string
	parts []types.Part
	calls []types.ToolCall
}

func (n *normalizer) message(msg gjson.Result) {
	role := canonicalRole(msg.Get("role").String())
	if role == types.RoleTool || msg.Get("tool_call_id").Exists() {
		n.toolResult(msg.Get("tool_call_id").String(), msg.Get("content"))
		return
	}

	n.role = role
	if content := msg.Get("content"); content.Type == gjson.String {
		if content.Str != "" {
			n.parts = append(n.parts, types.TextPart(content.Str))
		}
	} else {
		for _, block := range blockList(content) {
			n.block(block)
		}
	}
	for _, tc := range msg.Get("tool_calls").Array() {
		fn := tc.Get("function")
		name := firstString(fn.Get("name"), tc.Get("name"))
		args := fn.Get("arguments")
		if !args.Exists() {
			args = tc.Get("arguments")
		}
		n.addCall(tc.Get("id").String(), name, args)
	}
	for _, img := range msg.Get("images").Array() {
		if url := ToDataURL(img.String()); url != "" {
			n.parts = append(n.parts, types.ImagePart(url))
		}
	}
	n.flush()
}

func (n *normalizer) block(block gjson.Result) {
	switch block.Get("type").String() {
	case "text", "code", "output_text", "input_text":
		if text := firstString(block.Get("text"), block.Get("content")); text != "" {
			n.parts = append(n.parts, types.TextPart(text))
		}
	case "image", "image_url", "input_image":
		if url := imageURL(block); url != "" {
			n.parts = append(n.parts, types.ImagePart(url))
		}
	case "tool_use", "function_call":
		args := block.Get("input")
		if !args.Exists() {
			args = block.Get("arguments")
		}
		id := block.Get("id").String()
		if id == "" {
			id = block.Get("call_id").String()
		}
		n.addCall(id, firstString(block.Get("name"), block.Get("tool_name")), args)
	case "tool_result", "function_call_output":
		n.flush()
		ref := firstString(block.Get("tool_use_id"), block.Get("id"), block.Get("call_id"))
		content := block.Get("content")
		if !content.Exists() {
			content = block.Get("output")
		}
		n.toolResult(ref, content)
	default:
		if text := block.Get("text"); text.Type == gjson.String && text.Str != "" {
			n.parts = append(n.parts, types.TextPart(text.Str))
		}
	}
}

func (n *normalizer) addCall(originalID, name string, args gjson.Result) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	id := originalID
	if id == "" {
		id = NewCallID()
	}
	n.ids[id] = id
	n.calls = append(n.calls, types.NewToolCall(id, name, argumentString(args)))
}

// flush emits the buffered parts and calls as one message. Tool calls
// survive only on assistant messages.
func (n *normalizer) flush() {
	defer func() {
		n.parts = nil
		n.calls = nil
	}()
	hasCalls := n.role == types.RoleAssistant && len(n.calls) > 0
	if len(n.parts) == 0 && !hasCalls {
		return
	}
	msg := types.Message{Role: n.role, Content: n.parts}
	if msg.Content == nil {
		msg.Content = []types.Part{}
	}
	if hasCalls {
		msg.ToolCalls = n.calls
		for _, c := range n.calls {
			n.pending.push(c.ID)
		}
	}
	n.out = append(n.out, msg)
}

func (n *normalizer) toolResult(ref string, content gjson.Result) {
	n.out = append(n.out, types.Message{
		Role:       types.RoleTool,
		Content:    []types.Part{types.TextPart(toolResultText(content))},
		ToolCallID: n.resolveResultID(ref),
	})
}

// resolveResultID maps a tool result reference to the call id sent
// upstream. Results without any reference take the oldest outstanding
// call id. This pairing is a best-effort heuristic: when several calls are
// issued before their results arrive without ids, results pair strictly in
// issue order.
func (n *normalizer) resolveResultID(ref string) string {
	if ref != "" {
		if id, ok := n.ids[ref]; ok {
			return id
		}
		return ref
	}
	if id, ok := n.pending.pop(); ok {
		return id
	}
	return NewCallID()
}

type callQueue struct {
	ids []string
}

func (q *callQueue) push(id string) {
	q.ids = append(q.ids, id)
}

func (q *callQueue) pop() (string, bool) {
	if len(q.ids) == 0 {
		return "", false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, true
}

func canonicalRole(role string) string {
	switch role {
	case types.RoleAssistant, types.RoleTool:
		return role
	default:
		return types.RoleUser
	}
}

// blockList turns object or array content into a list of blocks.
func blockList(content gjson.Result) []gjson.Result {
	switch {
	case content.IsObject():
		return []gjson.Result{content}
	case content.IsArray():
		var blocks []gjson.Result
		for _, b := range content.Array() {
			if b.IsObject() {
				blocks = append(blocks, b)
			}
		}
		return blocks
	}
	return nil
}

func imageURL(block gjson.Result) string {
	if iu := block.Get("image_url"); iu.Exists() {
		if u := firstString(iu.Get("url"), iu); u != "" {
			return ToDataURL(u)
		}
	}
	if u := firstString(block.Get("url"), block.Get("href")); u != "" {
		return ToDataURL(u)
	}
	source := block.Get("source")
	switch source.Get("type").String() {
	case "base64":
		data := source.Get("data").String()
		if data == "" {
			return ""
		}
		if media := source.Get("media_type").String(); media != "" {
			return "data:" + media + ";base64," + data
		}
		return ToDataURL(data)
	case "url":
		return ToDataURL(source.Get("url").String())
	}
	return ""
}

// argumentString serializes tool-call arguments. Strings are kept verbatim
// so a non-JSON string survives untouched; absent input becomes "{}".
func argumentString(args gjson.Result) string {
	switch {
	case !args.Exists() || args.Type == gjson.Null:
		return "{}"
	case args.Type == gjson.String:
		return args.Str
	default:
		return compactJSON(args.Raw)
	}
}

// toolResultText joins the text sub-parts of a list with newlines, keeps a
// string verbatim and serializes anything else.
func toolResultText(content gjson.Result) string {
	switch {
	case !content.Exists() || content.Type == gjson.Null:
		return ""
	case content.Type == gjson.String:
		return content.Str
	case content.IsArray():
		var texts []string
		for _, part := range content.Array() {
			if part.Type == gjson.String {
				texts = append(texts, part.Str)
				continue
			}
			if part.Get("type").String() == "text" && part.Get("text").Type == gjson.String {
				texts = append(texts, part.Get("text").Str)
			}
		}
		return strings.Join(texts, "\n")
	default:
		return compactJSON(content.Raw)
	}
}

func firstString(values ...gjson.Result) string {
	for _, v := range values {
		if v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

func compactJSON(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return raw
	}
	return buf.String()
}
