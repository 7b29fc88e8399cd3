package proxy

import (
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/n0madic/claude-chatmock/internal/codec"
	"github.com/n0madic/claude-chatmock/internal/transform"
)

var claudeRoute = chatRoute{
	format: "claude",
	shape:  transform.ShapeClaude,
	newEncoder: func(_ gjson.Result, model string) codec.Encoder {
		return codec.NewClaudeEncoder(model)
	},
}

// handleClaudeMessages handles POST /claude/v1/messages and its
// chat/completions alias.
func (s *Server) handleClaudeMessages(w http.ResponseWriter, r *http.Request) {
	s.serveChat(w, r, claudeRoute)
}

// handleClaudeCountTokens handles POST /claude/v1/messages/count_tokens.
// No model is required and nothing is sent upstream.
func (s *Server) handleClaudeCountTokens(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	conv := transform.BuildConversation(body, s.conversationOptions(false))
	codec.WriteJSON(w, http.StatusOK, estimateTokens(conv))
}
