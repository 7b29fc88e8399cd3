package proxy

import (
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/n0madic/claude-chatmock/internal/codec"
	"github.com/n0madic/claude-chatmock/internal/models"
	"github.com/n0madic/claude-chatmock/internal/transform"
	"github.com/n0madic/claude-chatmock/internal/types"
)

// handleChatCompletions handles POST /v1/chat/completions.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	compat := s.Config.Reasoning.Compat
	s.serveChat(w, r, chatRoute{
		format: "openai",
		shape:  transform.ShapeOpenAI,
		newEncoder: func(body gjson.Result, model string) codec.Encoder {
			includeUsage := body.Get("stream_options.include_usage").Bool()
			return codec.NewChatEncoder(model, compat, includeUsage)
		},
	})
}

// handleListModels handles GET /v1/models.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	ids := models.ModelCatalog(s.Config.ExposeReasoningModels)
	data := make([]types.ModelObject, 0, len(ids))
	for _, id := range ids {
		data = append(data, types.ModelObject{ID: id, Object: "model", OwnedBy: "owner"})
	}
	codec.WriteJSON(w, http.StatusOK, types.ModelList{Object: "list", Data: data})
}
