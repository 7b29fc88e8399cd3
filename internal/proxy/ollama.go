package proxy

import (
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/n0madic/claude-chatmock/internal/codec"
	"github.com/n0madic/claude-chatmock/internal/config"
	"github.com/n0madic/claude-chatmock/internal/models"
	"github.com/n0madic/claude-chatmock/internal/types"
)

// handleOllamaChat handles POST /api/chat. Ollama clients stream unless
// they send "stream": false.
func (s *Server) handleOllamaChat(w http.ResponseWriter, r *http.Request) {
	compat := s.Config.Reasoning.Compat
	s.serveChat(w, r, chatRoute{
		format:        "ollama",
		defaultStream: true,
		newEncoder: func(_ gjson.Result, model string) codec.Encoder {
			return codec.NewOllamaEncoder(model, compat)
		},
	})
}

// handleOllamaTags handles GET /api/tags.
func (s *Server) handleOllamaTags(w http.ResponseWriter, r *http.Request) {
	ids := models.ModelCatalog(s.Config.ExposeReasoningModels)
	modified := time.Now().UTC().Format(time.RFC3339)
	list := types.OllamaModelList{Models: make([]types.OllamaModelEntry, 0, len(ids))}
	for _, id := range ids {
		list.Models = append(list.Models, types.OllamaModelEntry{
			Name:       id,
			Model:      id,
			ModifiedAt: modified,
			Size:       815319791,
			Digest:     "8648f39daa8fbf5b18c7b4e6a8fb4990c692751d49917417b8842ca5758e7ffc",
			Details: types.OllamaModelDetails{
				Format:            "gguf",
				Family:            "llama",
				Families:          []string{"llama"},
				ParameterSize:     "8.0B",
				QuantizationLevel: "Q4_0",
			},
		})
	}
	codec.WriteJSON(w, http.StatusOK, list)
}

// handleOllamaVersion handles GET /api/version.
func (s *Server) handleOllamaVersion(w http.ResponseWriter, r *http.Request) {
	codec.WriteJSON(w, http.StatusOK, types.OllamaVersionResponse{Version: config.OllamaVersionString})
}
