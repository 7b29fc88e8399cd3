package codec

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/n0madic/claude-chatmock/internal/types"
)

// FallbackUpstreamError is reported when an upstream error body carries no
// usable message.
const FallbackUpstreamError = "Upstream error"

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	data, err := marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// WriteError writes the {"error":{"message":...}} envelope used by the
// Claude and OpenAI routes.
func WriteError(w http.ResponseWriter, status int, message string) {
	slog.Error("request failed", "status", status, "error", message)
	WriteJSON(w, status, types.ErrorResponse{Error: types.ErrorDetail{Message: message}})
}

// WriteOllamaError writes an Ollama-format error response.
func WriteOllamaError(w http.ResponseWriter, status int, message string) {
	slog.Error("request failed", "status", status, "error", message)
	WriteJSON(w, status, map[string]string{"error": message})
}

// UpstreamErrorMessage extracts the message from an upstream error body,
// falling back to FallbackUpstreamError.
func UpstreamErrorMessage(body []byte) string {
	if msg := ExtractUpstreamErrorMessage(body); msg != "" {
		return msg
	}
	return FallbackUpstreamError
}

// ExtractUpstreamErrorMessage finds a human readable message in common
// error body shapes: top-level message fields, a nested "error" object or
// string, or an "errors" list.
func ExtractUpstreamErrorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	return errorMessage(gjson.ParseBytes(body))
}

func errorMessage(v gjson.Result) string {
	if !v.IsObject() {
		return ""
	}
	for _, key := range []string{"message", "detail", "error_description", "title", "reason"} {
		if s := nonBlank(v.Get(key)); s != "" {
			return s
		}
	}
	if e := v.Get("error"); e.IsObject() {
		if msg := errorMessage(e); msg != "" {
			return msg
		}
	} else if s := nonBlank(e); s != "" {
		return s
	}
	for _, item := range v.Get("errors").Array() {
		if msg := errorMessage(item); msg != "" {
			return msg
		}
		if s := nonBlank(item); s != "" {
			return s
		}
	}
	return ""
}

func nonBlank(v gjson.Result) string {
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.Str)
}
