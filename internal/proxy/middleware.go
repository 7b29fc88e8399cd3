package proxy

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/go-chi/httplog/v3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/n0madic/claude-chatmock/internal/codec"
)

const serverAccessTokenError = "Invalid or missing server access token"

// corsHeaders is the fixed CORS header set. Headers a handler sets itself
// are never overwritten.
var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "POST, GET, OPTIONS",
	"Access-Control-Max-Age":       "86400",
}

const defaultAllowHeaders = "Authorization, Content-Type, Accept, X-Session-Id, x-api-key, anthropic-version"

// corsMiddleware allows requests from any origin so browser-based IDE
// extensions can reach the local proxy.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for k, v := range corsHeaders {
			setDefault(h, k, v)
		}
		allow := r.Header.Get("Access-Control-Request-Headers")
		if allow == "" {
			allow = defaultAllowHeaders
		}
		setDefault(h, "Access-Control-Allow-Headers", allow)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func setDefault(h http.Header, key, value string) {
	if h.Get(key) == "" {
		h.Set(key, value)
	}
}

func (s *Server) accessTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := ""
		if s.Config != nil {
			expected = strings.TrimSpace(s.Config.AccessToken)
		}
		if expected == "" || r.Method == http.MethodOptions || !requiresAccessToken(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := parseBearerAuthToken(r.Header.Get("Authorization"))
		if !ok && isClaudePath(r.URL.Path) {
			token = strings.TrimSpace(r.Header.Get("x-api-key"))
			ok = token != ""
		}
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			writeRouteError(w, r, http.StatusUnauthorized, serverAccessTokenError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func parseBearerAuthToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}

func requiresAccessToken(path string) bool {
	return isClaudePath(path) || strings.HasPrefix(path, "/v1/") || isOllamaPath(path)
}

func isClaudePath(path string) bool { return strings.HasPrefix(path, "/claude/") }

func isOllamaPath(path string) bool { return strings.HasPrefix(path, "/api/") }

// writeRouteError writes the error envelope of the route family.
func writeRouteError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if isOllamaPath(r.URL.Path) {
		codec.WriteOllamaError(w, status, message)
		return
	}
	codec.WriteError(w, status, message)
}

// requestLogger logs one line per request. Headers and bodies other than
// content type and origin are never logged.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema:             httplog.SchemaECS.Concise(true),
		LogRequestHeaders:  []string{"Content-Type", "Origin"},
		LogResponseHeaders: []string{},
		RecoverPanics:      false,
	})
}

func setLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	httplog.SetAttrs(ctx, attrs...)
}

type requestIDKey struct{}

// requestIDGeneration keeps the client's X-Request-ID or generates one.
func requestIDGeneration(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestIDPropagation echoes the request id to the client and the request log.
func requestIDPropagation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := requestID(r.Context()); id != "" {
			w.Header().Set("X-Request-ID", id)
			setLogAttrs(r.Context(), slog.String("request_id", id))
		}
		next.ServeHTTP(w, r)
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// traceContextExtraction joins the caller's W3C trace so upstream spans and
// logs share its trace id.
func traceContextExtraction(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			setLogAttrs(ctx,
				slog.String("trace_id", sc.TraceID().String()),
				slog.String("span_id", sc.SpanID().String()),
			)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoverer turns a handler panic into a 500 with the route's error envelope.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.ErrorContext(r.Context(), "panic recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			writeRouteError(w, r, http.StatusInternalServerError, "Internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}
