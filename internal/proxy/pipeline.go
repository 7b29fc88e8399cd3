package proxy

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/n0madic/claude-chatmock/internal/auth"
	"github.com/n0madic/claude-chatmock/internal/codec"
	"github.com/n0madic/claude-chatmock/internal/reasoning"
	"github.com/n0madic/claude-chatmock/internal/stream"
	"github.com/n0madic/claude-chatmock/internal/transform"
	"github.com/n0madic/claude-chatmock/internal/types"
	"github.com/n0madic/claude-chatmock/internal/upstream"
)

const maxBodyBytes = 10 << 20

const (
	missingCredentialsError = "Missing ChatGPT credentials. Run 'codex login' or 'claude-chatmock info' to check your sign-in."
	missingModelError       = "Missing model"
	invalidJSONError        = "Invalid JSON body"
)

// chatRoute describes one client-facing variant of the chat pipeline.
type chatRoute struct {
	// format labels logs and metrics.
	format        string
	shape         string
	defaultStream bool
	newEncoder    func(body gjson.Result, model string) codec.Encoder
}

// readBody reads and validates a JSON object body. An empty body reads as {}.
func readBody(w http.ResponseWriter, r *http.Request) (gjson.Result, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeRouteError(w, r, http.StatusBadRequest, "Failed to read request body")
		return gjson.Result{}, false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	if !gjson.ValidBytes(raw) {
		writeRouteError(w, r, http.StatusBadRequest, invalidJSONError)
		return gjson.Result{}, false
	}
	body := gjson.ParseBytes(raw)
	if !body.IsObject() {
		writeRouteError(w, r, http.StatusBadRequest, invalidJSONError)
		return gjson.Result{}, false
	}
	return body, true
}

func (s *Server) conversationOptions(defaultStream bool) transform.Options {
	cfg := s.Config
	return transform.Options{
		BaseInstructions: s.instructions,
		Files:            transform.FilePolicy{Root: cfg.Files.Root, MaxBytes: cfg.Files.MaxBytes},
		DefaultMaxTokens: cfg.DefaultMaxTokens,
		DebugModel:       cfg.DebugModel,
		Reasoning:        reasoning.Defaults{Effort: cfg.Reasoning.Effort, Summary: cfg.Reasoning.Summary},
		DefaultStream:    defaultStream,
	}
}

func sessionHeader(r *http.Request) string {
	return cmp.Or(
		strings.TrimSpace(r.Header.Get("X-Session-Id")),
		strings.TrimSpace(r.Header.Get("session_id")),
	)
}

// serveChat runs one request through normalization, the upstream call and
// the route's encoder.
func (s *Server) serveChat(w http.ResponseWriter, r *http.Request, rt chatRoute) {
	ctx := r.Context()
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	conv := transform.BuildConversation(body, s.conversationOptions(rt.defaultStream))
	if conv.Model == "" {
		writeRouteError(w, r, http.StatusBadRequest, missingModelError)
		return
	}
	conv.SessionID = sessionHeader(r)
	setLogAttrs(ctx, slog.String("model", conv.Model), slog.Bool("stream", conv.Stream))

	if s.Config.Debug {
		slog.DebugContext(ctx, rt.format+".request",
			"requested_model", conv.RequestedModel,
			"upstream_model", conv.Model,
			"stream", conv.Stream,
			"messages", len(conv.Messages),
			"tools", len(conv.Tools),
			"tool_choice", transform.EchoToolChoice(conv.ToolChoice, rt.shape),
			"instructions_chars", len(conv.Instructions),
			"max_tokens", conv.MaxTokens,
			"session_override", conv.SessionID != "",
		)
	}

	start := time.Now()
	resp, err := s.upstreamClient.Stream(ctx, upstream.NewRequest(conv))
	if err != nil {
		status, message, outcome := upstreamFailure(err)
		s.metrics.RecordUpstream(ctx, conv.Model, outcome, time.Since(start))
		if status >= http.StatusInternalServerError {
			slog.WarnContext(ctx, "upstream.failed", "model", conv.Model, "error", err)
		}
		writeRouteError(w, r, status, message)
		return
	}
	s.metrics.RecordUpstream(ctx, conv.Model, "ok", time.Since(start))
	if resp.SessionID != "" {
		setLogAttrs(ctx, slog.String("session_id", resp.SessionID))
	}

	enc := rt.newEncoder(body, cmp.Or(strings.TrimSpace(conv.RequestedModel), conv.Model))
	if conv.Stream {
		s.streamResponse(w, r, rt.format, enc, resp)
		return
	}
	s.aggregateResponse(w, r, rt.format, enc, resp)
}

// upstreamFailure maps an upstream call error to a client status, message
// and metrics outcome.
func upstreamFailure(err error) (int, string, string) {
	var statusErr *upstream.StatusError
	var transportErr *upstream.TransportError
	switch {
	case errors.Is(err, upstream.ErrMissingModel):
		return http.StatusBadRequest, missingModelError, "invalid"
	case errors.Is(err, auth.ErrNoCredentials):
		return http.StatusUnauthorized, missingCredentialsError, "unauthorized"
	case errors.As(err, &statusErr):
		return http.StatusBadGateway, codec.UpstreamErrorMessage(statusErr.Body), "status"
	case errors.As(err, &transportErr):
		return http.StatusBadGateway, transportMessage(transportErr.Err), "transport"
	default:
		return http.StatusBadGateway, transportMessage(err), "transport"
	}
}

func transportMessage(err error) string {
	return fmt.Sprintf("Upstream ChatGPT request failed: %v", err)
}

// countingEncoder counts relayed tool calls for metrics.
type countingEncoder struct {
	codec.Encoder
	toolCalls int
}

func (e *countingEncoder) WriteEvent(w io.Writer, ev stream.Event) error {
	if ev.Kind == stream.KindToolCall {
		e.toolCalls++
	}
	return e.Encoder.WriteEvent(w, ev)
}

func (s *Server) streamResponse(w http.ResponseWriter, r *http.Request, format string, enc codec.Encoder, resp *upstream.Response) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	mctx := context.WithoutCancel(r.Context())

	done := s.metrics.StreamStarted(mctx, format)
	defer done()

	counter := &countingEncoder{Encoder: enc}
	events := stream.Stream(ctx, resp.Body, stream.DefaultResponseID)
	outcome := codec.Pipe(ctx, w, events, counter)
	cancel()

	s.metrics.RecordStream(mctx, format, string(outcome))
	s.metrics.RecordToolCalls(mctx, format, counter.toolCalls)
	if outcome != codec.OutcomeCompleted {
		slog.InfoContext(mctx, "stream.ended", "format", format, "outcome", outcome)
	}
}

func (s *Server) aggregateResponse(w http.ResponseWriter, r *http.Request, format string, enc codec.Encoder, resp *upstream.Response) {
	ctx := r.Context()
	mctx := context.WithoutCancel(ctx)

	st, err := stream.Aggregate(ctx, resp.Body, stream.DefaultResponseID)
	if err != nil {
		var failed *stream.FailedError
		switch {
		case errors.As(err, &failed):
			s.metrics.RecordStream(mctx, format, string(codec.OutcomeFailed))
			writeRouteError(w, r, http.StatusBadGateway, cmp.Or(failed.Message, codec.FallbackUpstreamError))
		case ctx.Err() != nil:
			s.metrics.RecordStream(mctx, format, string(codec.OutcomeDisconnected))
		default:
			s.metrics.RecordStream(mctx, format, string(codec.OutcomeFailed))
			writeRouteError(w, r, http.StatusBadGateway, transportMessage(err))
		}
		return
	}

	s.metrics.RecordStream(mctx, format, string(codec.OutcomeCompleted))
	s.metrics.RecordToolCalls(mctx, format, len(st.ToolCalls))
	enc.WriteAggregate(w, st)
}

// estimateTokens returns the input token estimate for a conversation.
func estimateTokens(conv *types.Conversation) types.CountTokensResponse {
	items := transform.ToResponsesInput(conv.Messages)
	return types.CountTokensResponse{
		InputTokens: transform.EstimateInputTokens(conv.Instructions, items),
	}
}
