package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/n0madic/claude-chatmock/internal/auth"
	"github.com/n0madic/claude-chatmock/internal/limits"
	"github.com/n0madic/claude-chatmock/internal/session"
	"github.com/n0madic/claude-chatmock/internal/transform"
	"github.com/n0madic/claude-chatmock/internal/types"
)

const (
	// DefaultURL is the ChatGPT backend Responses endpoint.
	DefaultURL = "https://chatgpt.com/backend-api/codex/responses"

	// DefaultTimeout bounds one upstream call including the streamed body.
	DefaultTimeout = 5 * time.Minute

	tracerName = "github.com/n0madic/claude-chatmock/internal/upstream"
)

// ErrMissingModel is returned for a request without a resolved model.
var ErrMissingModel = errors.New("missing model")

// CredentialSource supplies the bearer token and ChatGPT account id.
type CredentialSource interface {
	Credentials(ctx context.Context) (accessToken, accountID string, err error)
}

// Request holds the parameters for one upstream Responses call.
type Request struct {
	Model             string
	Instructions      string
	InputItems        []types.ResponsesInputItem
	Tools             []types.ResponsesTool
	ToolChoice        any
	ParallelToolCalls bool
	Include           []string
	Reasoning         *types.ReasoningParam
	MaxOutputTokens   int
	SessionID         string // client-supplied session id override
}

// NewRequest converts a canonical conversation into an upstream request.
func NewRequest(conv *types.Conversation) *Request {
	return &Request{
		Model:             conv.Model,
		Instructions:      conv.Instructions,
		InputItems:        transform.ToResponsesInput(conv.Messages),
		Tools:             conv.Tools,
		ToolChoice:        conv.ToolChoice,
		ParallelToolCalls: conv.ParallelToolCalls,
		Include:           conv.Include,
		Reasoning:         conv.Reasoning,
		MaxOutputTokens:   conv.MaxTokens,
		SessionID:         conv.SessionID,
	}
}

// Response is a successful (2xx) upstream response. Body must be closed.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	SessionID  string
}

// StatusError is a non-2xx upstream response. The body has been read and closed.
type StatusError struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// TransportError wraps a failure to issue the upstream call.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "upstream request failed: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Client makes requests to the ChatGPT backend.
type Client struct {
	Credentials CredentialSource
	Sessions    *session.Cache
	Limits      limits.Recorder
	HTTPClient  *http.Client
	URL         string
	Verbose     bool
	// ForwardMaxTokens sends max_output_tokens upstream. The ChatGPT
	// backend rejects the field, so it is off by default.
	ForwardMaxTokens bool
}

// Options configures NewClient.
type Options struct {
	URL              string
	Timeout          time.Duration
	Verbose          bool
	ForwardMaxTokens bool
}

// NewClient creates a new upstream client.
func NewClient(creds CredentialSource, sessions *session.Cache, rec limits.Recorder, opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if sessions == nil {
		sessions = session.NewCache(session.DefaultCapacity)
	}
	return &Client{
		Credentials:      creds,
		Sessions:         sessions,
		Limits:           rec,
		HTTPClient:       &http.Client{Timeout: opts.Timeout},
		URL:              opts.URL,
		Verbose:          opts.Verbose,
		ForwardMaxTokens: opts.ForwardMaxTokens,
	}
}

// Stream issues the streamed Responses call. Missing credentials yield
// auth.ErrNoCredentials, a failed round trip *TransportError and a non-2xx
// status *StatusError. Nothing is retried.
func (c *Client) Stream(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "upstream.responses")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.input_items", len(req.InputItems)),
		attribute.Int("llm.tools", len(req.Tools)),
	)

	resp, err := c.stream(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	return resp, nil
}

func (c *Client) stream(ctx context.Context, req *Request) (*Response, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, ErrMissingModel
	}
	if c.Credentials == nil {
		return nil, auth.ErrNoCredentials
	}
	accessToken, accountID, err := c.Credentials.Credentials(ctx)
	if err != nil || accessToken == "" || accountID == "" {
		if err != nil && !errors.Is(err, auth.ErrNoCredentials) {
			slog.WarnContext(ctx, "upstream.credentials", "error", err)
		}
		return nil, auth.ErrNoCredentials
	}

	sessionID := req.SessionID
	if c.Sessions != nil {
		sessionID = c.Sessions.Key(req.Instructions, req.InputItems, req.SessionID)
	}
	payload := c.payload(req, sessionID)

	if c.Verbose {
		reasoningEffort, reasoningSummary := "", ""
		if payload.Reasoning != nil {
			reasoningEffort = payload.Reasoning.Effort
			reasoningSummary = payload.Reasoning.Summary
		}
		slog.InfoContext(ctx, "upstream.request",
			"model", payload.Model,
			"input_items", len(payload.Input),
			"tools", len(payload.Tools),
			"tool_choice", summarizeToolChoice(payload.ToolChoice),
			"include_count", len(payload.Include),
			"reasoning_effort", reasoningEffort,
			"reasoning_summary", reasoningSummary,
			"max_output_tokens", payload.MaxOutputTokens,
			"instructions_chars", len(payload.Instructions),
			"session_id", sessionID,
		)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("chatgpt-account-id", accountID)
	httpReq.Header.Set("OpenAI-Beta", "responses=experimental")
	httpReq.Header.Set("session_id", sessionID)

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if c.Verbose {
		attrs := []any{"status", resp.StatusCode}
		if requestID := upstreamRequestID(resp.Header); requestID != "" {
			attrs = append(attrs, "request_id", requestID)
		}
		slog.InfoContext(ctx, "upstream.response", attrs...)
	}

	rc := decodeBody(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(rc, 1<<20))
		_ = rc.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: raw, Header: resp.Header}
	}
	if c.Limits != nil {
		c.Limits.Record(resp.Header)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       rc,
		SessionID:  sessionID,
	}, nil
}

func (c *Client) payload(req *Request, sessionID string) types.UpstreamPayload {
	input := req.InputItems
	if input == nil {
		input = []types.ResponsesInputItem{}
	}
	tools := req.Tools
	if tools == nil {
		tools = []types.ResponsesTool{}
	}
	payload := types.UpstreamPayload{
		Model:             req.Model,
		Instructions:      req.Instructions,
		Input:             input,
		Tools:             tools,
		ToolChoice:        sanitizeToolChoice(req.ToolChoice),
		ParallelToolCalls: req.ParallelToolCalls,
		Store:             false,
		Stream:            true,
		PromptCacheKey:    sessionID,
		Include:           mergeIncludes(req.Include, req.Reasoning != nil),
		Reasoning:         req.Reasoning,
	}
	if c.ForwardMaxTokens && req.MaxOutputTokens > 0 {
		payload.MaxOutputTokens = req.MaxOutputTokens
	}
	return payload
}

type readCloser struct {
	io.Reader
	io.Closer
}

// decodeBody transparently decodes a brotli-encoded body. Other encodings
// are left to net/http.
func decodeBody(resp *http.Response) io.ReadCloser {
	if strings.EqualFold(strings.TrimSpace(resp.Header.Get("Content-Encoding")), "br") {
		return readCloser{Reader: brotli.NewReader(resp.Body), Closer: resp.Body}
	}
	return resp.Body
}

func sanitizeToolChoice(choice any) any {
	switch tc := choice.(type) {
	case string:
		if tc == "auto" || tc == "none" {
			return tc
		}
	case map[string]any:
		return tc
	}
	return "auto"
}

func summarizeToolChoice(choice any) string {
	switch v := choice.(type) {
	case nil:
		return "auto"
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return "auto"
		}
		return v
	case map[string]any:
		kind, _ := v["type"].(string)
		if name, _ := v["name"].(string); name != "" {
			if kind == "" {
				kind = "function"
			}
			return kind + ":" + name
		}
		if kind != "" {
			return kind
		}
		return "object"
	default:
		return fmt.Sprintf("%T", choice)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func upstreamRequestID(headers http.Header) string {
	if headers == nil {
		return ""
	}
	return firstNonEmpty(
		headers.Get("x-request-id"),
		headers.Get("x-openai-request-id"),
		headers.Get("x-oai-request-id"),
		headers.Get("openai-request-id"),
		headers.Get("cf-ray"),
	)
}

func mergeIncludes(clientInclude []string, includeReasoning bool) []string {
	var merged []string
	seen := make(map[string]struct{})

	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		merged = append(merged, v)
	}

	for _, v := range clientInclude {
		add(v)
	}
	if includeReasoning {
		add("reasoning.encrypted_content")
	}
	return merged
}
