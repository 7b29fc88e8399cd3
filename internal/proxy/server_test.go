package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/n0madic/claude-chatmock/internal/auth"
	"github.com/n0madic/claude-chatmock/internal/config"
	"github.com/n0madic/claude-chatmock/internal/upstream"
)

type queuedResult struct {
	body string
	err  error
}

// queuedUpstream replays canned upstream bodies in call order.
type queuedUpstream struct {
	mu      sync.Mutex
	results []queuedResult
	calls   []*upstream.Request
}

func (q *queuedUpstream) Stream(_ context.Context, req *upstream.Request) (*upstream.Response, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.calls = append(q.calls, req)
	idx := len(q.calls) - 1
	if idx >= len(q.results) {
		return nil, errors.New("no queued upstream response")
	}
	res := q.results[idx]
	if res.err != nil {
		return nil, res.err
	}
	return &upstream.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(res.body)),
		SessionID:  req.SessionID,
	}, nil
}

func (q *queuedUpstream) callCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.calls)
}

func frames(events ...string) string {
	var sb strings.Builder
	for _, ev := range events {
		sb.WriteString("data: " + ev + "\n\n")
	}
	return sb.String()
}

func upstreamBody(events ...string) queuedResult {
	return queuedResult{body: frames(events...)}
}

var helloBody = upstreamBody(
	`{"type":"response.created","response":{"id":"resp_1"}}`,
	`{"type":"response.output_text.delta","delta":"Hi"}`,
	`{"type":"response.output_text.delta","delta":" there"}`,
	`{"type":"response.completed","response":{"id":"resp_1","usage":{"input_tokens":3,"output_tokens":2,"total_tokens":5}}}`,
)

var toolBody = upstreamBody(
	`{"type":"response.created","response":{"id":"resp_tool"}}`,
	`{"type":"response.output_text.delta","delta":"Looking"}`,
	`{"type":"response.output_item.done","item":{"type":"function_call","call_id":"call_1","name":"get_weather","arguments":"{\"city\":\"Paris\"}"}}`,
	`{"type":"response.completed","response":{"id":"resp_tool"}}`,
)

var failedBody = upstreamBody(
	`{"type":"response.output_text.delta","delta":"partial"}`,
	`{"type":"response.failed","response":{"error":{"message":"quota exceeded"}}}`,
)

func testConfig() *config.Config {
	return &config.Config{
		Host:             "127.0.0.1",
		Port:             8000,
		DefaultMaxTokens: 2048,
		Reasoning:        config.ReasoningConfig{Effort: "medium", Summary: "auto", Compat: "think-tags"},
		Files:            config.FilesConfig{MaxBytes: 200000},
	}
}

func newTestServer(cfg *config.Config, up upstreamDoer) *Server {
	return New(cfg, up, Options{Instructions: "base"})
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sseData(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		require.True(t, strings.HasPrefix(block, "data: "), "unexpected block %q", block)
		out = append(out, strings.TrimPrefix(block, "data: "))
	}
	return out
}

func TestClaudeMessagesStream(t *testing.T) {
	up := &queuedUpstream{results: []queuedResult{helloBody}}
	h := newTestServer(testConfig(), up).Handler()

	rec := doRequest(t, h, http.MethodPost, "/claude/v1/messages",
		`{"model":"claude-sonnet-4-5","stream":true,"system":"be brief","messages":[{"role":"user","content":"hello"}]}`,
		map[string]string{"X-Session-Id": "sess-1"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	events := sseData(t, rec.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, "Hi", gjson.Get(events[0], "delta.messages.0.content.0.text").String())
	assert.Equal(t, " there", gjson.Get(events[1], "delta.messages.0.content.0.text").String())
	assert.Equal(t, "message_stop", gjson.Get(events[2], "type").String())
	assert.Equal(t, "end_turn", gjson.Get(events[2], "message.stop_reason").String())
	assert.Equal(t, "claude-sonnet-4-5", gjson.Get(events[2], "model").String())
	assert.Equal(t, "[DONE]", events[3])

	require.Equal(t, 1, up.callCount())
	call := up.calls[0]
	assert.Equal(t, "gpt-5.1-codex", call.Model)
	assert.Equal(t, "base\n\nbe brief", call.Instructions)
	assert.Equal(t, "sess-1", call.SessionID)
	require.Len(t, call.InputItems, 1)
	assert.Equal(t, "user", call.InputItems[0].Role)
}

func TestClaudeMessagesAggregateWithToolCall(t *testing.T) {
	up := &queuedUpstream{results: []queuedResult{toolBody}}
	h := newTestServer(testConfig(), up).Handler()

	rec := doRequest(t, h, http.MethodPost, "/claude/v1/chat/completions",
		`{"model":"claude-sonnet-4-5","messages":[{"role":"user","content":"weather?"}],
		  "tools":[{"name":"get_weather","input_schema":{"type":"object"}}]}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "resp_tool", gjson.Get(body, "id").String())
	assert.Equal(t, "tool_use", gjson.Get(body, "stop_reason").String())
	assert.Equal(t, "text", gjson.Get(body, "content.0.type").String())
	assert.Equal(t, "Looking", gjson.Get(body, "content.0.text").String())
	assert.Equal(t, "tool_use", gjson.Get(body, "content.1.type").String())
	assert.Equal(t, "call_1", gjson.Get(body, "content.1.id").String())
	assert.Equal(t, "Paris", gjson.Get(body, "content.1.input.city").String())

	require.Len(t, up.calls, 1)
	require.Len(t, up.calls[0].Tools, 1)
	assert.Equal(t, "get_weather", up.calls[0].Tools[0].Name)
}

func TestClaudeStreamFailedHasNoStop(t *testing.T) {
	up := &queuedUpstream{results: []queuedResult{failedBody}}
	h := newTestServer(testConfig(), up).Handler()

	rec := doRequest(t, h, http.MethodPost, "/claude/v1/messages",
		`{"model":"gpt-5","stream":true,"messages":[{"role":"user","content":"hi"}]}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "partial")
	assert.NotContains(t, body, "message_stop")
	assert.NotContains(t, body, "[DONE]")
}

func TestClaudeAggregateFailedIsBadGateway(t *testing.T) {
	up := &queuedUpstream{results: []queuedResult{failedBody}}
	h := newTestServer(testConfig(), up).Handler()

	rec := doRequest(t, h, http.MethodPost, "/claude/v1/messages",
		`{"model":"gpt-5","messages":[{"role":"user","content":"hi"}]}`, nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"quota exceeded"}}`, rec.Body.String())
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		result     queuedResult
		wantStatus int
		wantBody   string
		wantCalls  int
	}{
		{
			name:       "invalid json",
			path:       "/claude/v1/messages",
			body:       `{"model":`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":{"message":"Invalid JSON body"}}`,
		},
		{
			name:       "non object body",
			path:       "/v1/chat/completions",
			body:       `[1,2]`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":{"message":"Invalid JSON body"}}`,
		},
		{
			name:       "empty body has no model",
			path:       "/claude/v1/messages",
			body:       ``,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":{"message":"Missing model"}}`,
		},
		{
			name:       "blank model",
			path:       "/claude/v1/messages",
			body:       `{"model":"  ","messages":[]}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":{"message":"Missing model"}}`,
		},
		{
			name:       "ollama envelope",
			path:       "/api/chat",
			body:       `{"messages":[]}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Missing model"}`,
		},
		{
			name:       "missing credentials",
			path:       "/claude/v1/messages",
			body:       `{"model":"gpt-5","messages":[]}`,
			result:     queuedResult{err: auth.ErrNoCredentials},
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"error":{"message":"` + missingCredentialsError + `"}}`,
			wantCalls:  1,
		},
		{
			name: "upstream status",
			path: "/v1/chat/completions",
			body: `{"model":"gpt-5","messages":[]}`,
			result: queuedResult{err: &upstream.StatusError{
				StatusCode: http.StatusTooManyRequests,
				Body:       []byte(`{"error":{"message":"slow down"}}`),
			}},
			wantStatus: http.StatusBadGateway,
			wantBody:   `{"error":{"message":"slow down"}}`,
			wantCalls:  1,
		},
		{
			name:       "upstream status without message",
			path:       "/claude/v1/messages",
			body:       `{"model":"gpt-5","messages":[]}`,
			result:     queuedResult{err: &upstream.StatusError{StatusCode: http.StatusInternalServerError, Body: []byte("oops")}},
			wantStatus: http.StatusBadGateway,
			wantBody:   `{"error":{"message":"Upstream error"}}`,
			wantCalls:  1,
		},
		{
			name:       "transport",
			path:       "/claude/v1/messages",
			body:       `{"model":"gpt-5","messages":[]}`,
			result:     queuedResult{err: &upstream.TransportError{Err: errors.New("dial tcp: connection refused")}},
			wantStatus: http.StatusBadGateway,
			wantBody:   `{"error":{"message":"Upstream ChatGPT request failed: dial tcp: connection refused"}}`,
			wantCalls:  1,
		},
		{
			name:       "transport on ollama route",
			path:       "/api/chat",
			body:       `{"model":"gpt-5","messages":[]}`,
			result:     queuedResult{err: &upstream.TransportError{Err: errors.New("timeout")}},
			wantStatus: http.StatusBadGateway,
			wantBody:   `{"error":"Upstream ChatGPT request failed: timeout"}`,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &queuedUpstream{results: []queuedResult{tt.result}}
			h := newTestServer(testConfig(), up).Handler()

			rec := doRequest(t, h, http.MethodPost, tt.path, tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, tt.wantCalls, up.callCount())
		})
	}
}

func TestCountTokens(t *testing.T) {
	up := &queuedUpstream{}
	s := New(testConfig(), up, Options{})

	rec := doRequest(t, s.Handler(), http.MethodPost, "/claude/v1/messages/count_tokens",
		`{"system":"abcdefghij","messages":[]}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"input_tokens":2,"cache_create_input_tokens":0,"cache_read_input_tokens":0}`, rec.Body.String())
	assert.Zero(t, up.callCount())

	rec = doRequest(t, s.Handler(), http.MethodPost, "/claude/v1/messages/count_tokens",
		`{"messages":[{"role":"user","content":"hello there, how are you today?"}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Positive(t, gjson.Get(rec.Body.String(), "input_tokens").Int())
}

func TestOpenAIChatStreamIncludesUsage(t *testing.T) {
	up := &queuedUpstream{results: []queuedResult{helloBody}}
	h := newTestServer(testConfig(), up).Handler()

	rec := doRequest(t, h, http.MethodPost, "/v1/chat/completions",
		`{"model":"gpt-5","stream":true,"stream_options":{"include_usage":true},
		  "messages":[{"role":"system","content":"sys"},{"role":"user","content":"hi"}]}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	events := sseData(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, "[DONE]", events[len(events)-1])
	final := events[len(events)-2]
	assert.Equal(t, "stop", gjson.Get(final, "choices.0.finish_reason").String())
	assert.Equal(t, int64(5), gjson.Get(final, "usage.total_tokens").Int())

	require.Len(t, up.calls, 1)
	require.Len(t, up.calls[0].InputItems, 2)
	assert.Equal(t, "user", up.calls[0].InputItems[0].Role)
}

func TestOllamaChatStreamsByDefault(t *testing.T) {
	up := &queuedUpstream{results: []queuedResult{helloBody}}
	h := newTestServer(testConfig(), up).Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/chat",
		`{"model":"gpt-5","messages":[{"role":"user","content":"hi"}]}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Hi", gjson.Get(lines[0], "message.content").String())
	assert.True(t, gjson.Get(lines[2], "done").Bool())
	assert.Equal(t, "gpt-5", gjson.Get(lines[2], "model").String())
}

func TestOllamaChatAggregate(t *testing.T) {
	up := &queuedUpstream{results: []queuedResult{helloBody}}
	h := newTestServer(testConfig(), up).Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/chat",
		`{"model":"gpt-5","stream":false,"messages":[{"role":"user","content":"hi"}]}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hi there", gjson.Get(rec.Body.String(), "message.content").String())
	assert.True(t, gjson.Get(rec.Body.String(), "done").Bool())
}

func TestSessionHeaderFallback(t *testing.T) {
	up := &queuedUpstream{results: []queuedResult{helloBody}}
	h := newTestServer(testConfig(), up).Handler()

	doRequest(t, h, http.MethodPost, "/claude/v1/messages",
		`{"model":"gpt-5","messages":[{"role":"user","content":"hi"}]}`,
		map[string]string{"session_id": "from-underscore"})

	require.Len(t, up.calls, 1)
	assert.Equal(t, "from-underscore", up.calls[0].SessionID)
}

func TestListings(t *testing.T) {
	cfg := testConfig()
	h := newTestServer(cfg, &queuedUpstream{}).Handler()

	rec := doRequest(t, h, http.MethodGet, "/v1/models", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "list", gjson.Get(rec.Body.String(), "object").String())
	ids := gjson.Get(rec.Body.String(), "data.#.id").Array()
	require.NotEmpty(t, ids)
	assert.Equal(t, "gpt-5", ids[0].String())
	assert.Equal(t, "owner", gjson.Get(rec.Body.String(), "data.0.owned_by").String())

	rec = doRequest(t, h, http.MethodGet, "/api/tags", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(len(ids)), gjson.Get(rec.Body.String(), "models.#").Int())
	assert.Equal(t, "gpt-5", gjson.Get(rec.Body.String(), "models.0.name").String())

	rec = doRequest(t, h, http.MethodGet, "/api/version", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"version":"`+config.OllamaVersionString+`"}`, rec.Body.String())

	cfg.ExposeReasoningModels = true
	rec = doRequest(t, newTestServer(cfg, &queuedUpstream{}).Handler(), http.MethodGet, "/v1/models", "", nil)
	assert.Greater(t, len(gjson.Get(rec.Body.String(), "data").Array()), len(ids))
}

func TestHealth(t *testing.T) {
	h := newTestServer(testConfig(), &queuedUpstream{}).Handler()
	for _, path := range []string{"/", "/health"} {
		rec := doRequest(t, h, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String(), path)
	}
	rec := doRequest(t, h, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	s := New(testConfig(), &queuedUpstream{}, Options{
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "metrics")
		}),
	})
	rec := doRequest(t, s.Handler(), http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())

	rec = doRequest(t, newTestServer(testConfig(), &queuedUpstream{}).Handler(), http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := newTestServer(testConfig(), &queuedUpstream{})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, err = uuid.Parse(resp.Header.Get("X-Request-ID"))
	assert.NoError(t, err)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
