package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/n0madic/claude-chatmock/internal/codec"
	"github.com/n0madic/claude-chatmock/internal/config"
	"github.com/n0madic/claude-chatmock/internal/observe"
	"github.com/n0madic/claude-chatmock/internal/upstream"
)

const shutdownTimeout = 5 * time.Second

// upstreamDoer abstracts the ChatGPT upstream client so the proxy handlers can
// be tested with a mock without a real network connection.
type upstreamDoer interface {
	Stream(context.Context, *upstream.Request) (*upstream.Response, error)
}

// Options carries the optional collaborators of a Server.
type Options struct {
	// Instructions is the base instruction text sent with every request.
	Instructions string
	Metrics      *observe.Metrics
	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
}

// Server is the main proxy HTTP server.
type Server struct {
	Config         *config.Config
	upstreamClient upstreamDoer
	instructions   string
	metrics        *observe.Metrics
	metricsHandler http.Handler
	httpServer     *http.Server
}

// New creates a proxy server with all routes registered.
func New(cfg *config.Config, up upstreamDoer, opts Options) *Server {
	met := opts.Metrics
	if met == nil {
		met = observe.NopMetrics()
	}
	s := &Server{
		Config:         cfg,
		upstreamClient: up,
		instructions:   opts.Instructions,
		metrics:        met,
		metricsHandler: opts.MetricsHandler,
	}
	s.httpServer = &http.Server{
		Addr:    cfg.Addr(),
		Handler: s.Handler(),
		// ReadTimeout covers reading the request body only.
		ReadTimeout: 30 * time.Second,
		// WriteTimeout must outlast the upstream stream deadline.
		WriteTimeout: 600 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Claude-style routes
	mux.HandleFunc("POST /claude/v1/messages", s.handleClaudeMessages)
	mux.HandleFunc("POST /claude/v1/chat/completions", s.handleClaudeMessages)
	mux.HandleFunc("POST /claude/v1/messages/count_tokens", s.handleClaudeCountTokens)

	// OpenAI-compatible routes
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("GET /v1/models", s.handleListModels)

	// Ollama-compatible routes
	mux.HandleFunc("POST /api/chat", s.handleOllamaChat)
	mux.HandleFunc("GET /api/tags", s.handleOllamaTags)
	mux.HandleFunc("GET /api/version", s.handleOllamaVersion)

	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	// corsMiddleware answers OPTIONS preflight before routing.
	var h http.Handler = mux
	h = s.accessTokenMiddleware(h)
	h = corsMiddleware(h)
	h = s.metrics.Middleware(h)
	h = recoverer(h)
	h = requestIDPropagation(h)
	h = traceContextExtraction(h)
	h = requestLogger(slog.Default())(h)
	h = requestIDGeneration(h)
	return h
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts the
// server down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.InfoContext(gCtx, "listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		slog.InfoContext(shutdownCtx, "server stopped")
		return nil
	})

	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	codec.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
