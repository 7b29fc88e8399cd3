// Package observe wires logging, tracing and metrics for the proxy.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed to
// Prometheus by [NewProvider]. Tests build [Metrics] from their own
// [metric.MeterProvider] with [NewMetrics].
package observe

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/n0madic/claude-chatmock"

// Metrics holds the proxy's instruments. All fields are safe for concurrent use.
type Metrics struct {
	// HTTPRequests counts served requests by method, path and status.
	HTTPRequests metric.Int64Counter

	// HTTPRequestDuration tracks handler time including streamed bodies.
	HTTPRequestDuration metric.Float64Histogram

	// UpstreamRequests counts upstream calls by model and outcome.
	UpstreamRequests metric.Int64Counter

	// UpstreamLatency tracks time until upstream response headers.
	UpstreamLatency metric.Float64Histogram

	// StreamOutcomes counts finished client streams by format and outcome.
	StreamOutcomes metric.Int64Counter

	// ToolCalls counts tool calls relayed to clients.
	ToolCalls metric.Int64Counter

	// ActiveStreams tracks client streams in flight.
	ActiveStreams metric.Int64UpDownCounter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.HTTPRequests, err = m.Int64Counter("chatmock.http.requests",
		metric.WithDescription("Total HTTP requests by method, path and status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("chatmock.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UpstreamRequests, err = m.Int64Counter("chatmock.upstream.requests",
		metric.WithDescription("Total upstream Responses calls by model and outcome."),
	); err != nil {
		return nil, err
	}
	if met.UpstreamLatency, err = m.Float64Histogram("chatmock.upstream.latency",
		metric.WithDescription("Time until upstream response headers."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StreamOutcomes, err = m.Int64Counter("chatmock.stream.outcomes",
		metric.WithDescription("Finished client streams by format and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("chatmock.tool_calls",
		metric.WithDescription("Tool calls relayed to clients by format."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("chatmock.active_streams",
		metric.WithDescription("Client streams in flight."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// NopMetrics returns instruments that record nothing.
func NopMetrics() *Metrics {
	met, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}
	return met
}

// RecordUpstream records one upstream call.
func (m *Metrics) RecordUpstream(ctx context.Context, model, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("outcome", outcome),
	)
	m.UpstreamRequests.Add(ctx, 1, attrs)
	m.UpstreamLatency.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordStream records a finished client stream.
func (m *Metrics) RecordStream(ctx context.Context, format, outcome string) {
	m.StreamOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("format", format),
		attribute.String("outcome", outcome),
	))
}

// RecordToolCalls adds n relayed tool calls.
func (m *Metrics) RecordToolCalls(ctx context.Context, format string, n int) {
	if n <= 0 {
		return
	}
	m.ToolCalls.Add(ctx, int64(n), metric.WithAttributes(attribute.String("format", format)))
}

// StreamStarted increments ActiveStreams and returns the matching decrement.
func (m *Metrics) StreamStarted(ctx context.Context, format string) func() {
	attrs := metric.WithAttributes(attribute.String("format", format))
	m.ActiveStreams.Add(ctx, 1, attrs)
	return func() { m.ActiveStreams.Add(context.WithoutCancel(ctx), -1, attrs) }
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	wrote      bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.statusCode = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the flusher underneath.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware records request count and duration.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		ctx := context.WithoutCancel(r.Context())
		m.HTTPRequests.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("path", r.URL.Path),
			attribute.String("status", strconv.Itoa(rec.statusCode)),
		))
		m.HTTPRequestDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("path", r.URL.Path),
		))
	})
}
