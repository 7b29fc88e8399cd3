package observe

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInstrumentFormats(t *testing.T) {
	orig := slog.Default()
	t.Cleanup(func() { slog.SetDefault(orig) })

	var buf bytes.Buffer
	require.NoError(t, instrument(&buf, slog.LevelInfo, "json"))
	slog.Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	require.NoError(t, instrument(&buf, slog.LevelWarn, "TEXT"))
	slog.Info("dropped")
	slog.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")

	assert.Error(t, instrument(&buf, slog.LevelInfo, "xml"))
}

func TestTraceContextHandlerAddsIDs(t *testing.T) {
	orig := slog.Default()
	t.Cleanup(func() { slog.SetDefault(orig) })

	var buf bytes.Buffer
	require.NoError(t, instrument(&buf, slog.LevelInfo, "text"))

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	slog.InfoContext(ctx, "with span")
	assert.Contains(t, buf.String(), "trace_id="+span.SpanContext().TraceID().String())
	assert.Contains(t, buf.String(), "span_id="+span.SpanContext().SpanID().String())

	buf.Reset()
	slog.InfoContext(context.Background(), "without span")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestTraceContextHandlerKeepsAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	h := newTraceContextHandler(slog.NewTextHandler(&buf, nil))
	logger := slog.New(h).With("component", "proxy").WithGroup("req")
	logger.Info("msg", "id", "1")
	assert.Contains(t, buf.String(), "component=proxy")
	assert.Contains(t, buf.String(), "req.id=1")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
