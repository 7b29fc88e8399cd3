package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/n0madic/claude-chatmock/internal/stream"
)

// Encoder renders the result of one upstream call in a client wire format.
// Encoders are created per request and are not safe for concurrent use.
type Encoder interface {
	WriteStreamHeaders(w http.ResponseWriter)
	// WriteEvent renders a text, reasoning or tool-call event.
	WriteEvent(w io.Writer, ev stream.Event) error
	// WriteStop renders the success terminator of a stream.
	WriteStop(w io.Writer, st *stream.State) error
	WriteAggregate(w http.ResponseWriter, st *stream.State)
	WriteError(w http.ResponseWriter, status int, message string)
}

// Outcome reports how a streamed response ended.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeFailed       Outcome = "failed"
	OutcomeDisconnected Outcome = "disconnected"
)

// Pipe writes events to w until the stream ends, ctx is cancelled or a
// write fails. A failed upstream turn ends the response without a stop
// event. The caller cancels ctx afterwards so the producer releases the
// upstream body.
func Pipe(ctx context.Context, w http.ResponseWriter, events <-chan stream.Event, enc Encoder) Outcome {
	rc := http.NewResponseController(w)
	enc.WriteStreamHeaders(w)
	flush(rc)

	for {
		select {
		case <-ctx.Done():
			return OutcomeDisconnected
		case ev, ok := <-events:
			if !ok {
				return OutcomeDisconnected
			}
			var err error
			switch ev.Kind {
			case stream.KindFailed:
				slog.Warn("upstream.stream.failed", "error", ev.Err)
				return OutcomeFailed
			case stream.KindDone:
				err = enc.WriteStop(w, ev.State)
			default:
				err = enc.WriteEvent(w, ev)
			}
			if err == nil {
				err = flush(rc)
			}
			if err != nil {
				slog.Debug("client disconnected during stream write", "error", err)
				return OutcomeDisconnected
			}
			if ev.Kind == stream.KindDone {
				return OutcomeCompleted
			}
		}
	}
}

func flush(rc *http.ResponseController) error {
	if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// marshal encodes v without HTML escaping and without a trailing newline.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// writeSSE writes v as one "data: " event.
func writeSSE(w io.Writer, v any) error {
	data, err := marshal(v)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, "data: "+string(data)+"\n\n")
	return err
}

func writeSSEDone(w io.Writer) error {
	_, err := io.WriteString(w, "data: [DONE]\n\n")
	return err
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}
