package stream

import (
	"context"
	"errors"
	"io"
)

// DefaultResponseID is reported until the upstream supplies an id.
const DefaultResponseID = "claude-msg"

// Kind identifies an Event.
type Kind int

const (
	KindText Kind = iota + 1
	KindReasoning
	KindToolCall
	// KindDone ends a successful stream and carries the final State.
	KindDone
	// KindFailed ends a stream that must not be reported as a success.
	KindFailed
)

// Event is one item produced by Stream.
type Event struct {
	Kind       Kind
	ResponseID string
	Text       string
	ToolCall   *ToolCall
	State      *State
	Err        error
}

// FailedError is the upstream's in-stream failure.
type FailedError struct {
	Message string
}

func (e *FailedError) Error() string { return e.Message }

// Stream decodes body on its own goroutine and delivers events in order.
// The channel closes after a KindDone or KindFailed event, or without one
// when ctx is cancelled. body is always closed before the channel closes.
//
// A read error ends the stream with KindFailed: the upstream never
// confirmed the turn, so no success terminator may be produced.
func Stream(ctx context.Context, body io.ReadCloser, responseID string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		defer body.Close()

		send := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		dec := NewDecoder(responseID)
		r := NewReader(body)
		for !dec.Finished() {
			if ctx.Err() != nil {
				return
			}
			f, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if ctx.Err() == nil {
					send(Event{Kind: KindFailed, State: dec.State(), Err: err})
				}
				return
			}
			if ev, ok := dec.Decode(f); ok && !send(ev) {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		if msg := dec.Failure(); msg != "" {
			send(Event{Kind: KindFailed, State: dec.State(), Err: &FailedError{Message: msg}})
			return
		}
		send(Event{Kind: KindDone, State: dec.State()})
	}()
	return out
}

// Aggregate consumes body to completion and returns the final state.
// An upstream failure is returned as *FailedError.
func Aggregate(ctx context.Context, body io.ReadCloser, responseID string) (*State, error) {
	for ev := range Stream(ctx, body, responseID) {
		switch ev.Kind {
		case KindDone:
			return ev.State, nil
		case KindFailed:
			return ev.State, ev.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, io.ErrUnexpectedEOF
}
