package ndjson

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/haivivi/fieldstream/pkg/fieldx"
)

// State is the lifecycle state of an Accumulator.
type State int

const (
	// StateOpen accepts further events.
	StateOpen State = iota
	// StateCompleted saw a complete event.
	StateCompleted
	// StateFailed saw an error event.
	StateFailed
	// StateTruncated ended without any terminal event.
	StateTruncated
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTruncated:
		return "truncated"
	}
	return "unknown"
}

// StreamError is an error event received from the stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "ndjson: stream error: " + e.Message
}

// AsStreamError extracts *StreamError from an error.
func AsStreamError(err error) (*StreamError, bool) {
	var e *StreamError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Accumulator builds a record from field events. Once it leaves StateOpen it
// is frozen and ignores further events.
type Accumulator struct {
	values fieldx.Record
	order  []string
	state  State
	errMsg string
}

// NewAccumulator returns an empty, open Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{values: make(fieldx.Record)}
}

// Apply applies one event. An error event freezes the accumulator and is
// returned as a *StreamError.
func (a *Accumulator) Apply(evt fieldx.Event) error {
	if a.state != StateOpen {
		return nil
	}
	switch evt.Type {
	case fieldx.EventField:
		if _, ok := a.values[evt.Field]; !ok {
			a.order = append(a.order, evt.Field)
		}
		a.values[evt.Field] = evt.Value
	case fieldx.EventComplete:
		a.state = StateCompleted
	case fieldx.EventError:
		a.state = StateFailed
		a.errMsg = evt.Error
		return &StreamError{Message: evt.Error}
	}
	return nil
}

// Truncate marks a stream that ended without a terminal event as an
// implicit completion. It has no effect once frozen.
func (a *Accumulator) Truncate() {
	if a.state == StateOpen {
		a.state = StateTruncated
	}
}

// State returns the current state.
func (a *Accumulator) State() State {
	return a.state
}

// Err returns the message of the error event, if any.
func (a *Accumulator) Err() string {
	return a.errMsg
}

// Record returns a copy of the accumulated fields.
func (a *Accumulator) Record() fieldx.Record {
	rec := make(fieldx.Record, len(a.values))
	for k, v := range a.values {
		rec[k] = v
	}
	return rec
}

// Fields returns the accumulated fields in first-arrival order.
func (a *Accumulator) Fields() []fieldx.Member {
	out := make([]fieldx.Member, 0, len(a.order))
	for _, k := range a.order {
		out = append(out, fieldx.Member{Key: k, Value: a.values[k]})
	}
	return out
}

// Consume reads events from r into a new Accumulator until a terminal event
// or the end of the stream, calling onEvent (if not nil) for each event.
//
// A complete event ends the loop with a nil error. An error event ends it
// immediately with a *StreamError; no later line is applied. A stream that
// ends without terminal event is an implicit completion: the accumulator is
// returned in StateTruncated with a nil error. The accumulator is returned
// in every case so callers can show partial progress.
//
// If ctx is done, Consume closes r (when it is an io.Closer) to unblock the
// pending read and returns ctx.Err().
func Consume(ctx context.Context, r io.Reader, onEvent func(fieldx.Event)) (*Accumulator, error) {
	if c, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	acc := NewAccumulator()
	dec := NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return acc, err
		}
		evt, err := dec.Next()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return acc, ctxErr
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				acc.Truncate()
				slog.Warn("ndjson/consume: stream ended without terminal event", "fields", len(acc.order))
				return acc, nil
			}
			return acc, err
		}
		if onEvent != nil {
			onEvent(evt)
		}
		if err := acc.Apply(evt); err != nil {
			return acc, err
		}
		if acc.State() == StateCompleted {
			return acc, nil
		}
	}
}
