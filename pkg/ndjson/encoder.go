package ndjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/haivivi/fieldstream/pkg/fieldx"
)

// MediaType is the content type of a field stream.
const MediaType = "application/x-ndjson"

// ErrTerminated is returned when writing after a terminal event.
var ErrTerminated = errors.New("ndjson: stream already terminated")

type flushErrorer interface {
	Flush() error
}

// Encoder writes events as newline-delimited JSON, one line per event,
// flushing after every line.
type Encoder struct {
	w          io.Writer
	terminated bool
	lines      int
}

// NewEncoder returns an Encoder writing to w. If w implements http.Flusher
// or Flush() error, it is flushed after each event. If w implements
// io.Closer, it is closed right after the terminal event.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one event. After a Complete or Error event the stream is
// closed and further calls return ErrTerminated.
func (e *Encoder) Encode(evt fieldx.Event) error {
	if e.terminated {
		return ErrTerminated
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("ndjson: marshal %s event: %w", evt.Type, err)
	}
	b = append(b, '\n')
	if _, err := e.w.Write(b); err != nil {
		return fmt.Errorf("ndjson: write: %w", err)
	}
	e.lines++
	if err := e.flush(); err != nil {
		return err
	}
	if evt.Terminal() {
		e.terminated = true
		if c, ok := e.w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				return fmt.Errorf("ndjson: close: %w", err)
			}
		}
	}
	return nil
}

func (e *Encoder) flush() error {
	switch f := e.w.(type) {
	case http.Flusher:
		f.Flush()
	case flushErrorer:
		if err := f.Flush(); err != nil {
			return fmt.Errorf("ndjson: flush: %w", err)
		}
	}
	return nil
}

// Terminated reports whether a terminal event has been written.
func (e *Encoder) Terminated() bool {
	return e.terminated
}

// Lines returns the number of events written.
func (e *Encoder) Lines() int {
	return e.lines
}
