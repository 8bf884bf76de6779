package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/haivivi/fieldstream/pkg/fieldx"
)

// Decoder reads events from a newline-delimited JSON stream. Lines are
// reassembled across arbitrary read boundaries.
type Decoder struct {
	r       *bufio.Reader
	eof     bool
	skipped int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next event. Blank lines are ignored; lines that are not
// valid JSON or carry an unknown type are logged and skipped. A final line
// without trailing newline is still decoded. Next returns io.EOF at the end
// of the stream.
func (d *Decoder) Next() (fieldx.Event, error) {
	for !d.eof {
		line, err := d.r.ReadBytes('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return fieldx.Event{}, fmt.Errorf("ndjson: read: %w", err)
			}
			d.eof = true
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var evt fieldx.Event
		if err := json.Unmarshal(line, &evt); err != nil {
			d.skipped++
			slog.Warn("ndjson/decoder: skip unparsable line", "bytes", len(line), "err", err)
			continue
		}
		switch evt.Type {
		case fieldx.EventField, fieldx.EventComplete, fieldx.EventError:
			return evt, nil
		}
		d.skipped++
		slog.Warn("ndjson/decoder: skip line with unknown type", "type", evt.Type)
	}
	return fieldx.Event{}, io.EOF
}

// Skipped returns the number of lines skipped so far.
func (d *Decoder) Skipped() int {
	return d.skipped
}
