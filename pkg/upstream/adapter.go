package upstream

import (
	"encoding/json"
	"log/slog"
	"unicode/utf8"

	"github.com/haivivi/fieldstream/pkg/jsonscan"
)

// Adapter turns a provider's raw response bytes into text deltas.
//
// The body is a concatenation of envelope objects, possibly wrapped in a
// JSON array or SSE "data:" lines, and arrives in chunks that are not aligned
// to envelopes, lines or even UTF-8 sequences. Anything outside a top-level
// object is ignored.
//
// An Adapter belongs to one response and is not safe for concurrent use.
type Adapter struct {
	provider *Provider

	pending []byte
	text    string
	pos     int
	start   int
	scan    jsonscan.Scanner
	failed  bool
}

// NewAdapter creates an Adapter for the given provider.
func NewAdapter(p *Provider) *Adapter {
	return &Adapter{
		provider: p,
		scan:     jsonscan.Scanner{BracesOnly: true},
	}
}

// Feed consumes the next piece of the response body and returns the
// non-empty text deltas of every envelope completed by it, in order.
//
// If an envelope carries a provider error, Feed returns the deltas that
// preceded it together with a *SignaledError, and every later call returns
// nothing. Envelopes that fail to decode are logged and skipped.
func (a *Adapter) Feed(p []byte) ([]string, error) {
	if a.failed {
		return nil, nil
	}
	a.pending = append(a.pending, p...)
	n := completeUTF8(a.pending)
	a.text += string(a.pending[:n])
	a.pending = append(a.pending[:0], a.pending[n:]...)

	var deltas []string
	for a.pos < len(a.text) {
		c := a.text[a.pos]
		a.pos++
		if a.scan.Depth() == 0 {
			if c != '{' {
				continue
			}
			a.start = a.pos - 1
		}
		if a.scan.Step(c) != jsonscan.Close || a.scan.Depth() != 0 {
			continue
		}

		envelope := a.text[a.start:a.pos]
		a.text = a.text[a.pos:]
		a.pos = 0
		delta, err := a.envelope(envelope)
		if err != nil {
			a.failed = true
			return deltas, err
		}
		if delta != "" {
			deltas = append(deltas, delta)
		}
	}
	if a.scan.Depth() == 0 {
		a.text = ""
		a.pos = 0
	}
	return deltas, nil
}

// Flush ends the response. It reports how many trailing bytes never formed a
// complete envelope; they are logged and dropped.
func (a *Adapter) Flush() int {
	n := len(a.pending)
	if a.scan.Depth() > 0 {
		n += len(a.text) - a.start
	}
	if n > 0 {
		slog.Warn("upstream/adapter: drop incomplete envelope at end of body", "bytes", n)
	}
	a.pending = nil
	a.text = ""
	a.pos = 0
	a.scan.Reset()
	return n
}

func (a *Adapter) envelope(raw string) (string, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		slog.Warn("upstream/adapter: skip unparsable envelope", "provider", a.provider.Name, "bytes", len(raw), "err", err)
		return "", nil
	}
	msg, err := textOf(a.provider.Error, v)
	if err != nil {
		slog.Warn("upstream/adapter: evaluate error path", "provider", a.provider.Name, "err", err)
	} else if msg != "" {
		return "", &SignaledError{Message: msg}
	}
	delta, err := textOf(a.provider.Delta, v)
	if err != nil {
		slog.Warn("upstream/adapter: evaluate delta path", "provider", a.provider.Name, "err", err)
		return "", nil
	}
	return delta, nil
}

// completeUTF8 returns the length of the longest prefix of b that does not
// end inside a multi-byte sequence. Invalid bytes are left for the JSON
// decoder to replace.
func completeUTF8(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return i
			}
			break
		}
	}
	return len(b)
}
