package fieldx

import (
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/haivivi/fieldstream/pkg/jsonscan"
)

// Option configures an Extractor.
type Option func(*Extractor)

// WithRepair makes Finalize attempt a JSON repair of the remaining buffer
// when nothing else resolves, so a truncated generation still yields its
// partially written fields. Repaired values may be incomplete strings or
// lists.
func WithRepair() Option {
	return func(x *Extractor) {
		x.repair = true
	}
}

// Extractor reconstructs one JSON object from text that arrives left to
// right, and reports each top-level field as soon as its value is
// syntactically complete.
//
// An Extractor belongs to a single reconstruction and is not safe for
// concurrent use. Feed it with ProcessChunk, then call Finalize exactly once.
type Extractor struct {
	buf     string
	emitted map[string]Value
	order   []string

	// from is where the search for the next object starts. Balanced spans
	// before it failed to parse and stay in buf unread.
	from int
	// obj is the offset of the object scanFields last walked, and walk the
	// offset of its first unresolved member. obj is -1 when unset.
	obj  int
	walk int

	repair    bool
	aborted   bool
	finalized bool
}

// NewExtractor creates an Extractor with an empty buffer.
func NewExtractor(opts ...Option) *Extractor {
	x := &Extractor{
		emitted: make(map[string]Value),
		obj:     -1,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// ProcessChunk appends text to the buffer and returns a Field event for every
// top-level field whose value became complete or changed. It returns nil once
// the extractor is finalized or aborted.
func (x *Extractor) ProcessChunk(text string) []Event {
	if x.aborted || x.finalized {
		return nil
	}
	x.buf += text
	return x.scan(nil)
}

// Finalize flushes the buffer at end of stream and returns the trailing
// Field events followed by a single Complete event. When the last scan
// resolves nothing, the whole remaining buffer is parsed as one object; if
// that fails the tail is dropped silently. Finalize returns nil on every call
// after the first, and after Abort.
func (x *Extractor) Finalize() []Event {
	if x.finalized {
		return nil
	}
	x.finalized = true
	defer x.reset()
	if x.aborted {
		return nil
	}

	events := x.scan(nil)
	if len(events) == 0 {
		events = x.parseRemainder(events)
	}
	return append(events, CompleteEvent())
}

// Abort stops the reconstruction because the upstream signaled an error. It
// returns a single Error event; later calls to ProcessChunk, Finalize and
// Abort return nil.
func (x *Extractor) Abort(message string) []Event {
	if x.aborted || x.finalized {
		return nil
	}
	x.aborted = true
	return []Event{ErrorEvent(message)}
}

// Snapshot returns the last emitted value of every field.
func (x *Extractor) Snapshot() Record {
	rec := make(Record, len(x.emitted))
	for k, v := range x.emitted {
		rec[k] = v
	}
	return rec
}

// Fields returns emitted field names in first-emission order.
func (x *Extractor) Fields() []string {
	return append([]string(nil), x.order...)
}

// Buffered returns the number of bytes waiting in the buffer.
func (x *Extractor) Buffered() int {
	return len(x.buf)
}

func (x *Extractor) scan(events []Event) []Event {
	events = x.scanObjects(events)
	return x.scanFields(events)
}

func (x *Extractor) reset() {
	x.buf = ""
	x.from = 0
	x.obj = -1
	x.walk = 0
}

// next returns the offset of the next candidate opening brace, or -1.
func (x *Extractor) next() int {
	i := strings.IndexByte(x.buf[x.from:], '{')
	if i < 0 {
		return -1
	}
	return x.from + i
}

// scanObjects consumes every complete top-level object at the front of the
// buffer. Text before an object's opening brace is consumed with it. A
// balanced span that is not a valid object, like "{placeholder}" in prose,
// can never become one: the search moves past it and the text stays in the
// buffer.
func (x *Extractor) scanObjects(events []Event) []Event {
	for {
		start := x.next()
		if start < 0 {
			return events
		}
		end := jsonscan.MatchObject(x.buf, start)
		if end < 0 {
			return events
		}
		members, err := DecodeObject(x.buf[start:end])
		if err != nil {
			slog.Debug("fieldx/extractor: skip unparsable object", "bytes", end-start, "err", err)
			x.from = end
			continue
		}
		events = x.diff(members, events)
		x.buf = x.buf[end:]
		x.from = 0
		x.obj = -1
	}
}

// scanFields walks the top-level members of the object being built and emits
// every member whose value is closed and followed by ',' or '}'. Nested
// members are skipped with their parent value, so they never surface. The
// walk stops at the first member that cannot be resolved yet, and the next
// call resumes there.
func (x *Extractor) scanFields(events []Event) []Event {
	s := x.buf
	start := x.next()
	if start < 0 {
		return events
	}
	if start != x.obj {
		x.obj = start
		x.walk = start + 1
	}
	i := x.walk
	for {
		i = jsonscan.SkipSpace(s, i)
		keyEnd := jsonscan.MatchString(s, i)
		if keyEnd < 0 {
			return events
		}
		j := jsonscan.SkipSpace(s, keyEnd)
		if j >= len(s) || s[j] != ':' {
			return events
		}
		j = jsonscan.SkipSpace(s, j+1)
		valEnd := matchValue(s, j)
		if valEnd < 0 {
			return events
		}
		k := jsonscan.SkipSpace(s, valEnd)
		if k >= len(s) || (s[k] != ',' && s[k] != '}') {
			return events
		}

		key, err := DecodeValue(s[i:keyEnd])
		if err != nil {
			slog.Debug("fieldx/extractor: key not parsable", "err", err)
			return events
		}
		v, err := DecodeValue(s[j:valEnd])
		if err != nil {
			slog.Debug("fieldx/extractor: value not parsable yet", "field", key, "err", err)
			return events
		}
		events = x.emit(key.(string), v, events)
		if s[k] == '}' {
			x.walk = k
			return events
		}
		i = k + 1
		x.walk = i
	}
}

// matchValue returns the end of the closed value starting at s[i], or -1.
func matchValue(s string, i int) int {
	if i >= len(s) {
		return -1
	}
	switch s[i] {
	case '"':
		return jsonscan.MatchString(s, i)
	case '{', '[':
		return jsonscan.MatchComposite(s, i)
	case ',', '}', ']', ':':
		return -1
	}
	return jsonscan.MatchLiteral(s, i)
}

// parseRemainder is the last resort of Finalize: the remaining buffer, from
// its first brace, is parsed as one standalone object.
func (x *Extractor) parseRemainder(events []Event) []Event {
	rest := x.buf[x.from:]
	if i := x.next(); i >= 0 {
		rest = x.buf[i:]
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return events
	}
	members, err := DecodeObject(rest)
	if err != nil && x.repair {
		var fixed string
		if fixed, err = jsonrepair.JSONRepair(rest); err == nil {
			members, err = DecodeObject(fixed)
		}
	}
	if err != nil {
		slog.Debug("fieldx/extractor: drop unparsable tail", "bytes", len(rest), "err", err)
		return events
	}
	return x.diff(members, events)
}

func (x *Extractor) diff(members []Member, events []Event) []Event {
	for _, m := range members {
		events = x.emit(m.Key, m.Value, events)
	}
	return events
}

func (x *Extractor) emit(key string, v Value, events []Event) []Event {
	old, ok := x.emitted[key]
	if ok && Equal(old, v) {
		return events
	}
	if !ok {
		x.order = append(x.order, key)
	}
	x.emitted[key] = v
	return append(events, FieldEvent(key, v))
}
