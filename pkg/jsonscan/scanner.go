// Package jsonscan provides a byte-level lexical scanner for JSON text that is
// still being generated.
//
// The scanner tracks exactly three states (Default, InString, Escaped) and a
// nesting depth. It never validates JSON; it only answers structural
// questions such as "where does the object that starts here end" so callers
// can decide whether a fragment is complete before handing it to a real
// decoder.
//
// Only ASCII bytes are structurally significant in JSON, so scanning UTF-8
// text byte by byte is safe: continuation bytes of multi-byte sequences are
// always >= 0x80 and never match a delimiter.
package jsonscan

// State is the lexical state of a Scanner.
type State uint8

const (
	// Default is outside any string literal.
	Default State = iota
	// InString is inside a string literal.
	InString
	// Escaped is inside a string literal, right after a backslash.
	Escaped
)

func (s State) String() string {
	switch s {
	case Default:
		return "default"
	case InString:
		return "in_string"
	case Escaped:
		return "escaped"
	}
	return "unknown"
}

// Token classifies a single scanned byte.
type Token uint8

const (
	// Other is any byte without structural meaning in the current state.
	Other Token = iota
	// Open is '{' or '[' outside a string.
	Open
	// Close is '}' or ']' outside a string.
	Close
	// StringStart is the opening quote of a string literal.
	StringStart
	// StringEnd is the closing quote of a string literal.
	StringEnd
)

// Scanner is a resumable lexical state machine. The zero value is ready to
// use and starts in Default state at depth 0.
type Scanner struct {
	state State
	depth int

	// BracesOnly makes '[' and ']' ordinary bytes so only object nesting is
	// counted.
	BracesOnly bool
}

// State returns the current lexical state.
func (s *Scanner) State() State { return s.state }

// Depth returns the current nesting depth.
func (s *Scanner) Depth() int { return s.depth }

// Reset returns the scanner to its zero state, keeping BracesOnly.
func (s *Scanner) Reset() {
	s.state = Default
	s.depth = 0
}

// Step advances the scanner by one byte.
//
// A Close byte seen at depth 0 is reported as Other and leaves the depth
// unchanged, so stray closers in surrounding noise never drive the depth
// negative.
func (s *Scanner) Step(c byte) Token {
	switch s.state {
	case Escaped:
		s.state = InString
		return Other
	case InString:
		switch c {
		case '\\':
			s.state = Escaped
		case '"':
			s.state = Default
			return StringEnd
		}
		return Other
	}

	switch c {
	case '"':
		s.state = InString
		return StringStart
	case '{':
		s.depth++
		return Open
	case '}':
		if s.depth == 0 {
			return Other
		}
		s.depth--
		return Close
	case '[', ']':
		if s.BracesOnly {
			return Other
		}
		if c == '[' {
			s.depth++
			return Open
		}
		if s.depth == 0 {
			return Other
		}
		s.depth--
		return Close
	}
	return Other
}
