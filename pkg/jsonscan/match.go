package jsonscan

// IsSpace reports whether c is JSON insignificant whitespace.
func IsSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// SkipSpace returns the index of the first non-whitespace byte at or after i,
// or len(s) if there is none.
func SkipSpace(s string, i int) int {
	for i < len(s) && IsSpace(s[i]) {
		i++
	}
	return i
}

// MatchString returns the index just past the closing quote of the string
// literal starting at s[i]. It returns -1 if s[i] is not a quote or the
// literal is not closed yet. Escaped quotes never close the literal.
func MatchString(s string, i int) int {
	if i >= len(s) || s[i] != '"' {
		return -1
	}
	var sc Scanner
	for j := i; j < len(s); j++ {
		if sc.Step(s[j]) == StringEnd {
			return j + 1
		}
	}
	return -1
}

// MatchComposite returns the index just past the bracket that balances the
// '{' or '[' at s[i], ignoring brackets inside string literals. It returns -1
// if s[i] is not an opener or the value is not closed yet.
func MatchComposite(s string, i int) int {
	if i >= len(s) || (s[i] != '{' && s[i] != '[') {
		return -1
	}
	return match(s, i, &Scanner{})
}

// MatchObject is like MatchComposite but only accepts an object and only
// counts braces, so unbalanced square brackets inside it do not matter.
func MatchObject(s string, i int) int {
	if i >= len(s) || s[i] != '{' {
		return -1
	}
	return match(s, i, &Scanner{BracesOnly: true})
}

func match(s string, i int, sc *Scanner) int {
	for j := i; j < len(s); j++ {
		if sc.Step(s[j]) == Close && sc.Depth() == 0 {
			return j + 1
		}
	}
	return -1
}

// MatchLiteral returns the index just past the bare literal (number, true,
// false or null) starting at s[i]. The literal ends at the first byte that is
// whitespace or one of ",}]". It returns -1 if the literal runs to the end of
// s, because more bytes may still extend it.
func MatchLiteral(s string, i int) int {
	j := i
	for j < len(s) {
		c := s[j]
		if IsSpace(c) || c == ',' || c == '}' || c == ']' {
			break
		}
		j++
	}
	if j == i || j == len(s) {
		return -1
	}
	return j
}
