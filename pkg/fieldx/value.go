package fieldx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Value is a decoded JSON value: string, json.Number, bool, nil, []any or
// map[string]any.
type Value = any

// Record is a reconstructed record, keyed by top-level field name.
type Record map[string]Value

// Member is one key/value pair of an object, in source order.
type Member struct {
	Key   string
	Value Value
}

// errMalformedFragment marks a candidate fragment that does not parse yet.
// It is a normal control path while text is still arriving, never surfaced.
var errMalformedFragment = errors.New("fieldx: malformed fragment")

var numberComparer = cmp.Comparer(func(a, b json.Number) bool {
	if a == b {
		return true
	}
	x, _, errA := big.ParseFloat(string(a), 10, 256, big.ToNearestEven)
	y, _, errB := big.ParseFloat(string(b), 10, 256, big.ToNearestEven)
	if errA != nil || errB != nil {
		return false
	}
	return x.Cmp(y) == 0
})

// Equal reports whether two values are structurally equal. Object key order
// is irrelevant and numbers compare by numeric value, so 1.0 equals 1.
func Equal(a, b Value) bool {
	return cmp.Equal(a, b, numberComparer)
}

// DecodeValue decodes a single JSON value, keeping numbers as json.Number.
func DecodeValue(data string) (Value, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var v Value
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedFragment, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", errMalformedFragment)
	}
	return v, nil
}

// DecodeObject decodes a JSON object and returns its members in source
// order. A duplicated key keeps its last value at the position of its first
// occurrence.
func DecodeObject(data string) ([]Member, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedFragment, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: not an object", errMalformedFragment)
	}

	var (
		members []Member
		index   = make(map[string]int)
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedFragment, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: bad key %v", errMalformedFragment, tok)
		}
		var v Value
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedFragment, err)
		}
		if i, dup := index[key]; dup {
			members[i].Value = v
			continue
		}
		index[key] = len(members)
		members = append(members, Member{Key: key, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedFragment, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", errMalformedFragment)
	}
	return members, nil
}
