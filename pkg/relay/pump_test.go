package relay

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/haivivi/fieldstream/pkg/fieldx"
	"github.com/haivivi/fieldstream/pkg/upstream"
)

type step struct {
	delta string
	err   error
}

func deltas(steps ...step) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, s := range steps {
			if !yield(s.delta, s.err) {
				return
			}
		}
	}
}

func pump(t *testing.T, seq iter.Seq2[string, error]) ([]string, error) {
	t.Helper()
	var got []string
	err := Pump(context.Background(), seq, fieldx.NewExtractor(), func(evt fieldx.Event) error {
		got = append(got, evt.String())
		return nil
	})
	return got, err
}

func TestPump(t *testing.T) {
	got, err := pump(t, deltas(
		step{delta: `{"title": "So`},
		step{delta: `up", "tags": ["veg"`},
		step{delta: `]}`},
	))
	if err != nil {
		t.Fatalf("Pump: %v", err)
	}
	want := []string{`Field(title, "Soup")`, `Field(tags, ["veg"])`, "Complete"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestPumpSignaledError(t *testing.T) {
	got, err := pump(t, deltas(
		step{delta: `{"title": "Soup", `},
		step{err: &upstream.SignaledError{Message: "safety"}},
		step{delta: `"late": 1}`},
	))
	if err != nil {
		t.Fatalf("Pump: %v", err)
	}
	want := []string{`Field(title, "Soup")`, "Error(safety)"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestPumpTransportError(t *testing.T) {
	boom := &upstream.TransportError{Op: "read body", Err: upstream.ErrIdleTimeout}
	got, err := pump(t, deltas(
		step{delta: `{"a": 1, `},
		step{err: boom},
	))
	if !errors.Is(err, upstream.ErrIdleTimeout) {
		t.Fatalf("err = %v, want idle timeout", err)
	}
	if diff := cmp.Diff([]string{"Field(a, 1)"}, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestPumpEmitErrorStopsUpstream(t *testing.T) {
	gone := errors.New("client gone")
	pulled := 0
	seq := func(yield func(string, error) bool) {
		for _, d := range []string{`{"a": 1, `, `"b": 2, `, `"c": 3}`} {
			pulled++
			if !yield(d, nil) {
				return
			}
		}
	}
	err := Pump(context.Background(), seq, fieldx.NewExtractor(), func(fieldx.Event) error {
		return gone
	})
	if !errors.Is(err, gone) {
		t.Fatalf("err = %v, want client gone", err)
	}
	if pulled != 1 {
		t.Errorf("pulled %d deltas, want 1", pulled)
	}
}
