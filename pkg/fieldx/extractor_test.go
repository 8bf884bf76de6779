package fieldx

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func feed(x *Extractor, chunks ...string) []Event {
	var events []Event
	for _, c := range chunks {
		events = append(events, x.ProcessChunk(c)...)
	}
	return append(events, x.Finalize()...)
}

func chunked(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return append(out, s)
}

func wantEvents(t *testing.T, object string) []Event {
	t.Helper()
	members, err := DecodeObject(object)
	if err != nil {
		t.Fatalf("DecodeObject(%q): %v", object, err)
	}
	var events []Event
	for _, m := range members {
		events = append(events, FieldEvent(m.Key, m.Value))
	}
	return append(events, CompleteEvent())
}

var splitObjects = []string{
	`{"title":"Soup","tags":["veg","easy"]}`,
	`{"a":"x\"}y","n":12.5,"ok":true,"none":null,"obj":{"k":[1,2,{"z":"]"}]},"e":[]}`,
	`{ "a" : 1 , "b" : [ 1 , 2 ] , "c" : "é中" }`,
	`{"desc":"line one,\nline \\ two}","steps":[{"n":1,"text":"chop"},{"n":2,"text":"boil"}],"time":-3e2}`,
}

func TestExtractorSplitAtEveryOffset(t *testing.T) {
	for _, object := range splitObjects {
		want := wantEvents(t, object)
		for k := 0; k <= len(object); k++ {
			got := feed(NewExtractor(), object[:k], object[k:])
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("split %q at %d (-want +got):\n%s", object, k, diff)
			}
		}
	}
}

func TestExtractorByteByByte(t *testing.T) {
	for _, object := range splitObjects {
		want := wantEvents(t, object)
		got := feed(NewExtractor(), chunked(object, 1)...)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("byte-wise %q (-want +got):\n%s", object, diff)
		}
	}
}

func TestExtractorEndToEndThreeByteChunks(t *testing.T) {
	x := NewExtractor()
	var got []Event
	for _, c := range chunked(`{"title":"Soup","tags":["veg","easy"]}`, 3) {
		got = append(got, x.ProcessChunk(c)...)
	}
	got = append(got, x.Finalize()...)

	want := []Event{
		FieldEvent("title", "Soup"),
		FieldEvent("tags", []any{"veg", "easy"}),
		CompleteEvent(),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	wantRec := Record{"title": "Soup", "tags": []any{"veg", "easy"}}
	if diff := cmp.Diff(wantRec, x.Snapshot()); diff != "" {
		t.Errorf("Snapshot (-want +got):\n%s", diff)
	}
}

func TestExtractorIdempotent(t *testing.T) {
	x := NewExtractor()
	object := `{"a":1,"b":["x"]}`
	if got := x.ProcessChunk(object); len(got) != 2 {
		t.Fatalf("first feed: %v, want 2 events", got)
	}
	if got := x.ProcessChunk(object); len(got) != 0 {
		t.Errorf("second feed: %v, want no events", got)
	}
}

func TestExtractorGrowingValue(t *testing.T) {
	x := NewExtractor()
	got := x.ProcessChunk(`{"a":"x"}`)
	got = append(got, x.ProcessChunk(`{"a":"xy"}`)...)
	want := []Event{FieldEvent("a", "x"), FieldEvent("a", "xy")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestExtractorArrayCompletion(t *testing.T) {
	x := NewExtractor()
	if got := x.ProcessChunk(`{"t":["a","b"`); len(got) != 0 {
		t.Fatalf("open array emitted %v", got)
	}
	got := x.ProcessChunk(`]}`)
	want := []Event{FieldEvent("t", []any{"a", "b"})}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestExtractorWaitsForTerminator(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"closed_string", `{"a":"x"`},
		{"number", `{"n":12`},
		{"number_trailing_space", `{"n":12 `},
		{"literal", `{"ok":true`},
		{"array", `{"t":[1,2]`},
		{"object", `{"o":{"k":1}`},
		{"escaped_quote", `{"a":"x\",`},
		{"key_only", `{"a"`},
		{"colon", `{"a":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewExtractor().ProcessChunk(tt.input); len(got) != 0 {
				t.Errorf("ProcessChunk(%q) = %v, want nothing", tt.input, got)
			}
		})
	}
}

func TestExtractorWhitespaceBeforeTerminator(t *testing.T) {
	x := NewExtractor()
	got := x.ProcessChunk("{\"t\":[\"a\"] \n,\"o\":{\"k\":1}\t,\"s\":\"v\"  ,")
	want := []Event{
		FieldEvent("t", []any{"a"}),
		FieldEvent("o", map[string]any{"k": json.Number("1")}),
		FieldEvent("s", "v"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestExtractorNestedKeysHidden(t *testing.T) {
	x := NewExtractor()
	if got := x.ProcessChunk(`{"meta":{"x":1,"y":"z",`); len(got) != 0 {
		t.Fatalf("nested members surfaced: %v", got)
	}
	got := x.ProcessChunk(`"w":[]},"n":2,`)
	want := []Event{
		FieldEvent("meta", map[string]any{"x": json.Number("1"), "y": "z", "w": []any{}}),
		FieldEvent("n", json.Number("2")),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestExtractorStructuralDedup(t *testing.T) {
	x := NewExtractor()
	first := x.ProcessChunk(`{"o":{"a":1,"b":2}}`)
	if len(first) != 1 {
		t.Fatalf("first object: %v", first)
	}
	if got := x.ProcessChunk(`{"o":{"b":2,"a":1.0}}`); len(got) != 0 {
		t.Errorf("reordered object re-emitted: %v", got)
	}
}

func TestExtractorSurroundingText(t *testing.T) {
	got := feed(NewExtractor(), "```json\n{\"a\":", "1}\n", "```")
	want := []Event{FieldEvent("a", json.Number("1")), CompleteEvent()}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestExtractorFinalizeTruncated(t *testing.T) {
	x := NewExtractor()
	got := feed(x, `{"a":"done","b":"half`)
	want := []Event{FieldEvent("a", "done"), CompleteEvent()}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	if x.Buffered() != 0 {
		t.Errorf("Buffered() = %d after Finalize, want 0", x.Buffered())
	}
}

func TestExtractorFinalizeRepair(t *testing.T) {
	x := NewExtractor(WithRepair())
	got := feed(x, `{"a":"done","b":"half`)
	want := []Event{
		FieldEvent("a", "done"),
		FieldEvent("b", "half"),
		CompleteEvent(),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestExtractorFinalizeOnce(t *testing.T) {
	x := NewExtractor()
	x.ProcessChunk(`{"a":1}`)
	if got := x.Finalize(); len(got) != 1 || got[0].Type != EventComplete {
		t.Fatalf("Finalize() = %v, want [Complete]", got)
	}
	if got := x.Finalize(); got != nil {
		t.Errorf("second Finalize() = %v, want nil", got)
	}
	if got := x.ProcessChunk(`{"b":2}`); got != nil {
		t.Errorf("ProcessChunk after Finalize = %v, want nil", got)
	}
}

func TestExtractorAbort(t *testing.T) {
	x := NewExtractor()
	x.ProcessChunk(`{"a":1,"b":`)
	got := x.Abort("quota exceeded")
	want := []Event{ErrorEvent("quota exceeded")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Abort (-want +got):\n%s", diff)
	}
	if got := x.ProcessChunk(`2}`); got != nil {
		t.Errorf("ProcessChunk after Abort = %v, want nil", got)
	}
	if got := x.Finalize(); got != nil {
		t.Errorf("Finalize after Abort = %v, want nil", got)
	}
	if got := x.Abort("again"); got != nil {
		t.Errorf("second Abort = %v, want nil", got)
	}
}

func TestExtractorKeepsUnconsumedTail(t *testing.T) {
	x := NewExtractor()
	x.ProcessChunk(`{"a":1}{"b":`)
	if got := x.Buffered(); got != len(`{"b":`) {
		t.Errorf("Buffered() = %d, want %d", got, len(`{"b":`))
	}
	if diff := cmp.Diff([]string{"a"}, x.Fields()); diff != "" {
		t.Errorf("Fields (-want +got):\n%s", diff)
	}
}

func TestExtractorSkipsUnparsableBraces(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []Event
	}{
		{
			name:   "placeholder in prose",
			chunks: []string{"Using {placeholders} here: ", `{"a":1,"b":"two"}`},
			want: []Event{
				FieldEvent("a", json.Number("1")),
				FieldEvent("b", "two"),
				CompleteEvent(),
			},
		},
		{
			name:   "broken object before the record",
			chunks: chunked(`draft {"a":1,"b":tru e} final {"c":3}`, 4),
			want: []Event{
				FieldEvent("a", json.Number("1")),
				FieldEvent("c", json.Number("3")),
				CompleteEvent(),
			},
		},
		{
			name:   "record only closes at finalize",
			chunks: []string{"{x} then ", `{"a":"done","b":"half`},
			want:   []Event{FieldEvent("a", "done"), CompleteEvent()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := feed(NewExtractor(), tt.chunks...)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("events (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractorResumesWalk(t *testing.T) {
	x := NewExtractor()
	x.ProcessChunk(`{"a":1,"b":[1,2],`)
	if want := len(`{"a":1,"b":[1,2],`); x.walk != want {
		t.Fatalf("walk = %d, want %d", x.walk, want)
	}
	got := x.ProcessChunk(`"c":"x",`)
	want := []Event{FieldEvent("c", "x")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	if want := len(`{"a":1,"b":[1,2],"c":"x",`); x.walk != want {
		t.Errorf("walk = %d, want %d", x.walk, want)
	}
}
