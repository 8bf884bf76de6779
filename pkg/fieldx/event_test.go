package fieldx

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEventMarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		evt  Event
		want string
	}{
		{"field", FieldEvent("title", "Soup"), `{"type":"field","field":"title","value":"Soup"}`},
		{"null_value", FieldEvent("x", nil), `{"type":"field","field":"x","value":null}`},
		{"number", FieldEvent("n", json.Number("12.50")), `{"type":"field","field":"n","value":12.50}`},
		{"complete", CompleteEvent(), `{"type":"complete"}`},
		{"error", ErrorEvent("boom"), `{"type":"error","error":"boom"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.evt)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(b) != tt.want {
				t.Errorf("Marshal = %s, want %s", b, tt.want)
			}
		})
	}
}

func TestEventUnmarshalJSON(t *testing.T) {
	var evt Event
	if err := json.Unmarshal([]byte(`{"type":"field","field":"tags","value":["veg",1]}`), &evt); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := FieldEvent("tags", []any{"veg", json.Number("1")})
	if diff := cmp.Diff(want, evt); diff != "" {
		t.Errorf("event (-want +got):\n%s", diff)
	}
}

func TestEventTerminal(t *testing.T) {
	if FieldEvent("a", 1).Terminal() {
		t.Error("field event reported terminal")
	}
	if !CompleteEvent().Terminal() || !ErrorEvent("x").Terminal() {
		t.Error("terminal events not reported terminal")
	}
}

func TestEventString(t *testing.T) {
	if got := FieldEvent("tags", []any{"veg"}).String(); got != `Field(tags, ["veg"])` {
		t.Errorf("String() = %q", got)
	}
	if got := CompleteEvent().String(); got != "Complete" {
		t.Errorf("String() = %q", got)
	}
}
