package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// chatChunk renders one chat.completion.chunk SSE event.
func chatChunk(t *testing.T, delta map[string]any, finish string) string {
	t.Helper()
	choice := map[string]any{"index": 0, "delta": delta, "finish_reason": nil}
	if finish != "" {
		choice["finish_reason"] = finish
	}
	b, err := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "gpt-test",
		"choices": []any{choice},
	})
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf("data: %s\n\n", b)
}

func newOpenAISource(t *testing.T, h http.HandlerFunc) *OpenAISource {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	client := openai.NewClient(
		option.WithAPIKey("k"),
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0),
	)
	return &OpenAISource{Client: &client, Model: "gpt-test"}
}

func writeEvents(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	f := w.(http.Flusher)
	for _, e := range events {
		fmt.Fprint(w, e)
		f.Flush()
	}
}

func TestOpenAISourceStream(t *testing.T) {
	var gotModel string
	src := newOpenAISource(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		writeEvents(w,
			chatChunk(t, map[string]any{"role": "assistant", "content": ""}, ""),
			chatChunk(t, map[string]any{"content": `{"a":`}, ""),
			chatChunk(t, map[string]any{"content": `1}`}, ""),
			chatChunk(t, map[string]any{}, "stop"),
			"data: [DONE]\n\n",
		)
	})

	got, err := collect(src.Stream(context.Background(), []byte(`make a record`)))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if diff := cmp.Diff([]string{`{"a":`, `1}`}, got); diff != "" {
		t.Errorf("deltas (-want +got):\n%s", diff)
	}
	if gotModel != "gpt-test" {
		t.Errorf("model = %q", gotModel)
	}
}

func TestOpenAISourceSignaled(t *testing.T) {
	tests := []struct {
		name  string
		event func(t *testing.T) string
		want  string
	}{
		{
			name: "refusal",
			event: func(t *testing.T) string {
				return chatChunk(t, map[string]any{"refusal": "I can't help with that"}, "")
			},
			want: "I can't help with that",
		},
		{
			name: "content filter",
			event: func(t *testing.T) string {
				return chatChunk(t, map[string]any{}, "content_filter")
			},
			want: "content filtered",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newOpenAISource(t, func(w http.ResponseWriter, r *http.Request) {
				writeEvents(w,
					chatChunk(t, map[string]any{"content": `{"a":1,`}, ""),
					tt.event(t),
					"data: [DONE]\n\n",
				)
			})
			got, err := collect(src.Stream(context.Background(), nil))
			if diff := cmp.Diff([]string{`{"a":1,`}, got); diff != "" {
				t.Errorf("deltas (-want +got):\n%s", diff)
			}
			se, ok := AsSignaledError(err)
			if !ok || se.Message != tt.want {
				t.Fatalf("err = %v, want signaled %q", err, tt.want)
			}
		})
	}
}

func TestOpenAISourceDisconnect(t *testing.T) {
	src := newOpenAISource(t, func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, chatChunk(t, map[string]any{"content": `{"a":`}, ""))
		panic(http.ErrAbortHandler)
	})
	got, err := collect(src.Stream(context.Background(), nil))
	if diff := cmp.Diff([]string{`{"a":`}, got); diff != "" {
		t.Errorf("deltas (-want +got):\n%s", diff)
	}
	if _, ok := AsTransportError(err); !ok {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if _, ok := AsSignaledError(err); ok {
		t.Error("disconnect must not be a signaled error")
	}
}

func TestOpenAISourceStatusError(t *testing.T) {
	src := newOpenAISource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})
	got, err := collect(src.Stream(context.Background(), nil))
	if len(got) != 0 {
		t.Errorf("deltas before failure: %v", got)
	}
	if _, ok := AsTransportError(err); !ok {
		t.Fatalf("err = %v, want *TransportError", err)
	}
}

func TestOpenAISourceIdleTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	src := newOpenAISource(t, func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, chatChunk(t, map[string]any{"content": "x"}, ""))
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	src.IdleTimeout = 100 * time.Millisecond

	got, err := collect(src.Stream(context.Background(), nil))
	if diff := cmp.Diff([]string{"x"}, got); diff != "" {
		t.Errorf("deltas (-want +got):\n%s", diff)
	}
	if !errors.Is(err, ErrIdleTimeout) {
		t.Fatalf("err = %v, want ErrIdleTimeout", err)
	}
}
