package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func collect(seq func(func(string, error) bool)) ([]string, error) {
	var out []string
	var err error
	seq(func(s string, e error) bool {
		if e != nil {
			err = e
			return false
		}
		out = append(out, s)
		return true
	})
	return out, err
}

func TestClientStream(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("x-goog-api-key")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		f := w.(http.Flusher)
		for _, part := range []string{
			`[{"candidates":[{"content":{"parts":[{"text":"{\"a\":"}]}}]}`,
			"\r\n,",
			`{"candidates":[{"content":{"parts":[{"text":"1}"}]}}]}]`,
		} {
			io.WriteString(w, part)
			f.Flush()
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithAPIKey("k1"), WithAuthHeader("x-goog-api-key", ""))
	got, err := collect(c.Stream(context.Background(), []byte(`{"contents":[]}`)))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if diff := cmp.Diff([]string{`{"a":`, `1}`}, got); diff != "" {
		t.Errorf("deltas (-want +got):\n%s", diff)
	}
	if gotAuth != "k1" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody != `{"contents":[]}` {
		t.Errorf("body = %q", gotBody)
	}
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `[{"error":{"code":429,"message":"Resource exhausted"}}]`)
	}))
	defer srv.Close()

	got, err := collect(NewClient(srv.URL).Stream(context.Background(), nil))
	if len(got) != 0 {
		t.Errorf("deltas before failure: %v", got)
	}
	e, ok := AsError(err)
	if !ok {
		t.Fatalf("err = %v, want *Error", err)
	}
	if e.HTTPStatus != http.StatusTooManyRequests || e.Message != "Resource exhausted" {
		t.Errorf("Error = %+v", e)
	}
	if !e.IsRateLimit() || !e.Retryable() {
		t.Error("429 should be a retryable rate limit")
	}
}

func TestClientStatusErrorRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := collect(NewClient(srv.URL).Stream(context.Background(), nil))
	e, ok := AsError(err)
	if !ok || e.Message != "bad gateway" {
		t.Fatalf("err = %v", err)
	}
}

func TestClientNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := collect(NewClient(srv.URL).Stream(context.Background(), nil))
	if !errors.Is(err, ErrNoBody) {
		t.Fatalf("err = %v, want ErrNoBody", err)
	}
	if _, ok := AsTransportError(err); !ok {
		t.Errorf("err = %T, want *TransportError", err)
	}
}

func TestClientEmptyChunkedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
	}))
	defer srv.Close()

	got, err := collect(NewClient(srv.URL).Stream(context.Background(), nil))
	if len(got) != 0 {
		t.Errorf("deltas = %v, want none", got)
	}
	if !errors.Is(err, ErrNoBody) {
		t.Fatalf("err = %v, want ErrNoBody", err)
	}
	if _, ok := AsTransportError(err); !ok {
		t.Errorf("err = %T, want *TransportError", err)
	}
}

func TestClientIdleTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"x"}]}}]}`)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, WithIdleTimeout(100*time.Millisecond))
	got, err := collect(c.Stream(context.Background(), nil))
	if diff := cmp.Diff([]string{"x"}, got); diff != "" {
		t.Errorf("deltas (-want +got):\n%s", diff)
	}
	if !errors.Is(err, ErrIdleTimeout) {
		t.Fatalf("err = %v, want ErrIdleTimeout", err)
	}
	if _, ok := AsSignaledError(err); ok {
		t.Error("idle timeout must not be a signaled error")
	}
}

func TestClientSignaledError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"{"}}]}`+"\n\n")
		io.WriteString(w, `data: {"error":{"message":"overloaded"}}`+"\n\n")
	}))
	defer srv.Close()

	got, err := collect(NewClient(srv.URL, WithProvider(ProviderOpenAI)).Stream(context.Background(), nil))
	if diff := cmp.Diff([]string{"{"}, got); diff != "" {
		t.Errorf("deltas (-want +got):\n%s", diff)
	}
	se, ok := AsSignaledError(err)
	if !ok || se.Message != "overloaded" {
		t.Fatalf("err = %v, want signaled overloaded", err)
	}
}

func TestClientStopIterationAbortsRequest(t *testing.T) {
	aborted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"x"}]}}]}`)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(aborted)
	}))
	defer srv.Close()

	for d, err := range NewClient(srv.URL).Stream(context.Background(), nil) {
		if err != nil {
			t.Fatalf("Stream: %v", err)
		}
		if d == "x" {
			break
		}
	}
	select {
	case <-aborted:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream request was not aborted")
	}
}

func TestClientCustomHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k2" || r.Header.Get("X-Trace") != "t" {
			http.Error(w, "missing headers", http.StatusUnauthorized)
			return
		}
		io.WriteString(w, strings.Repeat(" ", 10))
	}))
	defer srv.Close()

	_, err := collect(NewClient(srv.URL, WithAPIKey("k2"), WithHeader("X-Trace", "t")).Stream(context.Background(), nil))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
}
