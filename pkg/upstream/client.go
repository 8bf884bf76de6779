package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultIdleTimeout bounds how long the upstream may stay silent.
	DefaultIdleTimeout = 60 * time.Second

	// maxErrorBody limits how much of an error response is read.
	maxErrorBody = 64 * 1024

	readSize = 4096
)

// Source produces the text deltas of one generation.
type Source interface {
	// Stream starts a generation for the opaque instruction payload. The
	// sequence yields text deltas in generation order. A non-nil error is
	// always the last element: *SignaledError when the provider reported a
	// failure in-band, anything else is a transport failure.
	Stream(ctx context.Context, instruction []byte) iter.Seq2[string, error]
}

var _ Source = (*Client)(nil)

// Client is a Source that POSTs the instruction to an HTTP endpoint and reads
// the chunked response through an Adapter.
type Client struct {
	config *clientConfig
}

type clientConfig struct {
	url         string
	apiKey      string
	authHeader  string
	authPrefix  string
	header      http.Header
	httpClient  *http.Client
	idleTimeout time.Duration
	provider    *Provider
}

// Option is a function that configures the client.
type Option func(*clientConfig)

// WithHTTPClient sets a custom HTTP client. Its Timeout should be zero, since
// a generation may legitimately stream for minutes.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithAPIKey sets the credential sent to the upstream.
func WithAPIKey(key string) Option {
	return func(c *clientConfig) {
		c.apiKey = key
	}
}

// WithAuthHeader changes the header carrying the API key. The default is
// "Authorization" with prefix "Bearer ".
func WithAuthHeader(name, prefix string) Option {
	return func(c *clientConfig) {
		c.authHeader = name
		c.authPrefix = prefix
	}
}

// WithHeader adds a static request header.
func WithHeader(key, value string) Option {
	return func(c *clientConfig) {
		c.header.Add(key, value)
	}
}

// WithIdleTimeout sets how long the client waits for the next bytes before
// it aborts the request. Zero means DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.idleTimeout = d
	}
}

// WithProvider sets the envelope format. The default is ProviderGemini.
func WithProvider(p *Provider) Option {
	return func(c *clientConfig) {
		c.provider = p
	}
}

// NewClient creates a client for the streaming endpoint at url.
//
// Example:
//
//	client := upstream.NewClient(
//	    "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:streamGenerateContent",
//	    upstream.WithAPIKey(key),
//	    upstream.WithAuthHeader("x-goog-api-key", ""),
//	)
func NewClient(url string, opts ...Option) *Client {
	cfg := &clientConfig{
		url:         url,
		authHeader:  "Authorization",
		authPrefix:  "Bearer ",
		header:      make(http.Header),
		idleTimeout: DefaultIdleTimeout,
		provider:    ProviderGemini,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{}
	}
	return &Client{config: cfg}
}

// Stream implements Source.
//
// A non-success status or a response without body fails before any delta is
// yielded. Once streaming, the request is aborted when no bytes arrive within
// the idle timeout, when ctx is done, or when the caller stops iterating.
func (c *Client) Stream(ctx context.Context, instruction []byte) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		idle := newIdleTimer(ctx, c.config.idleTimeout)
		defer idle.stop()

		resp, err := c.do(idle.ctx, instruction)
		if err != nil {
			yield("", idle.transportError("do request", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			yield("", c.statusError(resp))
			return
		}
		if resp.Body == http.NoBody {
			yield("", &TransportError{Op: "read body", Err: ErrNoBody})
			return
		}

		adapter := NewAdapter(c.config.provider)
		buf := make([]byte, readSize)
		var total int64
		for {
			n, rerr := resp.Body.Read(buf)
			total += int64(n)
			if n > 0 {
				idle.touch()
				deltas, ferr := adapter.Feed(buf[:n])
				for _, d := range deltas {
					if !yield(d, nil) {
						return
					}
				}
				if ferr != nil {
					yield("", ferr)
					return
				}
			}
			if errors.Is(rerr, io.EOF) {
				if total == 0 {
					yield("", &TransportError{Op: "read body", Err: ErrNoBody})
					return
				}
				adapter.Flush()
				return
			}
			if rerr != nil {
				yield("", idle.transportError("read body", rerr))
				return
			}
		}
	}
}

func (c *Client) do(ctx context.Context, instruction []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.url, bytes.NewReader(instruction))
	if err != nil {
		return nil, err
	}
	for k, vs := range c.config.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.apiKey != "" {
		req.Header.Set(c.config.authHeader, c.config.authPrefix+c.config.apiKey)
	}
	req.Header.Set("User-Agent", "fieldstream-go/1.0")
	return c.config.httpClient.Do(req)
}

// statusError builds an *Error from a non-success response, preferring the
// message found at the provider's error path.
func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	e := &Error{HTTPStatus: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		if arr, ok := v.([]any); ok && len(arr) > 0 {
			v = arr[0]
		}
		if msg, err := textOf(c.config.provider.Error, v); err == nil && msg != "" {
			e.Message = msg
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}
