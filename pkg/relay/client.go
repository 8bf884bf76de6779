package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/haivivi/fieldstream/pkg/fieldx"
	"github.com/haivivi/fieldstream/pkg/ndjson"
)

const maxErrorBody = 64 * 1024

// Client consumes a relay endpoint.
type Client struct {
	config *clientConfig
}

type clientConfig struct {
	url        string
	httpClient *http.Client
	header     http.Header
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithHeader adds a static request header.
func WithHeader(key, value string) ClientOption {
	return func(c *clientConfig) {
		c.header.Add(key, value)
	}
}

// NewClient creates a client for the relay endpoint at url.
func NewClient(url string, opts ...ClientOption) *Client {
	cfg := &clientConfig{
		url:    url,
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{}
	}
	return &Client{config: cfg}
}

// Generation is the outcome of one relayed generation.
type Generation struct {
	// RequestID is the id the relay assigned to the request.
	RequestID string

	*ndjson.Accumulator
}

// Generate posts instruction with credential as bearer token and consumes the
// field stream, calling onEvent for every event as it arrives.
//
// A non-success response returns *Error. An error event in the stream returns
// *ndjson.StreamError together with the partial generation. Cancelling ctx
// abandons the stream.
func (c *Client) Generate(ctx context.Context, instruction []byte, credential string, onEvent func(fieldx.Event)) (*Generation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.url, bytes.NewReader(instruction))
	if err != nil {
		return nil, fmt.Errorf("relay: create request: %w", err)
	}
	for k, vs := range c.config.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", ndjson.MediaType)
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.config.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay: do request: %w", err)
	}
	defer resp.Body.Close()

	id := resp.Header.Get("X-Request-Id")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp, id)
	}

	acc, err := ndjson.Consume(ctx, resp.Body, onEvent)
	return &Generation{RequestID: id, Accumulator: acc}, err
}

func parseError(resp *http.Response, id string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	e := &Error{HTTPStatus: resp.StatusCode, RequestID: id}
	if err := json.Unmarshal(body, e); err != nil || e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}
