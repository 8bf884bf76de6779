// Package upstream reads text generations from streaming providers.
//
// Providers frame their output as a sequence of JSON envelope objects, each
// nesting a small text delta. The Adapter hides that framing: it accepts the
// raw response body in arbitrary pieces and yields only the generated text.
// Where the delta (and any in-band error) lives inside an envelope is
// described by a Provider as jq queries, so new providers need no code:
//
//	p, err := upstream.ParseProvider("custom", ".output.text", ".failure.reason")
//
// Sources produce a whole generation as an iterator of deltas:
//   - Client: any HTTP endpoint returning envelope objects
//   - OpenAISource: OpenAI chat completions through openai-go
//   - GeminiSource: Gemini through google.golang.org/genai
//
// Errors fall in two classes. *SignaledError is an error the provider
// reported inside the stream. *Error (non-success status) and
// *TransportError (connection, missing body, idle timeout) mean the stream
// itself failed.
package upstream
