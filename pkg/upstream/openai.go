package upstream

import (
	"context"
	"iter"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
)

var _ Source = (*OpenAISource)(nil)

// OpenAISource is a Source backed by the OpenAI chat completions streaming
// API. The instruction payload is sent as the user message.
type OpenAISource struct {
	Client *openai.Client

	Model string

	// System is an optional system prompt.
	System string

	// Schema, when set, requests strict structured output with this schema.
	Schema *jsonschema.Schema

	// SchemaName names the schema in the request. Defaults to "record".
	SchemaName string

	// IdleTimeout aborts the stream when no chunk arrives in time. Zero
	// means DefaultIdleTimeout.
	IdleTimeout time.Duration
}

func (s *OpenAISource) params(instruction []byte) openai.ChatCompletionNewParams {
	var msgs []openai.ChatCompletionMessageParamUnion
	if s.System != "" {
		msgs = append(msgs, openai.SystemMessage(s.System))
	}
	msgs = append(msgs, openai.UserMessage(string(instruction)))
	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    s.Model,
	}
	if s.Schema != nil {
		name := s.SchemaName
		if name == "" {
			name = "record"
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: s.Schema,
					Strict: param.NewOpt(true),
				},
			},
		}
	}
	return params
}

// Stream implements Source. A refusal or content filter stop is reported as
// a *SignaledError; stream failures are transport errors.
func (s *OpenAISource) Stream(ctx context.Context, instruction []byte) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		idle := newIdleTimer(ctx, s.IdleTimeout)
		defer idle.stop()

		stream := s.Client.Chat.Completions.NewStreaming(idle.ctx, s.params(instruction))
		defer stream.Close()

		for stream.Next() {
			idle.touch()
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if d := choice.Delta.Content; d != "" {
				if !yield(d, nil) {
					return
				}
			}
			if r := choice.Delta.Refusal; r != "" {
				yield("", &SignaledError{Message: r})
				return
			}
			if choice.FinishReason == "content_filter" {
				yield("", &SignaledError{Message: "content filtered"})
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", idle.transportError("openai stream", err))
		}
	}
}
