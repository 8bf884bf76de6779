package upstream

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

var _ Source = (*GeminiSource)(nil)

// GeminiSource is a Source backed by the Gemini GenerateContentStream API.
// The instruction payload is sent as the user turn and JSON output is
// requested.
type GeminiSource struct {
	Client *genai.Client

	// Model should not start with "models/"
	Model string

	// System is an optional system instruction.
	System string

	// IdleTimeout aborts the stream when no response arrives in time. Zero
	// means DefaultIdleTimeout.
	IdleTimeout time.Duration
}

func (s *GeminiSource) config() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if s.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(s.System)}}
	}
	return cfg
}

// Stream implements Source. A blocked prompt or a safety stop is reported as
// a *SignaledError.
func (s *GeminiSource) Stream(ctx context.Context, instruction []byte) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		contents := []*genai.Content{{
			Role:  "user",
			Parts: []*genai.Part{genai.NewPartFromText(string(instruction))},
		}}
		idle := newIdleTimer(ctx, s.IdleTimeout)
		defer idle.stop()

		for resp, err := range s.Client.Models.GenerateContentStream(idle.ctx, s.Model, contents, s.config()) {
			if err != nil {
				var e *apierror.APIError
				if errors.As(err, &e) {
					err = e.Unwrap()
				}
				yield("", idle.transportError("gemini stream", err))
				return
			}
			idle.touch()
			if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
				yield("", &SignaledError{Message: "prompt blocked: " + string(fb.BlockReason)})
				return
			}
			if len(resp.Candidates) == 0 {
				continue
			}
			cand := resp.Candidates[0]
			if cand.Content != nil {
				var sb strings.Builder
				for _, p := range cand.Content.Parts {
					if p.Text != "" && !p.Thought {
						sb.WriteString(p.Text)
					}
				}
				if sb.Len() > 0 && !yield(sb.String(), nil) {
					return
				}
			}
			if cand.FinishReason == genai.FinishReasonSafety {
				yield("", &SignaledError{Message: "generation stopped: " + string(cand.FinishReason)})
				return
			}
		}
	}
}
