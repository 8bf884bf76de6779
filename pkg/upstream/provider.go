package upstream

import (
	"fmt"
	"sort"

	"github.com/itchyny/gojq"
)

// Provider describes where a provider's envelope objects carry the generated
// text and where they report errors. Both are jq queries evaluated against
// each decoded envelope.
type Provider struct {
	Name string

	// Delta selects the text delta of an envelope. An empty or missing
	// result means the envelope carries no payload.
	Delta *gojq.Query

	// Error selects an error message. A non-empty result means the provider
	// signaled a failure mid-stream. Nil disables error detection.
	Error *gojq.Query
}

var presets = map[string][2]string{
	"gemini":    {`.candidates[0].content.parts[0].text`, `.error.message`},
	"openai":    {`.choices[0].delta.content`, `.error.message`},
	"anthropic": {`select(.type == "content_block_delta") | .delta.text`, `select(.type == "error") | .error.message`},
}

// ProviderGemini reads Gemini streamGenerateContent envelopes.
var ProviderGemini = mustProvider("gemini")

// ProviderOpenAI reads OpenAI chat completion chunks.
var ProviderOpenAI = mustProvider("openai")

// ProviderAnthropic reads Anthropic messages stream events.
var ProviderAnthropic = mustProvider("anthropic")

func mustProvider(name string) *Provider {
	p, err := LookupProvider(name)
	if err != nil {
		panic(err)
	}
	return p
}

// LookupProvider returns a preset provider by name.
func LookupProvider(name string) (*Provider, error) {
	q, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("upstream: unknown provider %q (known: %v)", name, ProviderNames())
	}
	return ParseProvider(name, q[0], q[1])
}

// ProviderNames lists the preset provider names.
func ProviderNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseProvider builds a provider from jq expressions. errExpr may be empty.
func ParseProvider(name, deltaExpr, errExpr string) (*Provider, error) {
	if deltaExpr == "" {
		return nil, fmt.Errorf("upstream: provider %q: delta path is required", name)
	}
	delta, err := gojq.Parse(deltaExpr)
	if err != nil {
		return nil, fmt.Errorf("upstream: provider %q: invalid delta path %q: %w", name, deltaExpr, err)
	}
	p := &Provider{Name: name, Delta: delta}
	if errExpr != "" {
		if p.Error, err = gojq.Parse(errExpr); err != nil {
			return nil, fmt.Errorf("upstream: provider %q: invalid error path %q: %w", name, errExpr, err)
		}
	}
	return p, nil
}

// textOf runs q against the envelope and returns the first non-empty string
// result. Numbers and other scalars are formatted; null, objects and lists
// count as no result.
func textOf(q *gojq.Query, envelope any) (string, error) {
	if q == nil {
		return "", nil
	}
	iter := q.Run(envelope)
	for {
		v, ok := iter.Next()
		if !ok {
			return "", nil
		}
		switch v := v.(type) {
		case error:
			return "", fmt.Errorf("jq error: %w", v)
		case string:
			if v != "" {
				return v, nil
			}
		case nil, map[string]any, []any:
		default:
			return fmt.Sprint(v), nil
		}
	}
}
