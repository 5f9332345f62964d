// Package summariser implements the pluggable summarisation capability used
// by internal/sessionmgr and the Multi-Head Compressor's semantic head.
package summariser

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/ccjk/ctxrd/internal/secrets"
)

// ErrNoSummariser is returned by NullSummariser, forcing callers onto their
// rule-based fallback path.
var ErrNoSummariser = errors.New("summariser: no summarisation backend configured")

// Summariser is the narrow capability both sessionmgr and the compressor's
// semantic head depend on.
type Summariser interface {
	Summarise(ctx context.Context, prompt string) (string, error)
}

// NullSummariser always fails, which is the intended behaviour: every
// caller of Summarise must have a deterministic rule-based fallback, and
// this is what every test in this repository exercises by default.
type NullSummariser struct{}

// Summarise always returns ErrNoSummariser.
func (NullSummariser) Summarise(context.Context, string) (string, error) {
	return "", ErrNoSummariser
}

// LLMSummariser generalises the teacher's single-vendor HTTP Claude client
// into a provider-agnostic chat model, so the runtime isn't bound to one
// LLM vendor. scrubber redacts secrets from the prompt before it ever
// leaves the process, mirroring the teacher's pre-send scrubSecrets step
// but reusing this codebase's own Scrubber instead of a second ad-hoc
// regex set.
type LLMSummariser struct {
	model    llms.Model
	scrubber secrets.Scrubber
	system   string
}

// Option configures an LLMSummariser.
type Option func(*LLMSummariser)

// WithSystemPrompt overrides the default compression instruction prompt.
func WithSystemPrompt(prompt string) Option {
	return func(s *LLMSummariser) { s.system = prompt }
}

const defaultSystemPrompt = `You are an expert at abstractive summarization. Compress the following content while preserving its semantic meaning, technical terms, and key information. Remove redundancy and filler. Generate only the compressed summary, with no preamble.`

// NewLLMSummariser wraps model with secret scrubbing and a fixed
// compression-oriented system prompt. scrubber may be nil, in which case a
// no-op scrubber is used (callers relying on redaction should always pass a
// real one).
func NewLLMSummariser(model llms.Model, scrubber secrets.Scrubber, opts ...Option) *LLMSummariser {
	if scrubber == nil {
		scrubber = &secrets.NoopScrubber{}
	}
	s := &LLMSummariser{model: model, scrubber: scrubber, system: defaultSystemPrompt}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarise scrubs prompt for secrets, then asks the configured chat model
// for a compressed version of it.
func (s *LLMSummariser) Summarise(ctx context.Context, prompt string) (string, error) {
	scrubbed := s.scrubber.Scrub(prompt).Scrubbed

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, s.system),
		llms.TextParts(llms.ChatMessageTypeHuman, scrubbed),
	}

	resp, err := s.model.GenerateContent(ctx, content)
	if err != nil {
		return "", fmt.Errorf("summariser: generate content: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", fmt.Errorf("summariser: empty response from model")
	}
	return resp.Choices[0].Content, nil
}
