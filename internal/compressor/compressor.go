package compressor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ccjk/ctxrd/internal/tokens"
)

// defaultWeights are applied when Config.Weights omits a head.
var defaultWeights = map[string]float64{
	"semantic":   0.4,
	"structural": 0.3,
	"temporal":   0.2,
	"entity":     0.1,
}

const defaultMaxOutputTokens = 2000

// Config configures fusion behaviour.
type Config struct {
	Weights         map[string]float64
	MaxOutputTokens int
}

// DefaultConfig returns the spec's default weights and token cap.
func DefaultConfig() Config {
	weights := make(map[string]float64, len(defaultWeights))
	for k, v := range defaultWeights {
		weights[k] = v
	}
	return Config{Weights: weights, MaxOutputTokens: defaultMaxOutputTokens}
}

// Compressor runs the four heads concurrently and fuses their output into a
// single token-budgeted CompressedOutput.
type Compressor struct {
	summariser Summariser
	cfg        Config
}

// New builds a Compressor. summariser may be nil, in which case the
// semantic head always falls back to its rule-based extraction.
func New(summariser Summariser, cfg Config) *Compressor {
	if cfg.Weights == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaultMaxOutputTokens
	}
	return &Compressor{summariser: summariser, cfg: cfg}
}

// Compress runs all four heads concurrently over raw — the only step in
// this runtime that fans out, since each head is a pure transformation over
// a shared read-only snapshot — then fuses their segments under the
// configured token budget.
func (c *Compressor) Compress(ctx context.Context, raw RawContext) (*CompressedOutput, error) {
	segments := make([]CompressedSegment, 4)
	var wg sync.WaitGroup
	wg.Add(4)

	go func() { defer wg.Done(); segments[0] = semanticHead(ctx, raw, c.summariser) }()
	go func() { defer wg.Done(); segments[1] = structuralHead(raw) }()
	go func() { defer wg.Done(); segments[2] = temporalHead(raw) }()
	go func() { defer wg.Done(); segments[3] = entityHead(raw) }()
	wg.Wait()

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Importance*c.weight(segments[i].HeadName) >
			segments[j].Importance*c.weight(segments[j].HeadName)
	})

	content, usedTokens, kept := c.fuse(segments)

	originalTokens := tokens.Estimate(rawContextText(raw))
	ratio := 1.0
	if originalTokens > 0 {
		ratio = float64(usedTokens) / float64(originalTokens)
	}

	return &CompressedOutput{
		Content:          content,
		Segments:         kept,
		OriginalTokens:   originalTokens,
		CompressedTokens: usedTokens,
		CompressionRatio: ratio,
		Timestamp:        time.Now(),
	}, nil
}

func (c *Compressor) weight(headName string) float64 {
	if w, ok := c.cfg.Weights[headName]; ok {
		return w
	}
	return defaultWeights[headName]
}

// fuse appends segments in priority order while the running token total
// stays under MaxOutputTokens. If the next segment would exceed the cap and
// at least 50 tokens of budget remain, a truncated version is appended and
// fusion stops.
func (c *Compressor) fuse(segments []CompressedSegment) (string, int, []CompressedSegment) {
	var b strings.Builder
	b.WriteString("# Compressed Context\n\n")
	total := tokens.Estimate(b.String())
	kept := make([]CompressedSegment, 0, len(segments))

	for _, seg := range segments {
		if seg.Content == "" {
			continue
		}
		if total+seg.Tokens <= c.cfg.MaxOutputTokens {
			fmt.Fprintf(&b, "## %s\n%s\n", seg.HeadName, seg.Content)
			total += seg.Tokens
			kept = append(kept, seg)
			continue
		}

		remaining := c.cfg.MaxOutputTokens - total
		if remaining < 50 {
			break
		}
		truncated := truncateToChars(seg.Content, remaining*4)
		fmt.Fprintf(&b, "## %s\n%s\n", seg.HeadName, truncated)
		truncSeg := seg
		truncSeg.Content = truncated
		truncSeg.Tokens = tokens.Estimate(truncated)
		total += truncSeg.Tokens
		kept = append(kept, truncSeg)
		break
	}

	return b.String(), total, kept
}

func truncateToChars(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	return s[:maxChars]
}

func rawContextText(raw RawContext) string {
	var b strings.Builder
	for _, fc := range raw.FunctionCalls {
		b.WriteString(fc.Name)
		b.WriteString(fc.Summary)
		for _, v := range fc.Args {
			b.WriteString(v)
		}
	}
	for _, f := range raw.Files {
		b.WriteString(f)
	}
	for _, m := range raw.UserMessages {
		b.WriteString(m)
	}
	for _, m := range raw.AssistantResponses {
		b.WriteString(m)
	}
	for _, e := range raw.Errors {
		b.WriteString(e)
	}
	b.WriteString(raw.CurrentGoal)
	return b.String()
}
