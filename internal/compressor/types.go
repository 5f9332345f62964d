// Package compressor implements the Multi-Head Compressor: four independent
// heads projecting layered-memory context into bounded summaries, fused
// into a single token-budgeted output.
package compressor

import (
	"context"
	"time"
)

// FCEvent is one function-call event in a RawContext projection.
type FCEvent struct {
	ID        string
	Name      string
	Summary   string
	Args      map[string]string
	Status    string
	Timestamp time.Time
}

// RawContext is the layered-memory projection each head reads from.
type RawContext struct {
	FunctionCalls       []FCEvent
	Files               []string
	UserMessages        []string
	AssistantResponses  []string
	Errors              []string
	CurrentGoal         string
	Metadata            map[string]string
}

// CompressedSegment is one head's output.
type CompressedSegment struct {
	HeadName   string
	Content    string
	Tokens     int
	Importance float64
}

// CompressedOutput is the fused result of all heads.
type CompressedOutput struct {
	Content          string
	Segments         []CompressedSegment
	OriginalTokens   int
	CompressedTokens int
	CompressionRatio float64
	Timestamp        time.Time
}

// Summariser is the narrow capability the semantic head uses for
// prompt-driven extraction. Declared locally (mirroring sessionmgr's own
// Summariser) so this package has no import dependency on
// internal/summariser; that package's concrete types satisfy this
// interface structurally.
type Summariser interface {
	Summarise(ctx context.Context, prompt string) (string, error)
}
