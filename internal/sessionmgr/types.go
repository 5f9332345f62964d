package sessionmgr

import (
	"context"
	"time"
)

// ThresholdLevel classifies how close a session's token usage is to the
// configured context window limit.
type ThresholdLevel string

const (
	ThresholdNormal   ThresholdLevel = "normal"
	ThresholdWarning  ThresholdLevel = "warning"
	ThresholdCritical ThresholdLevel = "critical"
)

// FCSummary is the compact record kept in a session's running log after a
// function call has been (optionally) summarised.
type FCSummary struct {
	FCID      string
	FCName    string
	Summary   string
	Tokens    int
	Timestamp time.Time
}

// maxSummaryChars bounds FCSummary.Summary.
const maxSummaryChars = 100

// FunctionCall is the input to AddFunctionCall: a completed invocation the
// caller (typically the FC parser) has already parsed.
type FunctionCall struct {
	ID       string
	Name     string
	Args     map[string]string
	Result   string
	Status   string
	ErrorMsg string
}

// Summariser is the narrow capability Session Manager uses to condense a
// function call's result into an FCSummary.Summary line. Implementations
// live in internal/summariser; this package only depends on the interface
// shape so it never imports that package directly.
type Summariser interface {
	Summarise(ctx context.Context, prompt string) (string, error)
}
