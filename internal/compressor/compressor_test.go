package compressor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleContext() RawContext {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	return RawContext{
		CurrentGoal: "refactor the parser",
		FunctionCalls: []FCEvent{
			{ID: "1", Name: "read_file", Summary: "read parser.go, found a `parseToken()` function", Args: map[string]string{"path": "internal/parser/parser.go"}, Timestamp: base},
			{ID: "2", Name: "edit_file", Summary: "edit parser.go to add error handling", Args: map[string]string{"path": "internal/parser/parser.go"}, Timestamp: base.Add(time.Minute)},
			{ID: "3", Name: "run_shell", Summary: "npm install lodash", Timestamp: base.Add(2 * time.Minute)},
			{ID: "4", Name: "run_tests", Summary: "tests fail: nil pointer error", Status: "error", Timestamp: base.Add(3 * time.Minute)},
			{ID: "5", Name: "edit_file", Summary: "fix nil pointer, tests pass: success", Args: map[string]string{"path": "internal/parser/parser.go"}, Timestamp: base.Add(4 * time.Minute)},
		},
		Errors: []string{"nil pointer dereference in parseToken"},
		Files:  []string{"internal/parser/parser.go"},
	}
}

func TestCompressRunsAllFourHeads(t *testing.T) {
	c := New(nil, DefaultConfig())
	out, err := c.Compress(context.Background(), sampleContext())
	require.NoError(t, err)

	names := map[string]bool{}
	for _, seg := range out.Segments {
		names[seg.HeadName] = true
	}
	assert.True(t, names["semantic"])
	assert.True(t, names["structural"])
	assert.True(t, names["temporal"])
	assert.True(t, names["entity"])
}

func TestCompressFallsBackToRuleBasedSemanticWithoutSummariser(t *testing.T) {
	c := New(nil, DefaultConfig())
	out, err := c.Compress(context.Background(), sampleContext())
	require.NoError(t, err)

	var semantic CompressedSegment
	for _, seg := range out.Segments {
		if seg.HeadName == "semantic" {
			semantic = seg
		}
	}
	assert.Equal(t, importanceSemanticFallback, semantic.Importance)
	assert.Contains(t, semantic.Content, "refactor the parser")
}

type stubSummariser struct {
	result string
	err    error
}

func (s stubSummariser) Summarise(ctx context.Context, prompt string) (string, error) {
	return s.result, s.err
}

func TestCompressUsesSummariserWhenAvailable(t *testing.T) {
	c := New(stubSummariser{result: "goal: refactor parser; fixed nil pointer bug"}, DefaultConfig())
	out, err := c.Compress(context.Background(), sampleContext())
	require.NoError(t, err)

	var semantic CompressedSegment
	for _, seg := range out.Segments {
		if seg.HeadName == "semantic" {
			semantic = seg
		}
	}
	assert.Equal(t, importanceSemanticLLM, semantic.Importance)
	assert.Equal(t, "goal: refactor parser; fixed nil pointer bug", semantic.Content)
}

func TestCompressFallsBackOnSummariserError(t *testing.T) {
	c := New(stubSummariser{err: errors.New("boom")}, DefaultConfig())
	out, err := c.Compress(context.Background(), sampleContext())
	require.NoError(t, err)

	for _, seg := range out.Segments {
		if seg.HeadName == "semantic" {
			assert.Equal(t, importanceSemanticFallback, seg.Importance)
		}
	}
}

func TestStructuralHeadGroupsFilesByAction(t *testing.T) {
	seg := structuralHead(sampleContext())
	assert.Contains(t, seg.Content, "read:")
	assert.Contains(t, seg.Content, "edit:")
	assert.Contains(t, seg.Content, "internal/parser/parser.go")
}

func TestTemporalHeadAlwaysIncludesFirstAndLast(t *testing.T) {
	seg := temporalHead(sampleContext())
	assert.Contains(t, seg.Content, "read_file")
	assert.Contains(t, seg.Content, "edit_file")
}

func TestTemporalHeadEmptyWhenNoEvents(t *testing.T) {
	seg := temporalHead(RawContext{})
	assert.Equal(t, "", seg.Content)
	assert.Equal(t, 0, seg.Tokens)
}

func TestEntityHeadExtractsFilesFunctionsAndDeps(t *testing.T) {
	seg := entityHead(sampleContext())
	assert.Contains(t, seg.Content, "internal/parser/parser.go")
	assert.Contains(t, seg.Content, "parseToken")
	assert.Contains(t, seg.Content, "lodash")
}

func TestFuseRespectsMaxOutputTokensAndTruncatesLast(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOutputTokens = 40
	c := New(nil, cfg)

	raw := sampleContext()
	for i := 0; i < 30; i++ {
		raw.FunctionCalls = append(raw.FunctionCalls, FCEvent{
			Name:      "noop",
			Summary:   "padding content to exceed the small token budget for this test case",
			Timestamp: time.Now(),
		})
	}

	out, err := c.Compress(context.Background(), raw)
	require.NoError(t, err)
	assert.LessOrEqual(t, out.CompressedTokens, cfg.MaxOutputTokens+10) // small slack for header/truncation rounding
}

func TestCompressionRatioReportedAgainstOriginalTokens(t *testing.T) {
	c := New(nil, DefaultConfig())
	out, err := c.Compress(context.Background(), sampleContext())
	require.NoError(t, err)
	assert.Greater(t, out.OriginalTokens, 0)
	assert.Greater(t, out.CompressionRatio, 0.0)
}

func TestSegmentsAreSortedByImportanceTimesWeight(t *testing.T) {
	c := New(nil, DefaultConfig())
	out, err := c.Compress(context.Background(), sampleContext())
	require.NoError(t, err)
	require.NotEmpty(t, out.Segments)
	assert.Equal(t, "semantic", out.Segments[0].HeadName)
}
