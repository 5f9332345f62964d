package memory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordPatternAccumulatesFrequencyAndExamples(t *testing.T) {
	s := NewStatic()
	s.RecordPattern(CodePattern{Name: "repo-pattern", Description: "uses repository interface", Category: "data"}, "ex1")
	s.RecordPattern(CodePattern{Name: "repo-pattern"}, "ex2")
	s.RecordPattern(CodePattern{Name: "repo-pattern"}, "ex1") // dup, should not re-append

	patterns := s.Patterns()
	assert.Len(t, patterns, 1)
	assert.Equal(t, 3, patterns[0].Frequency)
	assert.Equal(t, []string{"ex1", "ex2"}, patterns[0].Examples)
}

func TestRecordPatternCapsExamplesAtFive(t *testing.T) {
	s := NewStatic()
	for i := 0; i < 8; i++ {
		s.RecordPattern(CodePattern{Name: "p"}, fmt.Sprintf("ex%d", i))
	}
	patterns := s.Patterns()
	require := assert.New(t)
	require.Len(patterns[0].Examples, maxPatternExamples)
	require.Equal([]string{"ex3", "ex4", "ex5", "ex6", "ex7"}, patterns[0].Examples)
}

func TestRecordDecisionIndexesByTagAndEvictsOldest(t *testing.T) {
	s := NewStatic()
	for i := 0; i < maxDecisionsPerTag+5; i++ {
		s.RecordDecision(Decision{Decision: fmt.Sprintf("d%d", i), Tags: []string{"arch"}})
	}
	byTag := s.DecisionsByTag("arch")
	assert.Len(t, byTag, maxDecisionsPerTag)
	assert.Equal(t, "d5", byTag[0].Decision) // oldest 5 evicted
	assert.Equal(t, fmt.Sprintf("d%d", maxDecisionsPerTag+4), byTag[len(byTag)-1].Decision)
}

func TestDecisionsByTagIsCaseInsensitive(t *testing.T) {
	s := NewStatic()
	s.RecordDecision(Decision{Decision: "use postgres", Tags: []string{"Database"}})
	assert.Len(t, s.DecisionsByTag("database"), 1)
}

func TestProjectTreeRoundTrip(t *testing.T) {
	s := NewStatic()
	assert.Nil(t, s.ProjectTree())
	tree := &TreeNode{Name: "root", IsDir: true}
	s.SetProjectTree(tree)
	assert.Equal(t, tree, s.ProjectTree())
}
