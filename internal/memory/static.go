package memory

import (
	"strings"
	"sync"
	"time"
)

const (
	maxPatternExamples  = 5
	maxDecisionsPerTag  = 100
)

// Static wraps StaticKnowledge with the mutex that makes its O(1)
// insert-or-update operations safe for concurrent callers.
type Static struct {
	mu   sync.Mutex
	data StaticKnowledge
}

// NewStatic returns an empty L1 store.
func NewStatic() *Static {
	return &Static{
		data: StaticKnowledge{
			Patterns:    make(map[string]*CodePattern),
			Templates:   make(map[string]*CommandTemplate),
			byTag:       make(map[string][]int),
			LastUpdated: time.Now(),
		},
	}
}

// SetProjectTree replaces the cached project-tree summary.
func (s *Static) SetProjectTree(root *TreeNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ProjectTree = root
	s.data.LastUpdated = time.Now()
}

// RecordPattern inserts or updates a CodePattern by name, bumping frequency
// and appending a deduplicated example (bounded to maxPatternExamples).
func (s *Static) RecordPattern(p CodePattern, example string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data.Patterns[p.Name]
	if !ok {
		cp := p
		cp.Frequency = 1
		cp.Examples = nil
		existing = &cp
		s.data.Patterns[p.Name] = existing
	} else {
		existing.Frequency++
		if p.Description != "" {
			existing.Description = p.Description
		}
		if p.Category != "" {
			existing.Category = p.Category
		}
	}
	existing.Examples = appendDedupedBounded(existing.Examples, example, maxPatternExamples)
	s.data.LastUpdated = time.Now()
}

// RecordTemplate inserts or updates a CommandTemplate by command text.
func (s *Static) RecordTemplate(t CommandTemplate, example string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data.Templates[t.Command]
	if !ok {
		cp := t
		cp.Frequency = 1
		cp.Examples = nil
		existing = &cp
		s.data.Templates[t.Command] = existing
	} else {
		existing.Frequency++
		if t.Description != "" {
			existing.Description = t.Description
		}
	}
	existing.Examples = appendDedupedBounded(existing.Examples, example, maxPatternExamples)
	s.data.LastUpdated = time.Now()
}

// RecordDecision appends a decision and indexes it under each of its tags,
// evicting the oldest indexed entry per tag beyond maxDecisionsPerTag.
func (s *Static) RecordDecision(d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}
	s.data.decisions = append(s.data.decisions, d)
	idx := len(s.data.decisions) - 1

	for _, tag := range d.Tags {
		key := strings.ToLower(tag)
		list := append(s.data.byTag[key], idx)
		if len(list) > maxDecisionsPerTag {
			list = list[len(list)-maxDecisionsPerTag:]
		}
		s.data.byTag[key] = list
	}
	s.data.LastUpdated = time.Now()
}

// DecisionsByTag returns decisions indexed under the given tag, most recent
// last, matching insertion order.
func (s *Static) DecisionsByTag(tag string) []Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	idxs := s.data.byTag[strings.ToLower(tag)]
	out := make([]Decision, 0, len(idxs))
	for _, i := range idxs {
		if i >= 0 && i < len(s.data.decisions) {
			out = append(out, s.data.decisions[i])
		}
	}
	return out
}

// Patterns returns a snapshot slice of all recorded code patterns.
func (s *Static) Patterns() []CodePattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CodePattern, 0, len(s.data.Patterns))
	for _, p := range s.data.Patterns {
		out = append(out, *p)
	}
	return out
}

// Templates returns a snapshot slice of all recorded command templates.
func (s *Static) Templates() []CommandTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CommandTemplate, 0, len(s.data.Templates))
	for _, t := range s.data.Templates {
		out = append(out, *t)
	}
	return out
}

// Decisions returns a snapshot slice of all recorded decisions, oldest first.
func (s *Static) Decisions() []Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Decision, len(s.data.decisions))
	copy(out, s.data.decisions)
	return out
}

// ProjectTree returns the cached project-tree summary, or nil.
func (s *Static) ProjectTree() *TreeNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ProjectTree
}

func appendDedupedBounded(examples []string, next string, max int) []string {
	if next == "" {
		return examples
	}
	for _, e := range examples {
		if e == next {
			return examples
		}
	}
	examples = append(examples, next)
	if len(examples) > max {
		examples = examples[len(examples)-max:]
	}
	return examples
}
