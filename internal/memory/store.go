package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ccjk/ctxrd/internal/tokens"
)

const (
	maxPatternResults  = 5
	maxTemplateResults = 5
	maxDecisionResults = 3
	maxTreeDepth       = 3
	maxTreeChildren    = 10
)

// Store composes the three memory tiers for a single session and implements
// retrieveRelevantContext over all of them.
type Store struct {
	Static  *Static
	Session *Session
	Dynamic *Dynamic

	// Index is the optional L1 semantic re-ranker (§12.3). Nil disables it;
	// retrieveRelevantContext then behaves as pure substring match.
	Index SemanticIndex
}

// NewStore returns a Store with fresh L1/L2/L3 tiers. A shared Static
// instance may be passed in for a project-wide L1 across sessions; pass nil
// to start with an empty one scoped to this Store alone.
func NewStore(shared *Static, maxRecentFCs, maxActiveFiles int) *Store {
	st := shared
	if st == nil {
		st = NewStatic()
	}
	return &Store{
		Static:  st,
		Session: NewSession(maxRecentFCs, maxActiveFiles),
		Dynamic: NewDynamic(),
	}
}

// RetrieveRelevantContext assembles a relevance-ranked projection of all
// three tiers for query, each summary truncated to its fixed cap, and
// reports the total token count and the compression ratio against the full
// (untruncated) tier contents.
func (s *Store) RetrieveRelevantContext(query string, maxTokens int) RelevantContext {
	q := strings.ToLower(query)

	patterns := s.matchPatterns(q)
	templates := s.matchTemplates(q)
	decisions := s.matchDecisions(q)

	if s.Index != nil {
		patterns = s.Index.RerankPatterns(query, patterns)
		templates = s.Index.RerankTemplates(query, templates)
		decisions = s.Index.RerankDecisions(query, decisions)
	}

	if len(patterns) > maxPatternResults {
		patterns = patterns[:maxPatternResults]
	}
	if len(templates) > maxTemplateResults {
		templates = templates[:maxTemplateResults]
	}
	if len(decisions) > maxDecisionResults {
		decisions = decisions[:maxDecisionResults]
	}

	staticSummary := s.renderStaticSummary(patterns, templates, decisions)
	sessionSummary := s.renderSessionSummary()
	dynamicSummary := s.renderDynamicSummary()

	combined := staticSummary + sessionSummary + dynamicSummary
	totalTokens := tokens.Estimate(combined)

	if maxTokens > 0 && totalTokens > maxTokens {
		combined = truncateToTokens(combined, maxTokens)
		totalTokens = tokens.Estimate(combined)
	}

	originalTokens := tokens.Estimate(s.fullTierText())
	ratio := 1.0
	if originalTokens > 0 {
		ratio = float64(totalTokens) / float64(originalTokens)
	}

	return RelevantContext{
		StaticSummary:    staticSummary,
		SessionSummary:   sessionSummary,
		DynamicSummary:   dynamicSummary,
		TotalTokens:      totalTokens,
		CompressionRatio: ratio,
	}
}

func (s *Store) matchPatterns(q string) []CodePattern {
	all := s.Static.Patterns()
	var out []CodePattern
	for _, p := range all {
		if containsFold(p.Name, q) || containsFold(p.Description, q) || containsFold(p.Category, q) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Frequency > out[j].Frequency })
	return out
}

func (s *Store) matchTemplates(q string) []CommandTemplate {
	all := s.Static.Templates()
	var out []CommandTemplate
	for _, t := range all {
		if containsFold(t.Command, q) || containsFold(t.Description, q) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Frequency > out[j].Frequency })
	return out
}

func (s *Store) matchDecisions(q string) []Decision {
	all := s.Static.Decisions()
	var out []Decision
	for _, d := range all {
		if containsFold(d.Context, q) || containsFold(d.Decision, q) || tagsContain(d.Tags, q) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), needle)
}

func tagsContain(tags []string, q string) bool {
	for _, t := range tags {
		if containsFold(t, q) {
			return true
		}
	}
	return false
}

func (s *Store) renderStaticSummary(patterns []CodePattern, templates []CommandTemplate, decisions []Decision) string {
	var b strings.Builder
	b.WriteString("## Static Knowledge\n")
	if tree := s.Static.ProjectTree(); tree != nil {
		b.WriteString(renderTree(tree, 0))
	}
	for _, p := range patterns {
		fmt.Fprintf(&b, "- pattern %s (%dx): %s\n", p.Name, p.Frequency, p.Description)
	}
	for _, t := range templates {
		fmt.Fprintf(&b, "- template %s (%dx): %s\n", t.Command, t.Frequency, t.Description)
	}
	for _, d := range decisions {
		fmt.Fprintf(&b, "- decision [%s]: %s\n", strings.Join(d.Tags, ","), d.Decision)
	}
	return b.String()
}

func (s *Store) renderSessionSummary() string {
	snap := s.Session.Snapshot()
	var b strings.Builder
	b.WriteString("## Session\n")
	if snap.CurrentGoal != "" {
		fmt.Fprintf(&b, "goal: %s\n", snap.CurrentGoal)
	}
	for _, fc := range snap.RecentFCs {
		fmt.Fprintf(&b, "- %s: %s\n", fc.FCName, fc.Summary)
	}
	for _, f := range snap.ActiveFiles {
		fmt.Fprintf(&b, "- active file: %s\n", f)
	}
	return b.String()
}

func (s *Store) renderDynamicSummary() string {
	snap := s.Dynamic.Snapshot()
	var b strings.Builder
	b.WriteString("## Dynamic\n")
	if task := snap.CurrentTask(); task != "" {
		fmt.Fprintf(&b, "current task: %s\n", task)
	}
	for _, d := range snap.PendingDecisions {
		fmt.Fprintf(&b, "- pending decision: %s\n", d.Decision)
	}
	for _, e := range snap.ErrorContext {
		fmt.Fprintf(&b, "- error (%s): %s\n", e.Source, e.Message)
	}
	return b.String()
}

// fullTierText renders every tier without any relevance filtering or caps,
// used only as the denominator for CompressionRatio.
func (s *Store) fullTierText() string {
	all := s.Static.Patterns()
	allT := s.Static.Templates()
	allD := s.Static.Decisions()
	return s.renderStaticSummary(all, allT, allD) + s.renderSessionSummary() + s.renderDynamicSummary()
}

func truncateToTokens(s string, maxTokens int) string {
	maxChars := maxTokens * 4
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	return s[:maxChars]
}

// renderTree renders an indented ASCII outline of the project tree, capped
// at maxTreeDepth levels and maxTreeChildren entries per directory.
func renderTree(node *TreeNode, depth int) string {
	if node == nil || depth > maxTreeDepth {
		return ""
	}
	var b strings.Builder
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(&b, "%s%s\n", indent, node.Name)
	if depth == maxTreeDepth {
		return b.String()
	}
	children := node.Children
	shown := children
	var remainder int
	if len(children) > maxTreeChildren {
		shown = children[:maxTreeChildren]
		remainder = len(children) - maxTreeChildren
	}
	for i := range shown {
		b.WriteString(renderTree(&shown[i], depth+1))
	}
	if remainder > 0 {
		fmt.Fprintf(&b, "%s  … and %d more\n", indent, remainder)
	}
	return b.String()
}
