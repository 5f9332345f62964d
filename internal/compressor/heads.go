package compressor

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ccjk/ctxrd/internal/tokens"
)

const (
	importanceSemanticLLM      = 0.9
	importanceSemanticFallback = 0.8
	importanceStructural       = 0.7
	importanceTemporal         = 0.5
	importanceEntity           = 0.4
)

// semanticHead extracts goal / decisions / outcomes via the pluggable
// summariser. A nil summariser, or one that errors, falls back to a
// deterministic rule-based extraction.
func semanticHead(ctx context.Context, raw RawContext, s Summariser) CompressedSegment {
	if s != nil {
		if out, err := s.Summarise(ctx, semanticPrompt(raw)); err == nil && out != "" {
			return CompressedSegment{HeadName: "semantic", Content: out, Tokens: tokens.Estimate(out), Importance: importanceSemanticLLM}
		}
	}
	content := semanticFallback(raw)
	return CompressedSegment{HeadName: "semantic", Content: content, Tokens: tokens.Estimate(content), Importance: importanceSemanticFallback}
}

func semanticPrompt(raw RawContext) string {
	var b strings.Builder
	if raw.CurrentGoal != "" {
		fmt.Fprintf(&b, "Goal: %s\n", raw.CurrentGoal)
	}
	b.WriteString("Summarise the goal, key decisions, and outcomes of this session in a few sentences.\n")
	for _, fc := range raw.FunctionCalls {
		fmt.Fprintf(&b, "- %s: %s\n", fc.Name, fc.Summary)
	}
	return b.String()
}

func semanticFallback(raw RawContext) string {
	var b strings.Builder
	if raw.CurrentGoal != "" {
		fmt.Fprintf(&b, "Goal: %s\n", raw.CurrentGoal)
	}
	for _, fc := range lastN(raw.FunctionCalls, 10) {
		fmt.Fprintf(&b, "- %s: %s\n", fc.Name, fc.Summary)
	}
	for _, errMsg := range lastNStrings(raw.Errors, 3) {
		fmt.Fprintf(&b, "error: %s\n", errMsg)
	}
	return b.String()
}

var structuralActionVerbs = map[string]string{
	"read":   "read",
	"write":  "write",
	"edit":   "edit",
	"delete": "delete",
}

var structuralPatternKeywords = []string{"import", "export", "function", "class", "test", "config"}

// structuralHead groups touched files by inferred action and surfaces
// pattern keywords (import/export/function/class/test/config) observed in
// recent FC summaries.
func structuralHead(raw RawContext) CompressedSegment {
	groups := map[string][]string{}
	for _, fc := range raw.FunctionCalls {
		action := inferAction(fc.Name)
		if action == "" {
			continue
		}
		path := fc.Args["path"]
		if path == "" {
			path = fc.Args["file"]
		}
		if path == "" {
			continue
		}
		groups[action] = appendUnique(groups[action], path)
	}

	var b strings.Builder
	for _, action := range []string{"read", "write", "edit", "delete"} {
		files := groups[action]
		if len(files) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", action)
		for _, f := range firstN(files, 10) {
			fmt.Fprintf(&b, "  - %s (%d lines)\n", f, lineCountEstimate(f, raw))
		}
	}

	var matched []string
	seen := map[string]bool{}
	for _, fc := range raw.FunctionCalls {
		lower := strings.ToLower(fc.Summary)
		for _, kw := range structuralPatternKeywords {
			if strings.Contains(lower, kw) && !seen[kw] {
				matched = append(matched, kw)
				seen[kw] = true
			}
		}
	}
	if len(matched) > 0 {
		fmt.Fprintf(&b, "patterns: %s\n", strings.Join(matched, ", "))
	}

	content := b.String()
	return CompressedSegment{HeadName: "structural", Content: content, Tokens: tokens.Estimate(content), Importance: importanceStructural}
}

func inferAction(fcName string) string {
	lower := strings.ToLower(fcName)
	for verb, action := range structuralActionVerbs {
		if strings.Contains(lower, verb) {
			return action
		}
	}
	return ""
}

// lineCountEstimate approximates a file's line count from any FC summary
// text that references it, since raw file contents aren't carried in the
// projection.
func lineCountEstimate(path string, raw RawContext) int {
	for _, fc := range raw.FunctionCalls {
		if fc.Args["path"] == path || fc.Args["file"] == path {
			return strings.Count(fc.Summary, "\n") + 1
		}
	}
	return 0
}

var temporalKeywords = []string{"error", "success", "complete", "create", "delete", "fix"}

// temporalHead selects up to 10 key events: always first and last, plus
// keyword matches, then evenly-spaced filler.
func temporalHead(raw RawContext) CompressedSegment {
	events := make([]FCEvent, len(raw.FunctionCalls))
	copy(events, raw.FunctionCalls)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })

	if len(events) == 0 {
		return CompressedSegment{HeadName: "temporal", Content: "", Tokens: 0, Importance: importanceTemporal}
	}

	const maxEvents = 10
	selected := map[int]bool{0: true, len(events) - 1: true}
	for i, e := range events {
		if len(selected) >= maxEvents {
			break
		}
		lower := strings.ToLower(e.Name + " " + e.Summary)
		for _, kw := range temporalKeywords {
			if strings.Contains(lower, kw) {
				selected[i] = true
				break
			}
		}
	}
	if len(selected) < maxEvents && len(events) > len(selected) {
		step := len(events) / (maxEvents - len(selected) + 1)
		if step < 1 {
			step = 1
		}
		for i := step; i < len(events) && len(selected) < maxEvents; i += step {
			selected[i] = true
		}
	}

	idxs := make([]int, 0, len(selected))
	for i := range selected {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)

	var b strings.Builder
	for _, i := range idxs {
		e := events[i]
		fmt.Fprintf(&b, "[%s] %s: %s\n", e.Timestamp.Format("15:04:05"), e.Name, e.Summary)
	}

	content := b.String()
	return CompressedSegment{HeadName: "temporal", Content: content, Tokens: tokens.Estimate(content), Importance: importanceTemporal}
}

var (
	reFilePath   = regexp.MustCompile(`[./\w-]+\.\w{1,8}`)
	reDeclVar    = regexp.MustCompile(`\b(?:const|let|var)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	reNpmInstall = regexp.MustCompile(`\bnpm\s+(?:i|install)\s+([A-Za-z0-9@/_.-]+)`)
	reFuncName   = regexp.MustCompile("`([A-Za-z_][A-Za-z0-9_]*)\\(\\)`")
)

// entityHead extracts file paths, function names, variables, and
// dependencies mentioned across the projection, each bounded.
func entityHead(raw RawContext) CompressedSegment {
	var files, funcs, vars, deps []string

	for _, fc := range raw.FunctionCalls {
		for _, v := range fc.Args {
			for _, m := range reFilePath.FindAllString(v, -1) {
				files = appendUnique(files, m)
			}
		}
		for _, m := range reFuncName.FindAllStringSubmatch(fc.Summary, -1) {
			funcs = appendUnique(funcs, m[1])
		}
		for _, m := range reDeclVar.FindAllStringSubmatch(fc.Summary, -1) {
			vars = appendUnique(vars, m[1])
		}
		for _, m := range reNpmInstall.FindAllStringSubmatch(fc.Summary, -1) {
			deps = appendUnique(deps, m[1])
		}
	}
	for _, f := range raw.Files {
		files = appendUnique(files, f)
	}

	files = firstN(files, 10)
	funcs = firstN(funcs, 10)
	vars = firstN(vars, 10)
	deps = firstN(deps, 5)

	var b strings.Builder
	writeList(&b, "files", files)
	writeList(&b, "functions", funcs)
	writeList(&b, "variables", vars)
	writeList(&b, "dependencies", deps)

	content := b.String()
	return CompressedSegment{HeadName: "entity", Content: content, Tokens: tokens.Estimate(content), Importance: importanceEntity}
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(items, ", "))
}

func appendUnique(list []string, item string) []string {
	for _, e := range list {
		if e == item {
			return list
		}
	}
	return append(list, item)
}

func firstN(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}

func lastN(events []FCEvent, n int) []FCEvent {
	if len(events) <= n {
		return events
	}
	return events[len(events)-n:]
}

func lastNStrings(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[len(list)-n:]
}
