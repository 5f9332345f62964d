package secrets

import (
	"fmt"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// deepFinding is a secret located by the gitleaks pass, translated from its
// line/column coordinates into an absolute byte offset so it can flow
// through the same redaction/merge machinery as the regex rules.
type deepFinding struct {
	ruleID      string
	description string
	line        int
	start, end  int
}

// deepScanner wraps gitleaks' default ruleset (800+ patterns backed by its
// aho-corasick keyword pre-filter) for the optional, slower pass Config.DeepScan
// enables behind the regex rules.
type deepScanner struct {
	detector *detect.Detector
}

func newDeepScanner() (*deepScanner, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("secrets: building gitleaks detector: %w", err)
	}
	return &deepScanner{detector: d}, nil
}

// scan runs the gitleaks ruleset over content and resolves each finding's
// 1-indexed line/column position into an absolute byte range.
func (d *deepScanner) scan(content string) []deepFinding {
	raw := d.detector.DetectString(content)
	if len(raw) == 0 {
		return nil
	}

	lineStarts := lineStartOffsets(content)
	out := make([]deepFinding, 0, len(raw))
	for _, f := range raw {
		if f.StartLine < 1 || f.StartLine > len(lineStarts) {
			continue
		}
		lineStart := lineStarts[f.StartLine-1]
		start := lineStart + f.StartColumn - 1
		end := lineStart + f.EndColumn
		if start < 0 || end > len(content) || start >= end {
			continue
		}
		out = append(out, deepFinding{
			ruleID:      f.RuleID,
			description: f.Description,
			line:        f.StartLine,
			start:       start,
			end:         end,
		})
	}
	return out
}

// lineStartOffsets returns the byte offset each line of content starts at,
// indexed from 0 (lineStartOffsets[0] is always 0).
func lineStartOffsets(content string) []int {
	offsets := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}
