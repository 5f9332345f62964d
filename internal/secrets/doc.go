// Package secrets provides secret detection and redaction for FC argument
// and result content before it is persisted or handed to the summariser.
//
// Scrub applies a fixed set of regex rules (keyword-prefiltered, with
// overlapping matches merged before redaction). ScrubDeep additionally
// layers gitleaks' full ruleset behind the regex pass when Config.DeepScan
// is enabled, for callers that want the slower, broader sweep over the FC
// result stream specifically. Both preserve metrics (rule IDs, counts)
// while redacting sensitive content.
package secrets
