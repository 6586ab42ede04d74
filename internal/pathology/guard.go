// Package pathology implements C7: end-of-stream inspection of the
// finalized turn and mid-stream provider-error classification, grounded
// on original_source/streaming.rs's handle_provider_error /
// process_stream_line call chain.
package pathology

import (
	"strings"

	"github.com/digitallysavvy/go-ai/internal/canon"
)

// SuspiciousEmptyArgsTools are tools that always require parameters; a
// finalized call to one of these with an empty-object arguments is
// logged as a warning, attributed to upstream fragmentation, and never a
// hard failure.
var SuspiciousEmptyArgsTools = map[string]bool{
	"write_file":   true,
	"edit_file":    true,
	"create_plan":  true,
	"run_command":  true,
	"search_files": true,
}

// EnforcementPreamble is prepended to the retried user turn on a
// diff-without-tools trigger, per §4.7 check 2.
const EnforcementPreamble = "You must use the available tools to make this change; do not emit a diff or patch as plain text. "

// EmptyArgsFindings scans a finalized turn's tool calls for suspicious
// empty-argument calls.
func EmptyArgsFindings(t canon.Turn) []string {
	var out []string
	for _, tc := range canon.ToolCallsOf(t) {
		if SuspiciousEmptyArgsTools[tc.Name] && len(tc.Arguments) == 0 {
			out = append(out, tc.Name)
		}
	}
	return out
}

var diffLinePrefixes = []string{
	"diff --git ", "--- ", "+++ ", "@@ -", "Index: ", "Property changes on: ",
}

// IsDiffWithoutTools implements §4.7 check 2: the request advertised
// tools, no tool was called, and the text matches diff/patch markers —
// either a fenced diff/patch code block, or any line starting with one
// of the unified-diff markers.
func IsDiffWithoutTools(advertisedTools bool, calledAnyTool bool, text string) bool {
	if !advertisedTools || calledAnyTool {
		return false
	}
	if strings.Contains(text, "```diff") || strings.Contains(text, "```patch") {
		return true
	}
	for _, line := range strings.Split(text, "\n") {
		for _, prefix := range diffLinePrefixes {
			if strings.HasPrefix(line, prefix) {
				return true
			}
		}
	}
	return false
}

// IsEmptyResponse implements §4.7 check 3: the finalized turn carries no
// content at all.
func IsEmptyResponse(t canon.Turn) bool {
	return len(t.Parts) == 0
}

var retryableStatus = map[int]bool{
	429: true, 500: true, 502: true, 503: true, 504: true, 520: true,
}

var retryableSubstrings = []string{"overloaded", "rate limit", "timeout"}

// ClassifyProviderError implements the mid-stream provider-error
// retryability rule from §4.7: retryable if status is in the fixed set
// or the message matches a known substring, case-insensitively.
func ClassifyProviderError(status int, message string) bool {
	if retryableStatus[status] {
		return true
	}
	lower := strings.ToLower(message)
	for _, s := range retryableSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Decision is what the pipeline should do once a pathology check fires.
type Decision string

const (
	DecisionNone           Decision = "none"
	DecisionRetryDiff      Decision = "retry_diff"
	DecisionFallback       Decision = "fallback"
	DecisionUpstreamError  Decision = "upstream_error"
	DecisionRetryOnce      Decision = "retry_once"
	DecisionPassThrough    Decision = "pass_through"
)

// EndOfStream runs the three end-of-stream checks in order and returns
// the first decision that applies, plus any empty-args warnings
// (reported regardless of the chosen decision, since they are a warning,
// not a control-flow trigger).
func EndOfStream(t canon.Turn, advertisedTools, calledAnyTool bool, googleFallbackConfigured bool, isGoogleFlavor bool) (Decision, []string) {
	warnings := EmptyArgsFindings(t)

	text := canon.TextOf(t)
	if IsDiffWithoutTools(advertisedTools, calledAnyTool, text) {
		return DecisionRetryDiff, warnings
	}

	if IsEmptyResponse(t) {
		if isGoogleFlavor && googleFallbackConfigured {
			return DecisionFallback, warnings
		}
		return DecisionUpstreamError, warnings
	}

	return DecisionNone, warnings
}

// MidStream decides what to do with a mid-stream provider error, per
// §4.7's final paragraph.
func MidStream(status int, message string, calledAnyTool bool, googleFallbackConfigured bool, isGoogleFlavor bool) Decision {
	if !ClassifyProviderError(status, message) {
		return DecisionPassThrough
	}
	if calledAnyTool {
		return DecisionPassThrough
	}
	if isGoogleFlavor && googleFallbackConfigured {
		return DecisionFallback
	}
	return DecisionRetryOnce
}
