package pruner

import (
	"encoding/json"

	"github.com/digitallysavvy/go-ai/internal/canon"
)

// maxFullParseBytes is the cutoff above which the depth analyzer falls
// back to a lightweight brace/bracket scanner instead of a full parse,
// per §4.9.
const maxFullParseBytes = 256 * 1024

// DepthResult is the outcome of scanning every tool argument and tool
// result in a history for JSON nesting depth.
type DepthResult struct {
	MaxDepth    int
	Approaching bool
	Exceeds     bool
}

// AnalyzeDepth computes the maximum JSON nesting depth observed across
// every ToolCall.Arguments and ToolResult.Content in history. Depth
// exactly 79 is approaching-only; depth exactly 80 exceeds (§8).
func AnalyzeDepth(history []canon.Turn) DepthResult {
	max := 0
	for _, t := range history {
		for _, p := range t.Parts {
			switch part := p.(type) {
			case canon.ToolCall:
				if d := depthOfValue(part.Arguments); d > max {
					max = d
				}
			case canon.ToolResult:
				if d := depthOfToolResultContent(part.Content); d > max {
					max = d
				}
			}
		}
	}
	return DepthResult{
		MaxDepth:    max,
		Approaching: max >= 60,
		Exceeds:     max >= 80,
	}
}

func depthOfToolResultContent(content string) int {
	if len(content) <= maxFullParseBytes {
		var v any
		if err := json.Unmarshal([]byte(content), &v); err == nil {
			return depthOfValue(v)
		}
	}
	return scanBracketDepth(content)
}

// depthOfValue counts the outermost container itself as depth 1, matching
// scanBracketDepth's convention of counting the first opening brace as
// depth 1, so the full-parse and lightweight-scan paths agree at the
// §8 boundary (79 vs 80).
func depthOfValue(v any) int {
	return depthOfValueAt(v, 0)
}

func depthOfValueAt(v any, parent int) int {
	switch t := v.(type) {
	case map[string]any:
		d := parent + 1
		max := d
		for _, vv := range t {
			if r := depthOfValueAt(vv, d); r > max {
				max = r
			}
		}
		return max
	case []any:
		d := parent + 1
		max := d
		for _, vv := range t {
			if r := depthOfValueAt(vv, d); r > max {
				max = r
			}
		}
		return max
	default:
		return parent
	}
}

// scanBracketDepth tracks brace/bracket nesting depth while respecting
// string/escape state, without allocating a parsed structure — the
// lightweight path for payloads too large to fully parse.
func scanBracketDepth(s string) int {
	depth, max := 0, 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > max {
				max = depth
			}
		case '}', ']':
			if depth > 0 {
				depth--
			}
		}
	}
	return max
}
