// Package pruner implements C9: depth analysis, the four selectable
// reduction strategies, token-budget fitting, and orphan tool-result
// elimination, grounded on original_source/history_pruning.rs.
package pruner

import (
	"fmt"

	"github.com/digitallysavvy/go-ai/internal/canon"
	"github.com/digitallysavvy/go-ai/internal/flavor"
)

// Strategy names a selectable reduction.
type Strategy string

const (
	StrategyWindowing    Strategy = "windowing"
	StrategyFlattening   Strategy = "flattening"
	StrategySummarization Strategy = "summarization"
	StrategySelectiveDeletion Strategy = "selective_deletion"
)

// Window keeps the first n/3 and last 2n/3 turns, inserting a synthetic
// system separator noting the elision. No-op if history already fits.
func Window(history []canon.Turn, targetLen int) []canon.Turn {
	n := len(history)
	if n <= targetLen || targetLen <= 0 {
		return history
	}
	keepFirst := targetLen / 3
	keepLast := targetLen - keepFirst
	if keepFirst+keepLast >= n {
		return history
	}
	elided := n - keepFirst - keepLast
	out := make([]canon.Turn, 0, targetLen+1)
	out = append(out, history[:keepFirst]...)
	out = append(out, canon.Turn{
		Role: canon.RoleSystem,
		Parts: []canon.Part{canon.Text{
			Content: fmt.Sprintf("[%d earlier turns elided for length]", elided),
		}},
	})
	out = append(out, history[n-keepLast:]...)
	return out
}

// Flatten rewrites every ToolResult part as a plain Text part, collapsing
// structured tool output into prose the model can still read but that no
// longer contributes to JSON-nesting depth.
func Flatten(history []canon.Turn) []canon.Turn {
	out := make([]canon.Turn, len(history))
	for i, t := range history {
		nt := t
		nt.Parts = make([]canon.Part, len(t.Parts))
		for j, p := range t.Parts {
			if tr, ok := p.(canon.ToolResult); ok {
				nt.Parts[j] = canon.Text{Content: tr.Content}
			} else {
				nt.Parts[j] = p
			}
		}
		out[i] = nt
	}
	return out
}

// Summarize replaces every turn beyond the last keepLast with a short text
// summary noting each tool call by name.
func Summarize(history []canon.Turn, keepLast int) []canon.Turn {
	n := len(history)
	if n <= keepLast {
		return history
	}
	aged := history[:n-keepLast]
	var names []string
	for _, t := range aged {
		for _, tc := range canon.ToolCallsOf(t) {
			names = append(names, tc.Name)
		}
	}
	summary := canon.Turn{
		Role: canon.RoleSystem,
		Parts: []canon.Part{canon.Text{
			Content: fmt.Sprintf("[summary of %d earlier turns; tool calls: %v]", len(aged), names),
		}},
	}
	out := make([]canon.Turn, 0, keepLast+1)
	out = append(out, summary)
	out = append(out, history[n-keepLast:]...)
	return out
}

func importance(t canon.Turn) int {
	score := 0
	switch t.Role {
	case canon.RoleSystem:
		score += 100
	case canon.RoleUser:
		score += 80
	}
	score += 50 * len(canon.ToolCallsOf(t))
	contentLen := len(canon.TextOf(t))
	bonus := contentLen / 100
	if bonus > 20 {
		bonus = 20
	}
	score += bonus
	return score
}

// SelectiveDelete scores every turn by importance (System 100, User 80,
// +50 per tool call, content length/100 capped at 20) and keeps the
// top-n highest-scoring turns, preserving original order.
func SelectiveDelete(history []canon.Turn, keep int) []canon.Turn {
	n := len(history)
	if n <= keep {
		return history
	}
	type scored struct {
		idx   int
		score int
	}
	scores := make([]scored, n)
	for i, t := range history {
		scores[i] = scored{idx: i, score: importance(t)}
	}
	// partial selection sort for the top `keep` by score (n is small:
	// bounded by MAX_HISTORY_LENGTH).
	for i := 0; i < keep; i++ {
		best := i
		for j := i + 1; j < n; j++ {
			if scores[j].score > scores[best].score {
				best = j
			}
		}
		scores[i], scores[best] = scores[best], scores[i]
	}
	keepIdx := make(map[int]bool, keep)
	for i := 0; i < keep; i++ {
		keepIdx[scores[i].idx] = true
	}
	out := make([]canon.Turn, 0, keep)
	for i, t := range history {
		if keepIdx[i] {
			out = append(out, t)
		}
	}
	return out
}

// estimateTokens is the conservative heuristic from §4.9: ~3 chars/token
// for text, fixed overheads for tool calls/results, 1000 per image.
func estimateTokens(history []canon.Turn) int {
	total := 0
	for _, t := range history {
		for _, p := range t.Parts {
			switch part := p.(type) {
			case canon.Text:
				total += len(part.Content) / 3
			case canon.Thought:
				total += len(part.Content) / 3
			case canon.ToolCall:
				total += 40
				for _, v := range part.Arguments {
					total += len(fmt.Sprint(v)) / 3
				}
			case canon.ToolResult:
				total += 20 + len(part.Content)/3
			case canon.Image:
				total += 1000
			}
		}
	}
	return total
}

// FitTokenBudget windows the history down until its estimated token cost
// is under budget.
func FitTokenBudget(history []canon.Turn, budget int) []canon.Turn {
	cur := history
	for estimateTokens(cur) > budget && len(cur) > 2 {
		next := Window(cur, len(cur)-len(cur)/4-1)
		if len(next) == len(cur) {
			break
		}
		cur = next
	}
	return cur
}

// DropOrphans removes Tool turns whose correlation id no longer resolves
// to any preceding ToolCall in history.
func DropOrphans(history []canon.Turn) []canon.Turn {
	seen := map[string]bool{}
	out := make([]canon.Turn, 0, len(history))
	for _, t := range history {
		for _, tc := range canon.ToolCallsOf(t) {
			seen[tc.ID] = true
		}
		if t.Role == canon.RoleTool && !seen[t.ToolCallID] {
			continue
		}
		out = append(out, t)
	}
	return out
}

// summarizeKeepLast and selectiveDeleteKeep bound how much of the history
// the Summarization and Selective-deletion strategies keep when selected;
// both trail Windowing's own n/3-n/3*2 split rather than introducing a
// third ratio.
const (
	summarizeKeepLast   = 6
	selectiveDeleteKeep = 8
)

// applyStrategy dispatches among the four selectable C9 strategies
// (§4.9). An empty or unrecognized Strategy falls back to Flattening,
// matching the pruner's long-standing default behavior.
func applyStrategy(history []canon.Turn, strategy Strategy) []canon.Turn {
	switch strategy {
	case StrategyWindowing:
		return Window(history, len(history)-1)
	case StrategySummarization:
		return Summarize(history, summarizeKeepLast)
	case StrategySelectiveDeletion:
		return SelectiveDelete(history, selectiveDeleteKeep)
	case StrategyFlattening:
		return Flatten(history)
	default:
		return Flatten(history)
	}
}

// Prune runs the full C9 pipeline: depth-triggered strategy selection
// (Google flavor only, when nesting exceeds the threshold), token-budget
// windowing, then orphan elimination. It never mutates the input slice.
func Prune(history []canon.Turn, cap flavor.Capability, tokenBudget int, strategy Strategy) []canon.Turn {
	cur := history

	if cap.DepthPruningApplies {
		depth := AnalyzeDepth(cur)
		if depth.Exceeds {
			cur = applyStrategy(cur, strategy)
		}
	}

	cur = FitTokenBudget(cur, tokenBudget)
	cur = DropOrphans(cur)
	return cur
}
