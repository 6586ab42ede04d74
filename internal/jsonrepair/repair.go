// Package jsonrepair heuristically closes truncated JSON fragments
// produced by a stream that was cut mid-token-call, and coerces the
// result into a structured value a tool call's Arguments field can hold.
//
// Unlike a regex-based patcher, Repair tracks bracket/brace/string/escape
// state character by character, so it never mistakes a brace inside a
// string literal for a structural one.
package jsonrepair

import (
	"encoding/json"
	"strings"
)

// PlanLikeTool is the designated tool name that receives special
// treatment: its argument payload is a free-form plan, not strict JSON,
// so a non-object fragment is wrapped rather than discarded.
const PlanLikeTool = "create_plan"

// Repair balances an incomplete JSON fragment and returns a structured
// value. It never returns an error and never panics on ill-formed input:
// at worst it returns an empty object. Repair(Repair(x)) == Repair(x) for
// any input, since re-running balance on already-valid JSON is a no-op.
func Repair(fragment string, toolName string) map[string]any {
	trimmed := strings.TrimSpace(fragment)

	if toolName == PlanLikeTool {
		return repairPlanLike(trimmed)
	}

	balanced := balance(trimmed)
	var v any
	if err := json.Unmarshal([]byte(balanced), &v); err != nil {
		return map[string]any{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

// repairPlanLike implements §4.2's plan-tool special case: if the
// balanced fragment parses as an object, ensure it carries both "plan"
// and "name"; if it parses as a bare string, promote that string to
// "plan"; otherwise wrap the raw text verbatim.
func repairPlanLike(trimmed string) map[string]any {
	const defaultName = "Implementation Plan"

	balanced := balance(trimmed)
	var v any
	if err := json.Unmarshal([]byte(balanced), &v); err == nil {
		switch t := v.(type) {
		case map[string]any:
			if _, ok := t["plan"]; !ok {
				t["plan"] = ""
			}
			if name, ok := t["name"].(string); !ok || name == "" {
				t["name"] = defaultName
			}
			return t
		case string:
			return map[string]any{"plan": t, "name": defaultName}
		}
	}
	return map[string]any{"plan": trimmed, "name": defaultName}
}

// balance appends whatever closing punctuation the fragment is missing,
// tracked via a single pass that knows whether it is inside a string and
// whether the next character is escaped.
func balance(s string) string {
	var stack []byte
	inString := false
	escaped := false

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
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if !inString {
		s = strings.TrimRight(s, " \t\r\n")
		s = strings.TrimSuffix(s, ",")
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	out := b.String()
	if strings.TrimSpace(out) == "" {
		return "{}"
	}
	return out
}
