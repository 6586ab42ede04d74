package ingress

import "github.com/digitallysavvy/go-ai/internal/canon"

// inferRole assigns a role from the raw message's explicit role or its
// type hint, per §4.4 step 3: function_call -> Assistant,
// function_call_output -> Tool, else User.
func inferRole(m RawMessage) canon.Role {
	switch m.Type {
	case "function_call":
		return canon.RoleAssistant
	case "function_call_output":
		return canon.RoleTool
	}
	switch m.Role {
	case "system":
		return canon.RoleSystem
	case "developer":
		return canon.RoleDeveloper
	case "assistant", "model":
		return canon.RoleAssistant
	case "tool", "function":
		return canon.RoleTool
	default:
		return canon.RoleUser
	}
}

// ValidateRoleSequence walks the turns and reports the index of the first
// violation, or -1 if the sequence is valid, per SPEC_FULL.md §2.1: a
// Tool turn must correlate to a ToolCall in the nearest preceding
// Assistant turn, and a run of consecutive Tool turns must all correlate
// to that same Assistant turn's tool calls (the same correlation chain)
// — two consecutive Tool turns answering different Assistant turns are
// rejected even though both are individually well-correlated.
func ValidateRoleSequence(turns []canon.Turn) int {
	var batch map[string]bool

	for i, t := range turns {
		if t.Role == canon.RoleAssistant {
			batch = map[string]bool{}
			for _, tc := range canon.ToolCallsOf(t) {
				batch[tc.ID] = true
			}
			continue
		}
		if t.Role != canon.RoleTool {
			continue
		}
		if batch == nil || !batch[t.ToolCallID] {
			return i
		}
	}
	return -1
}
