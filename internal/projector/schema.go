package projector

import "encoding/json"

// InputTool is the shape a caller's tool definition arrives in (from the
// request's "tools" array).
type InputTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Strict      *bool          `json:"strict,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

// ProjectTools copies the caller's tool definitions through, stripping
// the "strict" flag and, for a tool named "grep", removing the
// mutually-exclusive "-C" schema property, per §4.5 step 4.
func ProjectTools(raw json.RawMessage) []Tool {
	if len(raw) == 0 {
		return nil
	}
	var in []InputTool
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil
	}
	out := make([]Tool, 0, len(in))
	for _, t := range in {
		params := t.Function.Parameters
		if t.Function.Name == "grep" {
			params = stripGrepDashC(params)
		}
		out = append(out, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func stripGrepDashC(params map[string]any) map[string]any {
	if params == nil {
		return params
	}
	props, ok := params["properties"].(map[string]any)
	if !ok {
		return params
	}
	delete(props, "-C")
	return params
}

// ProjectToolChoice maps "any" to the required envelope and wraps named
// tool choices, per §4.5 step 4.
func ProjectToolChoice(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "any":
			return ToolChoiceRequired{Type: "required"}
		case "required", "auto", "none":
			return s
		default:
			return ToolChoiceRequired{Type: "required", Function: &ToolChoiceFn{Name: s}}
		}
	}

	var named struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &named); err == nil && named.Function.Name != "" {
		return ToolChoiceRequired{Type: "required", Function: &ToolChoiceFn{Name: named.Function.Name}}
	}

	var passthrough any
	json.Unmarshal(raw, &passthrough)
	return passthrough
}
