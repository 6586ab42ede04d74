package ingress

import (
	"encoding/json"

	"github.com/digitallysavvy/go-ai/internal/canon"
	"github.com/digitallysavvy/go-ai/internal/flavor"
	"github.com/digitallysavvy/go-ai/internal/jsonrepair"
	"github.com/digitallysavvy/go-ai/internal/perror"
	"github.com/digitallysavvy/go-ai/internal/rescue"
	"github.com/digitallysavvy/go-ai/internal/tags"
)

// Hard caps from §4.4.
const (
	MaxHistoryLength      = 1000
	MaxMessageParts        = 100
	MaxToolCallsPerRequest = 4096
)

// Operation is C4's output: a canonical context plus the routing
// information the rest of the pipeline needs.
type Operation struct {
	Context   canon.Context
	ModelID   string
	RequestID string
	Flavor    flavor.Capability
}

// Options configures lift-time behavior.
type Options struct {
	DisableRescue bool
	UserHint      string
	RequestID     string
}

// Lift validates and normalizes raw into a canonical Operation.
func Lift(raw RawRequest, opts Options) (Operation, error) {
	if len(raw.Messages) == 0 {
		return Operation{}, perror.InvalidIngress("empty message history", nil)
	}
	if len(raw.Messages) > MaxHistoryLength {
		return Operation{}, perror.InvalidIngress("history exceeds maximum length", nil)
	}

	turns := make([]canon.Turn, 0, len(raw.Messages))
	totalToolCalls := 0

	for _, m := range raw.Messages {
		role := inferRole(m)

		if role == canon.RoleTool {
			id := m.ToolCallID
			if id == "" {
				id = m.CallID
			}
			if id == "" {
				return Operation{}, perror.InvalidIngress("tool turn missing correlation id", nil)
			}
		}

		parts, err := liftParts(m, role, opts)
		if err != nil {
			return Operation{}, err
		}
		if len(parts) > MaxMessageParts {
			return Operation{}, perror.InvalidIngress("message exceeds maximum part count", nil)
		}
		for _, p := range parts {
			if _, ok := p.(canon.ToolCall); ok {
				totalToolCalls++
			}
		}
		if totalToolCalls > MaxToolCallsPerRequest {
			return Operation{}, perror.InvalidIngress("tool call count exceeds maximum", nil)
		}

		if role == canon.RoleUser && (m.Content == nil || string(m.Content) == "null") {
			return Operation{}, perror.InvalidIngress("explicit null content under user role", nil)
		}
		if role == canon.RoleAssistant && len(parts) == 0 {
			return Operation{}, perror.InvalidIngress("assistant turn is entirely empty after lifting", nil)
		}

		turnID := m.ToolCallID
		if turnID == "" {
			turnID = m.CallID
		}
		turns = append(turns, canon.Turn{Role: role, Parts: parts, ToolCallID: turnID})
	}

	turns = coalesce(turns)

	if idx := ValidateRoleSequence(turns); idx >= 0 {
		return Operation{}, perror.Protocol("invalid role transition in history", nil)
	}

	firstUtterance := firstNonScaffoldingUserUtterance(turns)
	convID := canon.AnchorHash(raw.Model, opts.UserHint, firstUtterance)

	ctx := canon.Context{ConversationID: convID, Model: raw.Model, History: turns}
	cap := flavor.For(raw.Model)

	return Operation{Context: ctx, ModelID: raw.Model, RequestID: opts.RequestID, Flavor: cap}, nil
}

// liftParts translates one raw message's content/tool-calls/legacy
// function-call fields into canonical parts, per §4.4 step 4.
func liftParts(m RawMessage, role canon.Role, opts Options) ([]canon.Part, error) {
	var parts []canon.Part

	if role == canon.RoleTool {
		content := rawContentAsString(m.Content)
		if content == "" && m.Output != nil {
			content = rawContentAsString(m.Output)
		}
		parts = append(parts, canon.ToolResult{
			ToolCallID: firstNonEmpty(m.ToolCallID, m.CallID),
			Content:    content,
			Name:       m.Name,
		})
		return parts, nil
	}

	if m.FunctionCall != nil {
		args := jsonrepair.Repair(m.FunctionCall.Arguments, m.FunctionCall.Name)
		args = SanitizeToolArgs(m.FunctionCall.Name, args)
		id := firstNonEmpty(m.CallID, m.ToolCallID)
		if id == "" {
			id = m.FunctionCall.Name
		}
		parts = append(parts, canon.ToolCall{ID: id, Name: m.FunctionCall.Name, Arguments: args})
		return parts, nil
	}

	textParts, images := liftContent(m.Content)
	for _, t := range textParts {
		if !opts.DisableRescue {
			if r, ok := rescue.Detect(t); ok {
				args := jsonrepair.Repair(r.ArgsJSON, r.Name)
				args = SanitizeToolArgs(r.Name, args)
				parts = append(parts, canon.ToolCall{ID: r.CallID, Name: r.Name, Arguments: args})
				continue
			}
		}
		if t != "" {
			parts = append(parts, canon.Text{Content: t})
		}
	}
	for _, img := range images {
		parts = append(parts, img)
	}

	for _, tc := range m.ToolCalls {
		args := jsonrepair.Repair(tc.Function.Arguments, tc.Function.Name)
		args = SanitizeToolArgs(tc.Function.Name, args)
		parts = append(parts, canon.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	return parts, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// liftContent handles the three content shapes a raw message may carry:
// a bare string, a structured parts array, or null.
func liftContent(raw json.RawMessage) ([]string, []canon.Image) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}, nil
	}

	var arr []RawContentPart
	if err := json.Unmarshal(raw, &arr); err == nil {
		var texts []string
		var images []canon.Image
		for _, p := range arr {
			switch p.Type {
			case "text":
				texts = append(texts, p.Text)
			case "image_url":
				if p.ImageURL != nil {
					images = append(images, canon.NewImageURL(p.ImageURL.URL))
				}
			}
		}
		return texts, images
	}

	return nil, nil
}

func rawContentAsString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// coalesce merges adjacent same-role turns for roles other than User and
// Tool, per §4.4 step 5.
func coalesce(turns []canon.Turn) []canon.Turn {
	if len(turns) == 0 {
		return turns
	}
	out := make([]canon.Turn, 0, len(turns))
	out = append(out, turns[0])
	for _, t := range turns[1:] {
		last := &out[len(out)-1]
		if last.Role == t.Role && last.Role != canon.RoleUser && last.Role != canon.RoleTool {
			last.Parts = append(last.Parts, t.Parts...)
			continue
		}
		out = append(out, t)
	}
	return out
}

// firstNonScaffoldingUserUtterance extracts the text used for identity
// derivation: the first User turn's text with scaffolding tags stripped.
func firstNonScaffoldingUserUtterance(turns []canon.Turn) string {
	for _, t := range turns {
		if t.Role != canon.RoleUser {
			continue
		}
		text := canon.TextOf(t)
		stripped := tags.StripScaffolding(text)
		if stripped != "" {
			return stripped
		}
	}
	return ""
}
