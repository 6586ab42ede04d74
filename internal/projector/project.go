package projector

import (
	"context"
	"encoding/json"

	"github.com/digitallysavvy/go-ai/internal/canon"
	"github.com/digitallysavvy/go-ai/internal/flavor"
	"github.com/digitallysavvy/go-ai/internal/jsonrepair"
	"github.com/digitallysavvy/go-ai/internal/pruner"
	"github.com/digitallysavvy/go-ai/internal/rescue"
)

const (
	reasoningModelMaxTokenFloor = 64000
	standardMaxTokenFloor       = 4096
)

// SignatureLoader is the subset of sigstore.Store the projector needs.
type SignatureLoader interface {
	Load(ctx context.Context, toolCallID string) (canon.Signature, bool, error)
}

// Pricing resolves a model's context window, used to derive the token
// budget for pruning. Out of scope per §1 (pricing fetch is an external
// collaborator); the projector only consumes a snapshot through this
// narrow interface.
type Pricing interface {
	ContextLength(model string) int
}

// Input bundles everything the projector needs beyond the canonical
// context itself.
type Input struct {
	Context    canon.Context
	ModelID    string
	Flavor     flavor.Capability
	Signatures SignatureLoader
	Pricing    Pricing
	IsReasoningModel bool
	DisableRescue    bool

	// PruneStrategy selects among C9's four strategies when depth-based
	// pruning triggers; an empty value falls back to Flattening.
	PruneStrategy pruner.Strategy

	// Raw tool definitions and tool_choice from the original request, and
	// the ingress overflow bag's extra keys to pass through verbatim.
	ToolsRaw      json.RawMessage
	ToolChoiceRaw json.RawMessage
	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
	Extra         map[string]json.RawMessage
}

// Project runs the full C5 pipeline and returns the aggregator-dialect
// request. Apart from the id of a tool call rescued from XML-invoke text,
// which rescue.Detect generates at random on every call, the output is a
// function of its inputs: the same Input plus the same signature/pricing
// snapshots yields byte-identical output.
func Project(ctx context.Context, in Input) (Request, error) {
	budget := tokenBudget(in.Pricing, in.ModelID)
	history := pruner.Prune(in.Context.History, in.Flavor, budget, in.PruneStrategy)

	messages := translateTurns(ctx, history, in)

	req := Request{
		Model:       in.ModelID,
		Messages:    messages,
		Tools:       ProjectTools(in.ToolsRaw),
		ToolChoice:  ProjectToolChoice(in.ToolChoiceRaw),
		Temperature: in.Temperature,
		TopP:        in.TopP,
		Stream:      true,
		Stop:        in.Flavor.StopSequences,
		MaxTokens:   maxTokenFloor(in.MaxTokens, in.IsReasoningModel),
		Extra:       stripReservedKeys(in.Extra),
	}

	if in.Flavor.SystemLocationPolicy == flavor.SystemAsTopLevelField {
		for i, m := range req.Messages {
			if m.Role == "system" {
				if m.Content != nil {
					req.System = *m.Content
				}
				req.Messages = append(req.Messages[:i], req.Messages[i+1:]...)
				break
			}
		}
	}

	return req, nil
}

var reservedKeys = map[string]bool{
	"model": true, "messages": true, "system": true, "tools": true,
	"tool_choice": true, "temperature": true, "top_p": true,
	"max_tokens": true, "stream": true, "stop": true,
}

func stripReservedKeys(extra map[string]json.RawMessage) map[string]json.RawMessage {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(extra))
	for k, v := range extra {
		if !reservedKeys[k] {
			out[k] = v
		}
	}
	return out
}

// tokenBudget derives the model's token budget as its context length
// minus the larger of a 20% reservation and a fixed 4096-token floor.
func tokenBudget(p Pricing, model string) int {
	if p == nil {
		return 100000
	}
	ctxLen := p.ContextLength(model)
	if ctxLen <= 0 {
		return 100000
	}
	reserve := ctxLen / 5
	if reserve < 4096 {
		reserve = 4096
	}
	budget := ctxLen - reserve
	if budget < 0 {
		budget = 0
	}
	return budget
}

func maxTokenFloor(requested *int, isReasoningModel bool) int {
	floor := standardMaxTokenFloor
	if isReasoningModel {
		floor = reasoningModelMaxTokenFloor
	}
	if requested == nil || *requested <= 0 {
		return floor
	}
	if *requested < floor {
		return floor
	}
	return *requested
}

// translateTurns implements §4.5 step 3, leaves-first and preserving
// order.
func translateTurns(ctx context.Context, history []canon.Turn, in Input) []Message {
	out := make([]Message, 0, len(history))

	for i, t := range history {
		switch t.Role {
		case canon.RoleSystem, canon.RoleDeveloper:
			out = append(out, translateSystem(t, in.Flavor))
		case canon.RoleUser:
			out = append(out, translateUser(t, i, len(history), in.Flavor))
		case canon.RoleAssistant:
			out = append(out, translateAssistant(ctx, t, history, in))
		case canon.RoleTool:
			out = append(out, translateTool(t, history))
		}
	}
	return out
}

func translateSystem(t canon.Turn, cap flavor.Capability) Message {
	text := canon.TextOf(t)
	m := Message{Role: "system", Content: &text}
	if cap.Name == flavor.Anthropic {
		m.CacheControl = &CacheControl{Type: "ephemeral"}
	}
	return m
}

// translateUser attaches a rolling cache breakpoint at the 3rd- and
// 5th-from-last positions of the whole history for Anthropic, only when
// the history holds at least 5 turns (§9 resolution 2 — shorter
// histories get no breakpoint, guarded explicitly rather than via
// unsigned-subtraction wraparound). Positions are absolute indices into
// the full turn list, not into a user-only subsequence: the breakpoints
// land wherever those positions happen to fall, which is why the guard
// and the targets are both computed from historyLen.
func translateUser(t canon.Turn, idx int, historyLen int, cap flavor.Capability) Message {
	text := canon.TextOf(t)
	m := Message{Role: "user", Content: &text}

	if cap.CacheBreakpointPolicy == flavor.CacheBreakpointRolling && historyLen >= 5 {
		thirdFromLast := historyLen - 3
		fifthFromLast := historyLen - 5
		if idx == thirdFromLast || idx == fifthFromLast {
			m.CacheControl = &CacheControl{Type: "ephemeral"}
		}
	}
	return m
}

func translateAssistant(ctx context.Context, t canon.Turn, history []canon.Turn, in Input) Message {
	text := canon.TextOf(t)
	var reasoning string
	for _, p := range t.Parts {
		if th, ok := p.(canon.Thought); ok {
			reasoning += th.Content
		}
	}

	toolCalls := canon.ToolCallsOf(t)

	if !in.DisableRescue && len(toolCalls) == 0 {
		if r, ok := rescue.Detect(text); ok {
			toolCalls = append(toolCalls, canon.ToolCall{ID: r.CallID, Name: r.Name, Arguments: jsonrepair.Repair(r.ArgsJSON, r.Name)})
		}
	}

	m := Message{Role: "assistant", Reasoning: reasoning}

	for _, tc := range toolCalls {
		args, _ := json.Marshal(tc.Arguments)
		call := ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: Function{
				Name:      tc.Name,
				Arguments: string(args),
			},
		}
		if in.Flavor.RequiresThoughtSignatures && in.Signatures != nil {
			if sig, ok, _ := in.Signatures.Load(ctx, tc.ID); ok {
				if sig.ThoughtSignature != nil {
					call.ThoughtSignature = *sig.ThoughtSignature
				}
				if sig.Blob != "" {
					call.ExtraContent = map[string]any{
						"reasoning_details": []map[string]any{{"data": sig.Blob}},
					}
				}
			}
		}
		m.ToolCalls = append(m.ToolCalls, call)
	}

	switch {
	case len(m.ToolCalls) == 0:
		m.Content = &text
	case in.Flavor.AssistantEmptyContentPolicy == flavor.EmptyContentEmptyString:
		m.Content = &text
	}

	return m
}

// translateTool resolves the tool name by scanning the history in order
// for the originating ToolCall if the turn doesn't already carry it (§4.5 step
// 3, "Tool" case).
func translateTool(t canon.Turn, history []canon.Turn) Message {
	var part canon.ToolResult
	for _, p := range t.Parts {
		if tr, ok := p.(canon.ToolResult); ok {
			part = tr
			break
		}
	}
	content := part.Content
	m := Message{Role: "tool", Content: &content, ToolCallID: t.ToolCallID}
	if part.Name != "" {
		m.Name = part.Name
		return m
	}
	for _, other := range history {
		for _, tc := range canon.ToolCallsOf(other) {
			if tc.ID == t.ToolCallID {
				m.Name = tc.Name
				return m
			}
		}
	}
	return m
}
