package canon

import "strings"

// Repairer coerces a possibly-truncated JSON argument fragment into a
// structured value. It is satisfied by internal/jsonrepair.Repair; the
// accumulator takes it as a parameter rather than importing jsonrepair
// directly to avoid a dependency cycle (jsonrepair has no reason to know
// about canon).
type Repairer func(fragment string, toolName string) map[string]any

// ToolCallDelta is one fragment of a tool call as observed on the wire,
// after the stream assembler has already resolved the provider's
// index->id mapping (see internal/streamassembler). Accumulator keys
// solely on ID; index bookkeeping is the assembler's concern.
type ToolCallDelta struct {
	ID                string
	Name              string
	ArgumentsFragment string
	Signature         map[string]any
}

// PulseDelta is what the stream assembler pushes into the accumulator for
// each parsed frame.
type PulseDelta struct {
	TextDelta    string
	ThoughtDelta string
	ToolCalls    []ToolCallDelta
}

type toolCallScratch struct {
	id        string
	name      string
	args      strings.Builder
	signature map[string]any
}

// Accumulator is the per-turn mutable scratch described in the
// concurrency model: owned by exactly one goroutine, mutated only via
// Push, consumed exactly once via Finalize.
type Accumulator struct {
	text    strings.Builder
	thought strings.Builder
	order   []string
	calls   map[string]*toolCallScratch
}

func NewAccumulator() *Accumulator {
	return &Accumulator{calls: make(map[string]*toolCallScratch)}
}

// Push merges one delta into the accumulator's buffers. Thought never
// merges into the text buffer even if a caller accidentally supplies both
// on the same delta.
func (a *Accumulator) Push(d PulseDelta) {
	a.text.WriteString(d.TextDelta)
	a.thought.WriteString(d.ThoughtDelta)
	for _, tc := range d.ToolCalls {
		sc, ok := a.calls[tc.ID]
		if !ok {
			sc = &toolCallScratch{id: tc.ID}
			a.calls[tc.ID] = sc
			a.order = append(a.order, tc.ID)
		}
		if tc.Name != "" {
			sc.name = tc.Name
		}
		sc.args.WriteString(tc.ArgumentsFragment)
		if len(tc.Signature) > 0 {
			if sc.signature == nil {
				sc.signature = map[string]any{}
			}
			for k, v := range tc.Signature {
				sc.signature[k] = v
			}
		}
	}
}

// HasToolCalls reports whether any tool-call delta has been observed yet;
// the stream assembler ends its buffering on this.
func (a *Accumulator) HasToolCalls() bool { return len(a.order) > 0 }

// Signatures returns the per-tool-call signature maps collected so far,
// for handoff to the signature store at stream end.
func (a *Accumulator) Signatures() map[string]map[string]any {
	out := map[string]map[string]any{}
	for id, sc := range a.calls {
		if len(sc.signature) > 0 {
			out[id] = sc.signature
		}
	}
	return out
}

// Finalize consumes the accumulator and returns one turn record with
// parts ordered text, thought, tool-calls, per §4.1. repair coerces each
// tool call's concatenated argument fragments into a structured value;
// it is never skipped, so no ToolCall ever carries a raw string.
func (a *Accumulator) Finalize(repair Repairer) Turn {
	var parts []Part
	if s := a.text.String(); s != "" {
		parts = append(parts, Text{Content: s})
	}
	if s := a.thought.String(); s != "" {
		parts = append(parts, Thought{Content: s})
	}
	for _, id := range a.order {
		sc := a.calls[id]
		args := repair(sc.args.String(), sc.name)
		tc := ToolCall{ID: sc.id, Name: sc.name, Arguments: args}
		if len(sc.signature) > 0 {
			tc.Signature = signatureFromMetadata(sc.signature)
		}
		parts = append(parts, tc)
	}
	return Turn{Role: RoleAssistant, Parts: parts}
}

// signatureFromMetadata extracts the primary reasoning token per §4.3's
// normalization rule: when only nested reasoning-details are present (no
// top-level token), the first item's "data" field becomes the primary
// token.
func signatureFromMetadata(meta map[string]any) *Signature {
	sig := &Signature{}
	if v, ok := meta["thought_signature"].(string); ok && v != "" {
		sig.ThoughtSignature = &v
	}
	if blob, ok := meta["signature"].(string); ok && blob != "" {
		sig.Blob = blob
	}
	if sig.Blob == "" {
		if details, ok := meta["reasoning_details"].([]any); ok && len(details) > 0 {
			if first, ok := details[0].(map[string]any); ok {
				if data, ok := first["data"].(string); ok {
					sig.Blob = data
				}
			}
		}
	}
	return sig
}
