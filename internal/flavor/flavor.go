// Package flavor represents the per-provider capability record described
// in SPEC_FULL.md §9: a small struct with four concrete instances.
// Callers dispatch by holding or indexing a Capability value; none of them
// branch on a flavor name string.
package flavor

import "strings"

// Name identifies which concrete Capability a model id routed to. It
// exists only for logging/metrics labels and for the ingress model-name
// heuristic that picks a Capability; the rest of the pipeline only ever
// touches the Capability fields.
type Name string

const (
	Google    Name = "google"
	Anthropic Name = "anthropic"
	OpenAI    Name = "openai"
	Standard  Name = "standard"
)

// CacheBreakpointPolicy controls whether/where ephemeral cache hints are
// attached during projection.
type CacheBreakpointPolicy int

const (
	CacheBreakpointNone CacheBreakpointPolicy = iota
	// CacheBreakpointRolling attaches a hint to the system message and to
	// the user turns at the 3rd- and 5th-from-last positions (Anthropic).
	CacheBreakpointRolling
)

// AssistantEmptyContentPolicy controls how the content of an assistant
// message with tool calls is represented.
type AssistantEmptyContentPolicy int

const (
	// EmptyContentNull sets null content whenever tool calls are present.
	EmptyContentNull AssistantEmptyContentPolicy = iota
	// EmptyContentEmptyString keeps the text, substituting "" instead of
	// null when there is none (Google).
	EmptyContentEmptyString
)

// SystemLocationPolicy controls where the system turn is placed in the
// projected dialect.
type SystemLocationPolicy int

const (
	SystemAsMessage SystemLocationPolicy = iota
	SystemAsTopLevelField
)

// Capability is the complete per-flavor policy bundle.
type Capability struct {
	Name                        Name
	RequiresThoughtSignatures   bool
	StopSequences               []string
	CacheBreakpointPolicy       CacheBreakpointPolicy
	AssistantEmptyContentPolicy AssistantEmptyContentPolicy
	SystemLocationPolicy        SystemLocationPolicy
	// DepthPruningApplies gates C9's depth-based strategy selection,
	// which §4.9 restricts to the Google flavor.
	DepthPruningApplies bool
	// SupportsFallback gates the Pathology Guard's empty-response/
	// retryable-error fallback-to-secondary-model path (Google only,
	// and only when gemini_fallback is configured).
	SupportsFallback bool
}

var google = Capability{
	Name:                        Google,
	RequiresThoughtSignatures:   true,
	StopSequences:               []string{"</xml_tool_call>"},
	CacheBreakpointPolicy:       CacheBreakpointNone,
	AssistantEmptyContentPolicy: EmptyContentEmptyString,
	SystemLocationPolicy:        SystemAsTopLevelField,
	DepthPruningApplies:         true,
	SupportsFallback:            true,
}

var anthropic = Capability{
	Name:                        Anthropic,
	RequiresThoughtSignatures:   false,
	StopSequences:               []string{"</xml_tool_call>"},
	CacheBreakpointPolicy:       CacheBreakpointRolling,
	AssistantEmptyContentPolicy: EmptyContentNull,
	SystemLocationPolicy:        SystemAsMessage,
}

var openai = Capability{
	Name:                        OpenAI,
	RequiresThoughtSignatures:   false,
	StopSequences:               []string{"</xml_tool_call>"},
	CacheBreakpointPolicy:       CacheBreakpointNone,
	AssistantEmptyContentPolicy: EmptyContentNull,
	SystemLocationPolicy:        SystemAsMessage,
}

var standard = Capability{
	Name:                        Standard,
	RequiresThoughtSignatures:   false,
	StopSequences:               []string{"</xml_tool_call>"},
	CacheBreakpointPolicy:       CacheBreakpointNone,
	AssistantEmptyContentPolicy: EmptyContentNull,
	SystemLocationPolicy:        SystemAsMessage,
}

// For dispatches by model-id heuristic, grounded on the original's
// substring routing (engine.rs): "gemini" -> Google, "claude" ->
// Anthropic, "gpt"/"o1"/"o3"/"o4" -> OpenAI, else Standard.
func For(modelID string) Capability {
	switch {
	case containsAny(modelID, "gemini"):
		return google
	case containsAny(modelID, "claude"):
		return anthropic
	case containsAny(modelID, "gpt", "o1", "o3", "o4"):
		return openai
	default:
		return standard
	}
}

func containsAny(s string, subs ...string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
