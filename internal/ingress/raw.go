// Package ingress implements C4: validating and normalizing a
// heterogeneous request payload into the canonical conversation model.
package ingress

import "encoding/json"

// RawRequest is the heterogeneous inbound shape described in §6: a model
// string, an ordered message list, and a grab-bag of optional fields the
// proxy passes through verbatim to projection.
type RawRequest struct {
	Model      string          `json:"model"`
	Messages   []RawMessage    `json:"messages"`
	System     json.RawMessage `json:"system,omitempty"`
	Tools      json.RawMessage `json:"tools,omitempty"`
	ToolChoice json.RawMessage `json:"tool_choice,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	TopP        *float64       `json:"top_p,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// Overflow is every top-level key not named above, preserved
	// verbatim for pass-through per §4.5's output contract.
	Overflow map[string]json.RawMessage `json:"-"`
}

var knownTopLevelKeys = map[string]bool{
	"model": true, "messages": true, "system": true, "tools": true,
	"tool_choice": true, "temperature": true, "top_p": true,
	"max_tokens": true, "stream": true, "metadata": true,
}

// UnmarshalJSON captures known fields via the default decoder and
// separately captures every unrecognized key into Overflow.
func (r *RawRequest) UnmarshalJSON(data []byte) error {
	type alias RawRequest
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = RawRequest(a)

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	r.Overflow = map[string]json.RawMessage{}
	for k, v := range generic {
		if !knownTopLevelKeys[k] {
			r.Overflow[k] = v
		}
	}
	return nil
}

// RawMessage is one entry in the heterogeneous message list: it may carry
// a standard role+content shape, legacy function_call/function_call_output
// fields, or a native tool_calls list.
type RawMessage struct {
	Type       string          `json:"type,omitempty"`
	Role       string          `json:"role,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []RawToolCall   `json:"tool_calls,omitempty"`

	// Legacy function-call shape.
	FunctionCall *RawFunctionCall `json:"function_call,omitempty"`
	CallID       string           `json:"call_id,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
}

type RawToolCall struct {
	ID       string      `json:"id"`
	Type     string      `json:"type,omitempty"`
	Function RawFunction `json:"function"`
}

type RawFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type RawFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// RawContentPart is one element of a structured content array (as
// opposed to a bare content string).
type RawContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *RawImageURL    `json:"image_url,omitempty"`
	Source   json.RawMessage `json:"source,omitempty"`
}

type RawImageURL struct {
	URL string `json:"url"`
}
