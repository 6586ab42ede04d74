package streamassembler

import (
	"fmt"

	"github.com/digitallysavvy/go-ai/internal/canon"
	"github.com/digitallysavvy/go-ai/internal/perror"
)

// MaxStreamLines is the hard cap from §4.6 step 7.
const MaxStreamLines = 100000

// Assembler is the per-request stream state: owned by exactly one
// goroutine (§9), never shared.
type Assembler struct {
	Acc *canon.Accumulator

	indexToID       map[int]string
	latched         bool
	lineCount       int
	advertisedTools bool

	buffering bool
	buffer    []WirePulse
}

// NewAssembler starts a fresh assembler. advertisedTools gates the
// buffer-until-first-tool-call policy (§4.6 step 4).
func NewAssembler(advertisedTools bool) *Assembler {
	return &Assembler{
		Acc:             canon.NewAccumulator(),
		indexToID:       map[int]string{},
		advertisedTools: advertisedTools,
		buffering:       advertisedTools,
	}
}

// Outcome is what the caller should do with one processed line.
type Outcome struct {
	Kind      LineKind
	Pulse     *WirePulse // sanitized, present for LinePulse
	ErrorEnv  *WireErrorEnvelope
	Buffered  bool // true if Pulse was appended to the internal buffer rather than returned for forwarding
	JustFlushed []WirePulse // pulses buffered before buffering ended on this call; nil if none were buffered
}

// HandleLine processes one data payload (already stripped of the "data:"
// prefix and known not to be the [DONE] terminator).
func (a *Assembler) HandleLine(raw string) (Outcome, error) {
	a.lineCount++
	if a.lineCount > MaxStreamLines {
		return Outcome{}, perror.Internal("stream exceeded maximum line count", nil)
	}

	kind, pulse, errEnv := ClassifyAndParse([]byte(raw))
	switch kind {
	case LineError:
		return Outcome{Kind: LineError, ErrorEnv: errEnv}, nil
	case LineUnknown:
		return Outcome{Kind: LineUnknown}, nil
	}

	a.mapToolCallIDs(pulse)
	a.accumulate(pulse)
	a.sanitize(pulse)

	if a.buffering {
		if a.Acc.HasToolCalls() {
			a.buffering = false
			flushed := a.buffer
			a.buffer = nil
			return Outcome{Kind: LinePulse, Pulse: pulse, JustFlushed: flushed}, nil
		}
		a.buffer = append(a.buffer, *pulse)
		return Outcome{Kind: LinePulse, Buffered: true}, nil
	}

	return Outcome{Kind: LinePulse, Pulse: pulse}, nil
}

// Buffer exposes the pending buffer for the Pathology Guard's
// stream-end decision (flush verbatim vs discard).
func (a *Assembler) Buffer() []WirePulse { return a.buffer }

func (a *Assembler) DiscardBuffer() { a.buffer = nil }

// mapToolCallIDs implements §4.6 step 2: maintain an index->id map,
// synthesizing tool_index_<n> when neither a mapped id nor a fresh id is
// present — the fragmentation defense for upstreams that omit id on
// continuation frames.
func (a *Assembler) mapToolCallIDs(pulse *WirePulse) {
	for ci := range pulse.Choices {
		tcs := pulse.Choices[ci].Delta.ToolCalls
		for ti := range tcs {
			tc := &tcs[ti]
			if tc.ID != "" {
				a.indexToID[tc.Index] = tc.ID
				continue
			}
			if mapped, ok := a.indexToID[tc.Index]; ok {
				tc.ID = mapped
				continue
			}
			synth := fmt.Sprintf("tool_index_%d", tc.Index)
			a.indexToID[tc.Index] = synth
			tc.ID = synth
		}
	}
}

// accumulate feeds text, thought (from "reasoning" or "thought" keys),
// and tool-call argument deltas into the turn accumulator (§4.6 step 5),
// and collects each tool-call delta's sidecar metadata into that call's
// signature map (§4.6 step 6). Sidecar metadata on the choice delta itself
// (WireDelta.Extra) is not collected.
func (a *Assembler) accumulate(pulse *WirePulse) {
	for _, choice := range pulse.Choices {
		d := canon.PulseDelta{}
		if choice.Delta.Content != nil {
			d.TextDelta = *choice.Delta.Content
		}
		if choice.Delta.Reasoning != nil {
			d.ThoughtDelta += *choice.Delta.Reasoning
		}
		if choice.Delta.Thought != nil {
			d.ThoughtDelta += *choice.Delta.Thought
		}
		for _, tc := range choice.Delta.ToolCalls {
			d.ToolCalls = append(d.ToolCalls, canon.ToolCallDelta{
				ID:                tc.ID,
				Name:              tc.Function.Name,
				ArgumentsFragment: tc.Function.Arguments,
				Signature:         tc.Extra,
			})
		}
		a.Acc.Push(d)
	}
}

// sanitize implements §4.6 step 3: once any choice in any pulse emits a
// tool-call delta, the tool-call latch engages; every subsequent pulse
// (including the one that engaged it) has text suppressed and
// finish_reason=stop rewritten to tool_calls. Idempotent: sanitizing an
// already-sanitized pulse a second time is a no-op.
func (a *Assembler) sanitize(pulse *WirePulse) {
	engagedThisPulse := false
	for _, choice := range pulse.Choices {
		if len(choice.Delta.ToolCalls) > 0 {
			engagedThisPulse = true
		}
	}
	if engagedThisPulse {
		a.latched = true
	}
	if !a.latched {
		return
	}
	for ci := range pulse.Choices {
		pulse.Choices[ci].Delta.Content = nil
		if pulse.Choices[ci].FinishReason != nil && *pulse.Choices[ci].FinishReason == "stop" {
			toolCalls := "tool_calls"
			pulse.Choices[ci].FinishReason = &toolCalls
		}
	}
}

// Finalize freezes the accumulator into a turn record, repairing every
// tool call's accumulated argument fragments via repair.
func (a *Assembler) Finalize(repair canon.Repairer) canon.Turn {
	return a.Acc.Finalize(repair)
}

// Latched reports whether the tool-call latch has engaged.
func (a *Assembler) Latched() bool { return a.latched }
