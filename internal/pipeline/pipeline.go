// Package pipeline orchestrates one inbound request end to end: ingress
// lift, projection, the resilient outbound call, stream assembly,
// pathology inspection, and the at-most-one retry §4.7 allows.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"go.opentelemetry.io/otel"

	"github.com/digitallysavvy/go-ai/internal/aggregator"
	"github.com/digitallysavvy/go-ai/internal/canon"
	"github.com/digitallysavvy/go-ai/internal/flavor"
	"github.com/digitallysavvy/go-ai/internal/ingress"
	"github.com/digitallysavvy/go-ai/internal/jsonrepair"
	"github.com/digitallysavvy/go-ai/internal/logging"
	"github.com/digitallysavvy/go-ai/internal/metrics"
	"github.com/digitallysavvy/go-ai/internal/pathology"
	"github.com/digitallysavvy/go-ai/internal/perror"
	"github.com/digitallysavvy/go-ai/internal/projector"
	"github.com/digitallysavvy/go-ai/internal/pruner"
	"github.com/digitallysavvy/go-ai/internal/sigstore"
	"github.com/digitallysavvy/go-ai/internal/streamassembler"
)

var tracer = otel.Tracer("proxy/pipeline")

var log = logging.For("pipeline")

// Pricing resolves a model's context window. It is the same narrow
// interface projector.Pricing expects; defined again here so callers of
// Pipeline don't need to import projector just to satisfy it.
type Pricing = projector.Pricing

// Sink receives every sanitized wire pulse the assembler releases, in
// order, for the HTTP handler to forward to the client. Receiving
// []byte rather than a WirePulse keeps this package decoupled from the
// exact re-encoding the handler performs.
type Sink func(line []byte) error

// Config is the per-pipeline-instance wiring, built once at startup.
type Config struct {
	Aggregator       *aggregator.Client
	Signatures       *sigstore.Store
	Pricing          Pricing
	DisableRescue    bool
	GeminiFallback   bool
	IsReasoningModel func(model string) bool

	// PruneStrategy selects which of C9's four strategies applies when
	// depth-based pruning triggers; empty falls back to Flattening.
	PruneStrategy pruner.Strategy
}

// Run executes C4 through C7 for one request and writes every forwarded
// pulse to sink. It returns once the stream is finalized (terminator
// seen, pathology-driven retry exhausted, or ctx is canceled).
func Run(ctx context.Context, cfg Config, raw ingress.RawRequest, opts ingress.Options, sink Sink) error {
	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()

	op, err := ingress.Lift(raw, opts)
	if err != nil {
		return err
	}

	logger := logging.WithConversation(log, op.Context.ConversationID, op.RequestID)
	logger.Info().Str("model", op.ModelID).Msg("lifted request")

	advertisedTools := len(raw.Tools) > 0 && string(raw.Tools) != "null"

	result, err := attempt(ctx, cfg, op, raw, advertisedTools, sink, false)
	if err != nil {
		return err
	}

	switch result.decision {
	case pathology.DecisionRetryDiff:
		metrics.PathologyTriggers.WithLabelValues("retry_diff").Inc()
		history := append([]canon.Turn(nil), op.Context.History...)
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Role == canon.RoleUser {
				preamble := canon.Text{Content: pathology.EnforcementPreamble}
				history[i].Parts = append([]canon.Part{preamble}, history[i].Parts...)
				break
			}
		}
		op.Context.History = history
		_, err := attempt(ctx, cfg, op, raw, advertisedTools, sink, true)
		return err
	case pathology.DecisionRetryOnce:
		_, err := attempt(ctx, cfg, op, raw, advertisedTools, sink, true)
		return err
	case pathology.DecisionFallback:
		metrics.PathologyTriggers.WithLabelValues("fallback").Inc()
		raw.Model = googleFallbackModel
		op.ModelID = googleFallbackModel
		op.Flavor = flavor.For(googleFallbackModel)
		_, err := attempt(ctx, cfg, op, raw, advertisedTools, sink, true)
		return err
	case pathology.DecisionUpstreamError:
		metrics.PathologyTriggers.WithLabelValues("upstream_error").Inc()
		return perror.Upstream(0, "", "upstream returned an empty response with no fallback configured")
	}

	return nil
}

// googleFallbackModel is the model the empty-response fallback retries
// against when the original request targeted a Google-flavored model.
const googleFallbackModel = "gemini-1.5-flash"

type attemptResult struct {
	decision pathology.Decision
}

// attempt runs one full outbound round trip: project, call, assemble,
// persist signatures, and run the end-of-stream pathology check. When
// isRetry is true, a mid-stream pathology decision of RetryOnce or
// Fallback is collapsed to pass-through, since §4.7 allows at most one
// enforced retry per request.
func attempt(ctx context.Context, cfg Config, op ingress.Operation, raw ingress.RawRequest, advertisedTools bool, sink Sink, isRetry bool) (attemptResult, error) {
	isReasoning := false
	if cfg.IsReasoningModel != nil {
		isReasoning = cfg.IsReasoningModel(op.ModelID)
	}

	req, err := projector.Project(ctx, projector.Input{
		Context:          op.Context,
		ModelID:          op.ModelID,
		Flavor:           op.Flavor,
		Signatures:       cfg.Signatures,
		Pricing:          cfg.Pricing,
		IsReasoningModel: isReasoning,
		DisableRescue:    cfg.DisableRescue,
		PruneStrategy:    cfg.PruneStrategy,
		ToolsRaw:         raw.Tools,
		ToolChoiceRaw:    raw.ToolChoice,
		Temperature:      raw.Temperature,
		TopP:             raw.TopP,
		MaxTokens:        raw.MaxTokens,
		Extra:            raw.Overflow,
	})
	if err != nil {
		return attemptResult{}, err
	}

	body, err := cfg.Aggregator.Stream(ctx, req)
	if err != nil {
		return attemptResult{}, err
	}
	defer body.Close()

	asm := streamassembler.NewAssembler(advertisedTools)
	reader := streamassembler.NewLineReader(body)

	calledAnyTool := false
	for {
		payload, done, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return attemptResult{}, err
		}
		if done {
			break
		}

		outcome, err := asm.HandleLine(payload)
		if err != nil {
			return attemptResult{}, err
		}

		switch outcome.Kind {
		case streamassembler.LineError:
			mid := pathology.MidStream(outcome.ErrorEnv.Error.Status, outcome.ErrorEnv.Error.Message, calledAnyTool, cfg.GeminiFallback, op.Flavor.Name == flavor.Google)
			if isRetry {
				mid = pathology.DecisionPassThrough
			}
			if mid != pathology.DecisionPassThrough {
				metrics.RetryAttempts.Inc()
				return attemptResult{decision: mid}, nil
			}
			if err := sink([]byte(payload)); err != nil {
				return attemptResult{}, err
			}
		case streamassembler.LineUnknown:
			if err := sink([]byte(payload)); err != nil {
				return attemptResult{}, err
			}
		case streamassembler.LinePulse:
			if asm.Acc.HasToolCalls() {
				calledAnyTool = true
			}
			if outcome.Buffered {
				continue
			}
			for _, p := range outcome.JustFlushed {
				if err := emit(sink, p); err != nil {
					return attemptResult{}, err
				}
			}
			if outcome.Pulse != nil {
				if err := emit(sink, *outcome.Pulse); err != nil {
					return attemptResult{}, err
				}
			}
		}
	}

	turn := asm.Finalize(jsonrepair.Repair)

	if err := persistSignatures(ctx, cfg.Signatures, op.Context.ConversationID, turn); err != nil {
		return attemptResult{}, err
	}

	decision, warnings := pathology.EndOfStream(turn, advertisedTools, calledAnyTool, cfg.GeminiFallback, op.Flavor.Name == flavor.Google)
	for _, w := range warnings {
		log.Warn().Str("tool", w).Msg("empty arguments on a tool that requires parameters; likely upstream fragmentation")
		metrics.PathologyTriggers.WithLabelValues("empty_args:" + w).Inc()
	}
	if isRetry {
		decision = pathology.DecisionNone
	}

	if decision == pathology.DecisionNone {
		for _, p := range asm.Buffer() {
			if err := emit(sink, p); err != nil {
				return attemptResult{}, err
			}
		}
	}

	return attemptResult{decision: decision}, nil
}

// persistSignatures writes every signature the accumulator collected
// during this turn before the caller considers the stream finalized
// (the [DONE] terminator is only forwarded once this returns), so a
// client that reconnects mid-retry never observes a tool call with no
// recoverable signature.
func persistSignatures(ctx context.Context, store *sigstore.Store, conversationID string, turn canon.Turn) error {
	if store == nil {
		return nil
	}
	for _, tc := range canon.ToolCallsOf(turn) {
		if tc.Signature == nil {
			continue
		}
		sig := *tc.Signature
		sig.ToolCallID = tc.ID
		sig.ConversationID = conversationID
		if err := store.Save(ctx, tc.ID, conversationID, sig); err != nil {
			metrics.SignatureStoreOps.WithLabelValues("save", "error").Inc()
			return err
		}
		metrics.SignatureStoreOps.WithLabelValues("save", "ok").Inc()
	}
	return nil
}

func emit(sink Sink, pulse streamassembler.WirePulse) error {
	line, err := json.Marshal(pulse)
	if err != nil {
		return err
	}
	return sink(line)
}
