package pathology

import (
	"testing"

	"github.com/digitallysavvy/go-ai/internal/canon"
)

func TestEmptyArgsFindings_FlagsSuspiciousTools(t *testing.T) {
	turn := canon.Turn{Parts: []canon.Part{
		canon.ToolCall{ID: "1", Name: "write_file", Arguments: map[string]any{}},
		canon.ToolCall{ID: "2", Name: "read_file", Arguments: map[string]any{}},
		canon.ToolCall{ID: "3", Name: "run_command", Arguments: map[string]any{"cmd": "ls"}},
	}}
	got := EmptyArgsFindings(turn)
	if len(got) != 1 || got[0] != "write_file" {
		t.Fatalf("expected only write_file flagged, got %v", got)
	}
}

func TestIsDiffWithoutTools_FencedDiff(t *testing.T) {
	if !IsDiffWithoutTools(true, false, "here's the fix:\n```diff\n-a\n+b\n```") {
		t.Fatalf("expected fenced diff block to trigger")
	}
}

func TestIsDiffWithoutTools_UnifiedMarkers(t *testing.T) {
	text := "diff --git a/x b/x\n--- a/x\n+++ b/x\n@@ -1 +1 @@\n-old\n+new"
	if !IsDiffWithoutTools(true, false, text) {
		t.Fatalf("expected unified diff markers to trigger")
	}
}

func TestIsDiffWithoutTools_NotTriggeredWithoutAdvertisedTools(t *testing.T) {
	if IsDiffWithoutTools(false, false, "```diff\n-a\n+b\n```") {
		t.Fatalf("expected no trigger when tools weren't advertised")
	}
}

func TestIsDiffWithoutTools_NotTriggeredWhenToolWasCalled(t *testing.T) {
	if IsDiffWithoutTools(true, true, "```diff\n-a\n+b\n```") {
		t.Fatalf("expected no trigger once a tool was actually called")
	}
}

func TestIsEmptyResponse(t *testing.T) {
	if !IsEmptyResponse(canon.Turn{}) {
		t.Fatalf("expected a turn with no parts to be empty")
	}
	nonEmpty := canon.Turn{Parts: []canon.Part{canon.Text{Content: "hi"}}}
	if IsEmptyResponse(nonEmpty) {
		t.Fatalf("expected a turn with content to not be empty")
	}
}

func TestClassifyProviderError_StatusCodes(t *testing.T) {
	for _, status := range []int{429, 500, 502, 503, 504, 520} {
		if !ClassifyProviderError(status, "") {
			t.Errorf("expected status %d to be retryable", status)
		}
	}
	if ClassifyProviderError(400, "") {
		t.Errorf("expected 400 to not be retryable")
	}
}

func TestClassifyProviderError_MessageSubstrings(t *testing.T) {
	if !ClassifyProviderError(200, "Model is OVERLOADED right now") {
		t.Errorf("expected case-insensitive 'overloaded' match to be retryable")
	}
	if !ClassifyProviderError(200, "please slow down, rate limit hit") {
		t.Errorf("expected 'rate limit' match to be retryable")
	}
	if ClassifyProviderError(200, "invalid api key") {
		t.Errorf("expected unrelated message to not be retryable")
	}
}

func TestEndOfStream_DiffWithoutToolsWins(t *testing.T) {
	turn := canon.Turn{Parts: []canon.Part{canon.Text{Content: "```diff\n-a\n+b\n```"}}}
	decision, _ := EndOfStream(turn, true, false, true, true)
	if decision != DecisionRetryDiff {
		t.Fatalf("expected DecisionRetryDiff, got %s", decision)
	}
}

func TestEndOfStream_EmptyResponseFallsBackWhenConfigured(t *testing.T) {
	decision, _ := EndOfStream(canon.Turn{}, false, false, true, true)
	if decision != DecisionFallback {
		t.Fatalf("expected DecisionFallback, got %s", decision)
	}
}

func TestEndOfStream_EmptyResponseErrorsWithoutFallback(t *testing.T) {
	decision, _ := EndOfStream(canon.Turn{}, false, false, false, true)
	if decision != DecisionUpstreamError {
		t.Fatalf("expected DecisionUpstreamError, got %s", decision)
	}
}

func TestEndOfStream_NoneWhenHealthy(t *testing.T) {
	turn := canon.Turn{Parts: []canon.Part{canon.Text{Content: "all good"}}}
	decision, warnings := EndOfStream(turn, true, true, true, true)
	if decision != DecisionNone {
		t.Fatalf("expected DecisionNone, got %s", decision)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
}

func TestMidStream_NonRetryablePassesThrough(t *testing.T) {
	if MidStream(400, "bad request", false, true, true) != DecisionPassThrough {
		t.Fatalf("expected pass-through for non-retryable status")
	}
}

func TestMidStream_RetryableButToolAlreadyCalledPassesThrough(t *testing.T) {
	if MidStream(500, "", true, true, true) != DecisionPassThrough {
		t.Fatalf("expected pass-through once a tool has already been called")
	}
}

func TestMidStream_GoogleFallbackConfigured(t *testing.T) {
	if MidStream(500, "", false, true, true) != DecisionFallback {
		t.Fatalf("expected fallback for Google flavor with fallback configured")
	}
}

func TestMidStream_RetryOnceOtherwise(t *testing.T) {
	if MidStream(500, "", false, true, false) != DecisionRetryOnce {
		t.Fatalf("expected retry-once for non-Google flavor")
	}
	if MidStream(500, "", false, false, true) != DecisionRetryOnce {
		t.Fatalf("expected retry-once when fallback isn't configured")
	}
}
