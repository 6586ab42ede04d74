package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/digitallysavvy/go-ai/internal/aggregator"
	"github.com/digitallysavvy/go-ai/internal/ingress"
	"github.com/digitallysavvy/go-ai/internal/resilience"
)

type fixedPricing struct{}

func (fixedPricing) ContextLength(model string) int { return 128_000 }

func newTestConfig(t *testing.T, sseBody string) Config {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sseBody))
	}))
	t.Cleanup(srv.Close)

	breaker := resilience.NewCircuitBreaker(5, time.Second)
	agg := aggregator.New(srv.URL, time.Second, 5*time.Second, breaker, resilience.DefaultRetryConfig(), nil)

	return Config{
		Aggregator: agg,
		Pricing:    fixedPricing{},
	}
}

func TestRun_ForwardsTextPulses(t *testing.T) {
	sse := "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}\n\n" +
		"data: [DONE]\n\n"
	cfg := newTestConfig(t, sse)

	var raw ingress.RawRequest
	if err := json.Unmarshal([]byte(`{"model":"gpt-4","messages":[{"role":"user","content":"hello"}]}`), &raw); err != nil {
		t.Fatalf("fixture decode failed: %v", err)
	}

	var lines [][]byte
	err := Run(context.Background(), cfg, raw, ingress.Options{}, func(line []byte) error {
		lines = append(lines, append([]byte(nil), line...))
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 forwarded pulse, got %d", len(lines))
	}
	if !strings.Contains(string(lines[0]), "hi") {
		t.Fatalf("expected the forwarded pulse to carry the text delta, got %s", lines[0])
	}
}

func TestRun_EmptyResponseWithoutFallbackErrors(t *testing.T) {
	sse := "data: [DONE]\n\n"
	cfg := newTestConfig(t, sse)
	cfg.GeminiFallback = false

	var raw ingress.RawRequest
	if err := json.Unmarshal([]byte(`{"model":"gpt-4","messages":[{"role":"user","content":"hello"}]}`), &raw); err != nil {
		t.Fatalf("fixture decode failed: %v", err)
	}

	err := Run(context.Background(), cfg, raw, ingress.Options{}, func(line []byte) error { return nil })
	if err == nil {
		t.Fatalf("expected an error for an empty response with no fallback configured")
	}
}
