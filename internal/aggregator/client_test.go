package aggregator

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/digitallysavvy/go-ai/internal/projector"
	"github.com/digitallysavvy/go-ai/internal/resilience"
)

func TestClient_Stream_SuccessReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("data: {\"a\":1}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	breaker := resilience.NewCircuitBreaker(5, time.Second)
	c := New(srv.URL, time.Second, 5*time.Second, breaker, resilience.DefaultRetryConfig(), nil)

	body, err := c.Stream(context.Background(), projector.Request{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer body.Close()

	out, _ := io.ReadAll(body)
	if len(out) == 0 {
		t.Fatalf("expected a non-empty response body")
	}
}

func TestClient_Stream_RetriesOnServerError(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	breaker := resilience.NewCircuitBreaker(10, time.Second)
	cfg := resilience.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	c := New(srv.URL, time.Second, 5*time.Second, breaker, cfg, nil)

	body, err := c.Stream(context.Background(), projector.Request{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	body.Close()

	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestClient_Stream_CircuitBreakerOpenShortCircuits(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	breaker := resilience.NewCircuitBreaker(1, time.Hour)
	breaker.RecordFailure() // trips the breaker

	c := New(srv.URL, time.Second, 5*time.Second, breaker, resilience.DefaultRetryConfig(), nil)
	_, err := c.Stream(context.Background(), projector.Request{Model: "gpt-4"})
	if err == nil {
		t.Fatalf("expected an error when the circuit breaker is open")
	}
	if called {
		t.Fatalf("expected the request to never reach the server while the breaker is open")
	}
}

func TestClient_Stream_RateLimiterAppliedAheadOfBreaker(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	breaker := resilience.NewCircuitBreaker(5, time.Second)
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	c := New(srv.URL, time.Second, 5*time.Second, breaker, resilience.DefaultRetryConfig(), limiter)

	body, err := c.Stream(context.Background(), projector.Request{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("unexpected error on first call: %v", err)
	}
	body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Stream(ctx, projector.Request{Model: "gpt-4"}); err == nil {
		t.Fatalf("expected the second call to block on the limiter and time out")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected the rate-limited second call to never reach the server, got %d calls", calls)
	}
}
