// Package aggregator is the outbound HTTP client that sends a projected
// request to the aggregator endpoint and hands back the raw response
// body for the stream assembler to consume.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/digitallysavvy/go-ai/internal/perror"
	"github.com/digitallysavvy/go-ai/internal/projector"
	"github.com/digitallysavvy/go-ai/internal/resilience"
)

var tracer = otel.Tracer("proxy/aggregator")

// Client sends projected requests to the aggregator's chat-completions
// endpoint, rate-limited ahead of the circuit breaker and retry policy
// from internal/resilience.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *resilience.CircuitBreaker
	retryCfg   resilience.RetryConfig
	limiter    *rate.Limiter
}

// New builds a Client. limiter caps outbound calls to the aggregator
// endpoint ahead of the circuit breaker check; a nil limiter disables
// rate limiting entirely.
func New(baseURL string, connectTimeout, requestTimeout time.Duration, breaker *resilience.CircuitBreaker, retryCfg resilience.RetryConfig, limiter *rate.Limiter) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout, Transport: transport},
		baseURL:    baseURL,
		breaker:    breaker,
		retryCfg:   retryCfg,
		limiter:    limiter,
	}
}

// Stream issues the projected request and returns the raw response body
// for the caller to frame into stream lines. The caller must Close it.
func (c *Client) Stream(ctx context.Context, req projector.Request) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "aggregator.stream")
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, perror.Network("waiting for aggregator rate limit token", err)
		}
	}

	if err := c.breaker.Check(); err != nil {
		return nil, perror.Upstream(http.StatusServiceUnavailable, "", "circuit breaker open")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, perror.Serialization("marshaling projected request", err)
	}

	var resp *http.Response
	retryErr := resilience.Do(ctx, c.retryCfg, func(ctx context.Context, attempt int) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return perror.Internal("building outbound request", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		r, err := c.httpClient.Do(httpReq)
		if err != nil {
			return perror.Network("outbound call failed", err)
		}
		if r.StatusCode >= 400 {
			respBody, _ := io.ReadAll(io.LimitReader(r.Body, 64*1024))
			r.Body.Close()
			return perror.Upstream(r.StatusCode, string(respBody), "aggregator returned an error status")
		}
		resp = r
		return nil
	})

	if retryErr != nil {
		c.breaker.RecordFailure()
		return nil, retryErr
	}
	c.breaker.RecordSuccess()
	return resp.Body, nil
}
