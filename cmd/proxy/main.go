package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/digitallysavvy/go-ai/internal/aggregator"
	"github.com/digitallysavvy/go-ai/internal/config"
	"github.com/digitallysavvy/go-ai/internal/ingress"
	"github.com/digitallysavvy/go-ai/internal/logging"
	"github.com/digitallysavvy/go-ai/internal/metrics"
	"github.com/digitallysavvy/go-ai/internal/pipeline"
	"github.com/digitallysavvy/go-ai/internal/pruner"
	"github.com/digitallysavvy/go-ai/internal/resilience"
	"github.com/digitallysavvy/go-ai/internal/sigstore"
)

var log_ = logging.For("main")

// staticPricing is a fixed context-length table. The real pricing
// collaborator is an external service out of scope per §1; this stands
// in as the snapshot the projector's token-budget heuristic consumes.
type staticPricing struct{}

func (staticPricing) ContextLength(model string) int {
	switch {
	case strings.Contains(model, "gemini-1.5"):
		return 1_000_000
	case strings.Contains(model, "claude"):
		return 200_000
	case strings.Contains(model, "gpt-4"):
		return 128_000
	default:
		return 128_000
	}
}

func isReasoningModel(model string) bool {
	return strings.Contains(model, "o1") || strings.Contains(model, "o3") || strings.Contains(model, "o4")
}

func main() {
	cfg := config.Load()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	ctx := context.Background()
	store, err := sigstore.Open(ctx, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("opening signature store: %v", err)
	}
	defer store.Close()

	breaker := resilience.NewCircuitBreaker(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerRecoveryTimeout)
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.MaxRetries
	retryCfg.ShouldRetry = func(err error) bool {
		if e, ok := asRetryable(err); ok {
			return e
		}
		return false
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.AggregatorRateLimit), cfg.AggregatorRateBurst)
	agg := aggregator.New(cfg.AggregatorBaseURL, cfg.ConnectTimeout, cfg.RequestTimeout, breaker, retryCfg, limiter)

	pcfg := pipeline.Config{
		Aggregator:       agg,
		Signatures:       store,
		Pricing:          staticPricing{},
		DisableRescue:    cfg.DisableRescue,
		GeminiFallback:   cfg.GeminiFallback,
		IsReasoningModel: isReasoningModel,
		PruneStrategy:    pruner.Strategy(cfg.HistoryPruneStrategy),
	}

	go sweepSignatures(ctx, store, cfg.SignatureRetention)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"POST"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Post("/v1/chat/completions", handleChat(pcfg))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	fmt.Printf("proxy listening on :%s\n", port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}

func asRetryable(err error) (bool, bool) {
	type retryabler interface{ Retryable() bool }
	if r, ok := err.(retryabler); ok {
		return r.Retryable(), true
	}
	return false, false
}

func sweepSignatures(ctx context.Context, store *sigstore.Store, retention time.Duration) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		sigs, states, err := store.Sweep(ctx, retention)
		if err != nil {
			log_.Warn().Err(err).Msg("signature sweep failed")
		} else {
			log_.Info().Int64("signatures", sigs).Int64("states", states).Msg("signature sweep complete")
		}
		<-ticker.C
	}
}

func handleChat(pcfg pipeline.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var raw ingress.RawRequest
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		flusher, _ := w.(http.Flusher)

		opts := ingress.Options{
			DisableRescue: pcfg.DisableRescue,
			RequestID:     middleware.GetReqID(r.Context()),
		}

		err := pipeline.Run(r.Context(), pcfg, raw, opts, func(line []byte) error {
			if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
			return nil
		})
		if err != nil {
			fmt.Fprintf(w, "data: {\"error\":%q}\n\n", err.Error())
			if flusher != nil {
				flusher.Flush()
			}
			return
		}

		fmt.Fprint(w, "data: [DONE]\n\n")
		if flusher != nil {
			flusher.Flush()
		}
	}
}
