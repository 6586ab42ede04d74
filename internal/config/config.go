// Package config holds the proxy's runtime configuration, populated from
// environment variables with sane defaults, in the teacher's plain-struct
// style (no config-framework dependency — see DESIGN.md for why that's a
// deliberate stdlib-only choice).
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	RequestTimeout time.Duration
	ConnectTimeout time.Duration

	MaxRetries int

	CircuitBreakerThreshold       int
	CircuitBreakerRecoveryTimeout time.Duration

	DisableRescue      bool
	GeminiFallback     bool
	EnableDebugCapture bool

	SQLitePath         string
	AggregatorBaseURL  string

	SignatureRetention time.Duration

	// HistoryPruneStrategy selects among C9's four selectable strategies
	// (windowing, flattening, summarization, selective_deletion) for
	// depth-triggered pruning.
	HistoryPruneStrategy string

	// AggregatorRateLimit caps outbound calls to the aggregator endpoint,
	// applied ahead of the circuit breaker; AggregatorRateBurst is the
	// token bucket's burst size.
	AggregatorRateLimit float64
	AggregatorRateBurst int
}

func Load() Config {
	return Config{
		RequestTimeout:                envDuration("PROXY_REQUEST_TIMEOUT", 60*time.Second),
		ConnectTimeout:                envDuration("PROXY_CONNECT_TIMEOUT", 10*time.Second),
		MaxRetries:                    envInt("PROXY_MAX_RETRIES", 3),
		CircuitBreakerThreshold:       envInt("PROXY_CIRCUIT_BREAKER_THRESHOLD", 5),
		CircuitBreakerRecoveryTimeout: envDuration("PROXY_CIRCUIT_BREAKER_RECOVERY", 30*time.Second),
		DisableRescue:                 envBool("PROXY_DISABLE_RESCUE", false),
		GeminiFallback:                envBool("PROXY_GEMINI_FALLBACK", true),
		EnableDebugCapture:            envBool("PROXY_ENABLE_DEBUG_CAPTURE", false),
		SQLitePath:                    envString("PROXY_SQLITE_PATH", "proxy.db"),
		AggregatorBaseURL:             envString("PROXY_AGGREGATOR_BASE_URL", "http://localhost:8081"),
		SignatureRetention:            envDuration("PROXY_SIGNATURE_RETENTION", 7*24*time.Hour),
		HistoryPruneStrategy:          envString("PROXY_HISTORY_PRUNE_STRATEGY", "flattening"),
		AggregatorRateLimit:           envFloat("PROXY_AGGREGATOR_RATE_LIMIT", 20),
		AggregatorRateBurst:           envInt("PROXY_AGGREGATOR_RATE_BURST", 10),
	}
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
