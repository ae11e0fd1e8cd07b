package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	apiRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bioactivity_api_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	apiRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bioactivity_api_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 3, 4, 5, 10},
	}, []string{"error_class"})

	apiRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bioactivity_api_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the backoff window for retries.
// Each wait is drawn uniformly from [MinBackoff, MaxBackoff).
type RetryConfig struct {
	// MinBackoff is the inclusive lower bound of a backoff wait.
	MinBackoff time.Duration

	// MaxBackoff is the exclusive upper bound of a backoff wait.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MinBackoff: 1 * time.Second,
		MaxBackoff: 5 * time.Second,
	}
}

// Jitter draws one backoff duration from [MinBackoff, MaxBackoff).
func (r RetryConfig) Jitter() time.Duration {
	if r.MaxBackoff <= r.MinBackoff {
		return r.MinBackoff
	}
	return r.MinBackoff + time.Duration(rand.Int63n(int64(r.MaxBackoff-r.MinBackoff)))
}

// retryWithBackoff runs fn at most maxRetries+1 times. It stops early on
// success, on a non-transient error, or when ctx is cancelled.
func retryWithBackoff(ctx context.Context, logger zerolog.Logger, maxRetries int, cfg RetryConfig, fn func(attempt int) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	attempts := maxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}

		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr = err

		errorClass := classOf(err)
		if !shouldRetry(errorClass) {
			return lastErr
		}

		if attempt >= attempts {
			break
		}

		apiRetriesTotal.WithLabelValues(string(errorClass)).Inc()

		wait := cfg.Jitter()
		apiRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(wait.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	errorClass := classOf(lastErr)
	apiRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	logger.Warn().
		Str("error_class", string(errorClass)).
		Int("attempts", attempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}
