package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// ResilienceConfig configures the resilience patterns wrapped around
// provider calls.
type ResilienceConfig struct {
	RateLimitRPM int

	RetryAttempts    int
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration

	CircuitBreakerEnabled     bool
	CircuitBreakerThreshold   int
	CircuitBreakerTimeout     time.Duration
	CircuitBreakerMaxRequests int
}

// DefaultResilienceConfig returns sensible defaults for provider calls.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		RateLimitRPM:              60,
		RetryAttempts:             3,
		RetryInitialWait:          200 * time.Millisecond,
		RetryMaxWait:              10 * time.Second,
		CircuitBreakerEnabled:     true,
		CircuitBreakerThreshold:   5,
		CircuitBreakerTimeout:     30 * time.Second,
		CircuitBreakerMaxRequests: 3,
	}
}

// resilienceFor derives the resilience configuration from a provider
// config.
func resilienceFor(cfg Config) *Resilience {
	rc := DefaultResilienceConfig()
	rc.RateLimitRPM = cfg.RateLimitRPM
	rc.RetryAttempts = cfg.RetryAttempts
	if cfg.Timeout > 0 {
		rc.RetryMaxWait = cfg.Timeout
	}
	return NewResilience(rc)
}

// Resilience wraps Fortify resilience patterns for provider calls.
type Resilience struct {
	rateLimiter    ratelimit.RateLimiter
	retrier        retry.Retry[string]
	circuitBreaker circuitbreaker.CircuitBreaker[string]
	config         ResilienceConfig
}

// NewResilience creates a resilience wrapper with the given
// configuration.
func NewResilience(cfg ResilienceConfig) *Resilience {
	r := &Resilience{config: cfg}

	if cfg.RateLimitRPM > 0 {
		r.rateLimiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RateLimitRPM,
			Burst:    cfg.RateLimitRPM * 2,
			Interval: time.Minute,
		})
	}

	if cfg.RetryAttempts > 0 {
		r.retrier = retry.New[string](retry.Config{
			MaxAttempts:   cfg.RetryAttempts,
			InitialDelay:  cfg.RetryInitialWait,
			MaxDelay:      cfg.RetryMaxWait,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			Jitter:        true,
			IsRetryable:   isRetryableError,
		})
	}

	if cfg.CircuitBreakerEnabled {
		threshold := cfg.CircuitBreakerThreshold
		r.circuitBreaker = circuitbreaker.New[string](circuitbreaker.Config{
			MaxRequests: uint32(cfg.CircuitBreakerMaxRequests), // #nosec G115 -- bounded config value
			Interval:    cfg.CircuitBreakerTimeout,
			Timeout:     cfg.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounded config value
			},
		})
	}

	return r
}

// Execute runs the operation with all configured resilience patterns.
// Order: Rate Limit → Circuit Breaker → Retry → Operation
func (r *Resilience) Execute(ctx context.Context, operation func(context.Context) (string, error)) (string, error) {
	if r == nil {
		return operation(ctx)
	}

	if r.rateLimiter != nil {
		if err := r.rateLimiter.Wait(ctx, "llm-predicate"); err != nil {
			return "", err
		}
	}

	if r.circuitBreaker != nil {
		return r.circuitBreaker.Execute(ctx, func(ctx context.Context) (string, error) {
			return r.executeWithRetry(ctx, operation)
		})
	}

	return r.executeWithRetry(ctx, operation)
}

func (r *Resilience) executeWithRetry(ctx context.Context, operation func(context.Context) (string, error)) (string, error) {
	if r.retrier != nil {
		return r.retrier.Do(ctx, operation)
	}
	return operation(ctx)
}

// isRetryableError determines if an error is worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// Rate limit and server errors are retryable
	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return true
	}
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return true
	}

	// Network errors are retryable
	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary") {
		return true
	}

	// Client errors (4xx except rate limit) are not retryable
	if strings.Contains(errStr, "400") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "404") {
		return false
	}

	return true
}
