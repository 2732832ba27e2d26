package shared

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

// RetryConfig controls [Retry].
type RetryConfig struct {
	MaxAttempts       int           // Total attempts including the first
	BackoffBase       time.Duration // Delay before the second attempt
	BackoffMultiplier float64       // Growth factor per attempt
	MaxBackoff        time.Duration // Upper bound on a single delay
	Retryable         func(error) bool
}

// DefaultRetryConfig returns the catalog defaults: 4 attempts, 500ms doubling to at most 8s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       4,
		BackoffBase:       500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        8 * time.Second,
		Retryable:         IsRetryable,
	}
}

// HTTPStatusError is a non-2xx response from an upstream API.
type HTTPStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPStatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, body)
}

// IsRetryable reports whether err is worth another attempt.
//
// 429 and 5xx responses retry; every other status is final. Errors that carry no
// status (network failures, timeouts on the transport) retry unless the context is done.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return true
}

// Retry runs fn until it succeeds, returns a non-retryable error, or attempts run out.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Retryable == nil {
		cfg.Retryable = IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !cfg.Retryable(lastErr) || attempt == cfg.MaxAttempts {
			break
		}

		wait := cfg.backoff(attempt)
		var statusErr *HTTPStatusError
		if errors.As(lastErr, &statusErr) && statusErr.RetryAfter > wait {
			wait = statusErr.RetryAfter
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ctx.Err(), lastErr)
		case <-time.After(wait):
		}
	}
	return lastErr
}

// backoff computes exponential backoff with +/-25% jitter.
func (c RetryConfig) backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.BackoffMultiplier
	}
	d := time.Duration(float64(c.BackoffBase) * multiplier)
	if c.MaxBackoff > 0 && d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	jitter := float64(d) * 0.25 * (rand.Float64()*2 - 1)
	return d + time.Duration(jitter)
}
