package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultAttemptTimeout bounds a single attempt when the policy sets none.
const DefaultAttemptTimeout = 30 * time.Second

// DefaultMaxAttempts is the default total number of attempts, first one included.
const DefaultMaxAttempts = 3

// ErrExhausted is wrapped by Do when every attempt failed with a retryable error.
var ErrExhausted = errors.New("retries exhausted")

// Policy defines retry behavior for calls that can fail at the transport layer.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration

	// Notify is called before each wait with the failed attempt's error.
	Notify func(err error, next time.Duration)
}

// DefaultPolicy returns 3 attempts, 1s base delay doubling up to 10s, 30s per attempt.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      1 * time.Second,
		MaxDelay:       10 * time.Second,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// NewBackOff returns the policy's delay schedule: BaseDelay doubling up to
// MaxDelay without jitter. An unset MaxDelay caps at the default 10s.
func (p *Policy) NewBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.MaxDelay,
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = DefaultPolicy().MaxDelay
	}
	b.Reset()
	return b
}

// WithTimeout wraps a context with a per-attempt timeout.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy
// runs out of attempts. Attempts are numbered from 1. Each attempt gets a fresh
// context bounded by AttemptTimeout; nothing carries over between attempts.
// The delay is applied only between attempts, never after the last one.
func Do(ctx context.Context, policy *Policy, fn func(ctx context.Context, attempt int) error, shouldRetry func(error) bool) error {
	if policy == nil {
		policy = DefaultPolicy()
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var (
		attempt   int
		lastErr   error
		permanent bool
	)
	opts := []backoff.RetryOption{
		backoff.WithBackOff(policy.NewBackOff()),
		backoff.WithMaxTries(uint(maxAttempts)),
	}
	if policy.Notify != nil {
		opts = append(opts, backoff.WithNotify(policy.Notify))
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		attemptCtx, cancel := WithTimeout(ctx, policy.AttemptTimeout)
		defer cancel()

		lastErr = fn(attemptCtx, attempt)
		if lastErr != nil && !shouldRetry(lastErr) {
			permanent = true
			return struct{}{}, backoff.Permanent(lastErr)
		}
		return struct{}{}, lastErr
	}, opts...)

	switch {
	case err == nil:
		return nil
	case permanent:
		return lastErr
	case ctx.Err() != nil:
		return fmt.Errorf("retry cancelled: %w", err)
	case lastErr == nil:
		return err
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, lastErr)
}

// Backoff returns the delay to wait after the given attempt (1-based):
// base * 2^(attempt-1), capped at max. The sequence is non-decreasing.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	b := (&Policy{BaseDelay: base, MaxDelay: max}).NewBackOff()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// IsTransientError checks if an error is likely transient and retryable.
// This checks for common cloud API throttling and network errors.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"throttl",
		"rate exceed",
		"too many requests",
		"request limit",
		"service unavailable",
		"internal server error",
		"connection reset",
		"connection refused",
		"timeout",
		"tls handshake",
		"temporary failure",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
