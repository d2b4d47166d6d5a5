package retry

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// Policy defines bounded retry behavior for transport calls.
type Policy struct {
	// MaxAttempts counts the first call; 1 disables retries.
	MaxAttempts  int
	Delay        time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0
}

// DefaultPolicy returns 3 attempts starting at 500ms, doubling, capped at 5s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		Delay:        500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = p.Delay
	}
	return p
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// OnRetry is called before sleeping ahead of the next attempt.
type OnRetry func(attempt int, err error, wait time.Duration)

// Do calls fn until it succeeds, returns a non-retryable error, or the policy
// runs out of attempts. Only the final outcome is returned. Waiting honors ctx.
func Do[T any](ctx context.Context, policy Policy, onRetry OnRetry, fn func(ctx context.Context) (T, error)) (T, error) {
	policy = policy.normalized()

	var zero T
	delay := policy.Delay

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= policy.MaxAttempts || !IsRetryable(err) {
			return zero, err
		}

		wait := applyJitter(delay, policy.JitterFactor)
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, errors.Join(err, ctx.Err())
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
}

// RetryableError is implemented by errors that declare their own retryability.
type RetryableError interface {
	error
	IsRetryable() bool
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"timed out",
	"temporary failure",
	"network is unreachable",
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"too many requests",
	"service unavailable",
	"overloaded",
}

// IsRetryable reports whether err is transient. An error that declares its
// own retryability decides; otherwise context cancellation and deadline
// expiry are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
