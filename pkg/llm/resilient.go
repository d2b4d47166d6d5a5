package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ekaya-inc/ekaya-query/pkg/retry"
)

// ResilienceConfig bounds and paces calls to a provider.
type ResilienceConfig struct {
	// Timeout bounds each attempt, separately from any database or API timeout.
	Timeout        time.Duration
	Retry          retry.Policy
	RatePerSecond  float64 // 0 disables rate limiting
	RateBurst      int
	CircuitBreaker CircuitBreakerConfig
}

// ResilientClient wraps an LLMClient with a per-attempt timeout, transparent
// retries for transient failures, a token-bucket rate limiter and a circuit
// breaker. Callers only see the final outcome.
type ResilientClient struct {
	inner   LLMClient
	cfg     ResilienceConfig
	limiter *rate.Limiter
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewResilientClient wraps inner.
func NewResilientClient(inner LLMClient, cfg ResilienceConfig, logger *zap.Logger) *ResilientClient {
	c := &ResilientClient{
		inner:   inner,
		cfg:     cfg,
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
		logger:  logger.Named("llm"),
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return c
}

// Complete runs req through the limiter, breaker and retry policy.
func (c *ResilientClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	onRetry := func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("Retrying LLM request",
			zap.String("model", c.inner.GetModel()),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	result, err := retry.Do(ctx, c.cfg.Retry, onRetry, func(ctx context.Context) (*CompletionResult, error) {
		return c.attempt(ctx, req)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if !errors.Is(err, ctxErr) {
				err = errors.Join(err, ctxErr)
			}
			return nil, NewErrorWithContext(ErrorTypeTimeout, "LLM call abandoned", false, err, c.inner.GetModel(), "", 0)
		}
		return nil, ClassifyError(err)
	}
	return result, nil
}

func (c *ResilientClient) attempt(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, NewError(ErrorTypeRateLimit, "waiting for rate limiter", false, err)
		}
	}
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	attemptCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	result, err := c.inner.Complete(attemptCtx, req)
	if err != nil {
		llmErr := ClassifyError(err)
		// A per-attempt timeout is transient as long as the caller's context is still live.
		if ctx.Err() == nil && attemptCtx.Err() != nil {
			llmErr = NewErrorWithContext(ErrorTypeTimeout, fmt.Sprintf("no response within %s", c.cfg.Timeout), true, err, c.inner.GetModel(), "", 0)
		}
		if countsAgainstProvider(llmErr) {
			c.breaker.RecordFailure()
		}
		return nil, llmErr
	}

	c.breaker.RecordSuccess()
	return result, nil
}

// countsAgainstProvider reports whether a failure says something about the
// provider's health. Caller cancellation and bad credentials do not.
func countsAgainstProvider(err *Error) bool {
	switch err.Type {
	case ErrorTypeAuth, ErrorTypeModel, ErrorTypeCircuit:
		return false
	case ErrorTypeTimeout:
		return err.Retryable
	default:
		return true
	}
}

// CircuitState exposes the breaker state for health reporting.
func (c *ResilientClient) CircuitState() CircuitState {
	return c.breaker.State()
}

// GetModel returns the wrapped client's model.
func (c *ResilientClient) GetModel() string {
	return c.inner.GetModel()
}

// GetProvider returns the wrapped client's provider.
func (c *ResilientClient) GetProvider() string {
	return c.inner.GetProvider()
}

var _ LLMClient = (*ResilientClient)(nil)
