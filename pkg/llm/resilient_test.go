package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/retry"
)

func fastResilience(attempts int) ResilienceConfig {
	return ResilienceConfig{
		Timeout: time.Second,
		Retry:   retry.Policy{MaxAttempts: attempts, Delay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	}
}

func TestResilientClient_RetriesTransientFailures(t *testing.T) {
	calls := 0
	mock := &MockLLMClient{CompleteFunc: func(context.Context, *CompletionRequest) (*CompletionResult, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("503 service unavailable")
		}
		return &CompletionResult{Content: "SELECT 1"}, nil
	}}

	client := NewResilientClient(mock, fastResilience(3), zap.NewNop())
	result, err := client.Complete(context.Background(), &CompletionRequest{Prompt: "q"})

	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", result.Content)
	assert.Equal(t, 3, mock.Calls())
}

func TestResilientClient_ReturnsFinalFailureOnly(t *testing.T) {
	mock := &MockLLMClient{CompleteFunc: func(context.Context, *CompletionRequest) (*CompletionResult, error) {
		return nil, errors.New("502 bad gateway")
	}}

	client := NewResilientClient(mock, fastResilience(2), zap.NewNop())
	_, err := client.Complete(context.Background(), &CompletionRequest{Prompt: "q"})

	require.Error(t, err)
	assert.Equal(t, 2, mock.Calls())
	assert.Equal(t, ErrorTypeEndpoint, GetErrorType(err))
}

func TestResilientClient_DoesNotRetryAuthFailures(t *testing.T) {
	mock := &MockLLMClient{CompleteFunc: func(context.Context, *CompletionRequest) (*CompletionResult, error) {
		return nil, errors.New("401 unauthorized")
	}}

	client := NewResilientClient(mock, fastResilience(5), zap.NewNop())
	_, err := client.Complete(context.Background(), &CompletionRequest{Prompt: "q"})

	assert.Equal(t, ErrorTypeAuth, GetErrorType(err))
	assert.Equal(t, 1, mock.Calls())
}

func TestResilientClient_AttemptTimeoutIsRetried(t *testing.T) {
	mock := &MockLLMClient{CompleteFunc: func(ctx context.Context, _ *CompletionRequest) (*CompletionResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	cfg := fastResilience(2)
	cfg.Timeout = 10 * time.Millisecond
	client := NewResilientClient(mock, cfg, zap.NewNop())
	_, err := client.Complete(context.Background(), &CompletionRequest{Prompt: "q"})

	require.Error(t, err)
	assert.Equal(t, 2, mock.Calls())
	assert.Equal(t, ErrorTypeTimeout, GetErrorType(err))
}

func TestResilientClient_CallerDeadlineSurfaces(t *testing.T) {
	mock := &MockLLMClient{CompleteFunc: func(ctx context.Context, _ *CompletionRequest) (*CompletionResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	client := NewResilientClient(mock, fastResilience(3), zap.NewNop())
	_, err := client.Complete(ctx, &CompletionRequest{Prompt: "q"})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, mock.Calls())
}

func TestResilientClient_CircuitOpensAndShortCircuits(t *testing.T) {
	mock := &MockLLMClient{CompleteFunc: func(context.Context, *CompletionRequest) (*CompletionResult, error) {
		return nil, errors.New("500 internal server error")
	}}

	cfg := fastResilience(1)
	cfg.CircuitBreaker = CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour}
	client := NewResilientClient(mock, cfg, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := client.Complete(context.Background(), &CompletionRequest{Prompt: "q"})
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, client.CircuitState())

	_, err := client.Complete(context.Background(), &CompletionRequest{Prompt: "q"})
	assert.Equal(t, ErrorTypeCircuit, GetErrorType(err))
	assert.Equal(t, 2, mock.Calls())
}

func TestResilientClient_DelegatesIdentity(t *testing.T) {
	client := NewResilientClient(&MockLLMClient{Model: "m1"}, fastResilience(1), zap.NewNop())
	assert.Equal(t, "m1", client.GetModel())
	assert.Equal(t, "mock", client.GetProvider())
}
