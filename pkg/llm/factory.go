package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/config"
	"github.com/ekaya-inc/ekaya-query/pkg/retry"
)

// NewClient builds the configured provider client wrapped in a ResilientClient.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (*ResilientClient, error) {
	clientCfg := ClientConfig{Endpoint: cfg.BaseURL, Model: cfg.Model, APIKey: cfg.APIKey}

	var (
		inner LLMClient
		err   error
	)
	switch cfg.Provider {
	case ProviderOpenAI, "":
		inner, err = NewOpenAIClient(clientCfg, logger)
	case ProviderAnthropic:
		inner, err = NewAnthropicClient(clientCfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	return NewResilientClient(inner, ResilienceFromConfig(cfg), logger), nil
}

// ResilienceFromConfig maps the LLM settings onto a ResilienceConfig.
func ResilienceFromConfig(cfg config.LLMConfig) ResilienceConfig {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.MaxAttempts
	if cfg.RetryDelay > 0 {
		policy.Delay = cfg.RetryDelay
	}
	if policy.MaxDelay < policy.Delay {
		policy.MaxDelay = policy.Delay
	}

	return ResilienceConfig{
		Timeout:       cfg.Timeout,
		Retry:         policy,
		RatePerSecond: cfg.RateLimitPerSecond,
		RateBurst:     cfg.RateLimitBurst,
		CircuitBreaker: CircuitBreakerConfig{
			Threshold:  cfg.CircuitBreakerThreshold,
			ResetAfter: cfg.CircuitBreakerReset,
		},
	}
}

// RequestFromConfig returns a CompletionRequest carrying the configured
// sampling parameters.
func RequestFromConfig(cfg config.LLMConfig, system, prompt string) *CompletionRequest {
	return &CompletionRequest{
		SystemMessage: system,
		Prompt:        prompt,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
		TopK:          cfg.TopK,
	}
}
