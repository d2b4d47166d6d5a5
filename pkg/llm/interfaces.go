// Package llm provides text-completion clients for the query translator.
// Any provider that maps a prompt to a single text blob can satisfy LLMClient.
package llm

import (
	"context"
)

// CompletionRequest is a single prompt-in, text-out call.
type CompletionRequest struct {
	SystemMessage string
	Prompt        string
	MaxTokens     int
	Temperature   float32
	TopP          float32
	// TopK is ignored by providers that do not support it.
	TopK int
}

// CompletionResult is the provider's answer reduced to text plus usage.
type CompletionResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMClient defines the interface for LLM operations.
// Use this interface for dependency injection to enable mocking in tests.
type LLMClient interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetProvider returns the provider name, e.g. "openai".
	GetProvider() string
}
