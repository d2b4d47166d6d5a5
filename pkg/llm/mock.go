package llm

import (
	"context"
	"sync"
)

// MockLLMClient is a configurable mock for testing LLM consumers.
type MockLLMClient struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, returns an empty result and nil error.
	CompleteFunc func(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	mu       sync.Mutex
	calls    int
	requests []*CompletionRequest
}

// NewMockLLMClient returns a mock that always answers with content.
func NewMockLLMClient(content string) *MockLLMClient {
	return &MockLLMClient{
		Model: "mock-model",
		CompleteFunc: func(context.Context, *CompletionRequest) (*CompletionResult, error) {
			return &CompletionResult{Content: content}, nil
		},
	}
}

// Complete implements LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResult{}, nil
}

// Calls returns how many times Complete was invoked.
func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request, or nil.
func (m *MockLLMClient) LastRequest() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// GetModel implements LLMClient.
func (m *MockLLMClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// GetProvider implements LLMClient.
func (m *MockLLMClient) GetProvider() string {
	return "mock"
}

var _ LLMClient = (*MockLLMClient)(nil)
