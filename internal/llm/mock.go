package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a simple scriptable client for tests.
type MockClient struct {
	mu    sync.Mutex
	calls int

	// Respond, when set, computes the response for each call. The attempt
	// counter is 1-based and global across tasks.
	Respond func(call int, systemPrompt, userPrompt, model string) (string, error)
}

// NewMockClient creates a mock that echoes the user prompt.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Complete(_ context.Context, systemPrompt, userPrompt, model string) (string, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	respond := m.Respond
	m.mu.Unlock()

	if respond != nil {
		return respond(call, systemPrompt, userPrompt, model)
	}
	return fmt.Sprintf("Mock response for: %s", userPrompt), nil
}

// Calls returns how many completions were requested.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
