package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a scripted client for tests. Responses are returned in
// order and every call is captured.
type MockClient struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Calls     [][]Message
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteMessages(ctx, []Message{{Role: RoleUser, Content: prompt}})
}

// CompleteWithSystem implements Client.
func (m *MockClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	return m.CompleteMessages(ctx, []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	})
}

// CompleteMessages implements Client.
func (m *MockClient) CompleteMessages(_ context.Context, messages []Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, messages)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", fmt.Errorf("llm: mock has no responses left")
	}
	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return resp, nil
}

// CallCount returns the number of completions requested so far.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent message list, or nil.
func (m *MockClient) LastCall() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	return m.Calls[len(m.Calls)-1]
}
