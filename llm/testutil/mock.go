// Package testutil provides test utilities for the llm package.
// It includes a scripted generator for testing without a live endpoint.
package testutil

import (
	"context"
	"sync"
)

// MockGenerator is a thread-safe scripted llm.Generator for testing.
// It returns configured replies in sequence, repeating the last one
// when the script runs out.
//
// Usage:
//
//	// Single reply
//	gen := &MockGenerator{Replies: []string{`{"entity_type": "company"}`}}
//
//	// Reply sequence (normalize then classify)
//	gen := &MockGenerator{Replies: []string{"Apple Inc.", `{...}`}}
//
//	// Failing generator
//	gen := &MockGenerator{Err: errors.New("connection refused")}
type MockGenerator struct {
	mu      sync.Mutex
	Replies []string // Replies to return in sequence
	Err     error    // Error to return (takes precedence over Replies)

	prompts []string
	index   int
}

// Name implements llm.Generator.
func (m *MockGenerator) Name() string {
	return "mock"
}

// Generate implements llm.Generator. It records the prompt and returns
// the next scripted reply.
func (m *MockGenerator) Generate(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)

	if m.Err != nil {
		return "", m.Err
	}

	if len(m.Replies) == 0 {
		return "", nil
	}

	reply := m.Replies[m.index]
	if m.index < len(m.Replies)-1 {
		m.index++
	}
	return reply, nil
}

// Prompts returns the prompts seen so far, in order.
func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// CallCount returns how many times Generate was invoked.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}
