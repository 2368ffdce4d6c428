package mock

import (
	"context"
	"sync"

	"github.com/poiesic/lexis/ai"
)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, Response is returned.
	GenerateFunc func(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error)

	// Response is the default reply. Empty means an empty JSON array.
	Response string

	mu        sync.Mutex
	callCount int
	options   []ai.GenerateOptions
}

var _ ai.Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a mock generator that always answers with response.
func NewMockGenerator(response string) *MockGenerator {
	return &MockGenerator{Response: response}
}

// Generate returns the scripted response.
func (m *MockGenerator) Generate(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.options = append(m.options, opts)
	fn := m.GenerateFunc
	response := m.Response
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, opts)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if response == "" {
		response = "[]"
	}
	return response, nil
}

// CallCount returns the number of times Generate was called.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Options returns the options of every call, in call order.
func (m *MockGenerator) Options() []ai.GenerateOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ai.GenerateOptions(nil), m.options...)
}

// Reset clears the call count and custom function.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.options = nil
	m.GenerateFunc = nil
}
