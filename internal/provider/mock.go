package provider

import (
	"context"
	"sync"
)

// MockProvider replays scripted responses. Used in tests and as a
// stand-in backend when no credentials are configured.
type MockProvider struct {
	mu        sync.Mutex
	responses []*Response
	errs      []error
	calls     []Request
}

// NewMock creates an empty mock provider. With no scripted responses it
// answers every request with plain text.
func NewMock() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) Name() string { return "mock" }

// Enqueue scripts the next response (or error; pass err nil for success).
func (m *MockProvider) Enqueue(resp *Response, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	m.errs = append(m.errs, err)
}

// Calls returns a copy of every request received so far.
func (m *MockProvider) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	if len(m.responses) == 0 {
		return &Response{Text: "I could not reach a language model backend."}, nil
	}
	resp, err := m.responses[0], m.errs[0]
	m.responses = m.responses[1:]
	m.errs = m.errs[1:]
	if err != nil {
		return nil, err
	}
	return resp, nil
}
