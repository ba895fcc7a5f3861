package llm

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MockResponse is one scripted reply.
type MockResponse struct {
	Content json.RawMessage
	Usage   Usage
	Err     error
	// StopReason defaults to "end".
	StopReason string
	// Delay holds the reply back; a cancelled context wins.
	Delay time.Duration
}

// MockProvider replays a script of replies in order and records every
// request. Once the script runs out it answers with the fallback, or
// ErrProviderUnavailable when none is set.
type MockProvider struct {
	mu       sync.Mutex
	script   []MockResponse
	fallback *MockResponse
	requests []Request
}

func NewMockProvider(script ...MockResponse) *MockProvider {
	return &MockProvider{script: script}
}

// Then appends a reply to the script.
func (m *MockProvider) Then(r MockResponse) *MockProvider {
	m.mu.Lock()
	m.script = append(m.script, r)
	m.mu.Unlock()
	return m
}

// Otherwise sets the reply used after the script is exhausted.
func (m *MockProvider) Otherwise(r MockResponse) *MockProvider {
	m.mu.Lock()
	m.fallback = &r
	m.mu.Unlock()
	return m
}

func (m *MockProvider) next(req Request) (MockResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.script) > 0 {
		r := m.script[0]
		m.script = m.script[1:]
		return r, true
	}
	if m.fallback != nil {
		return *m.fallback, true
	}
	return MockResponse{}, false
}

func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	r, ok := m.next(req)
	if !ok {
		return nil, &ErrProviderUnavailable{}
	}
	if r.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.Delay):
		}
	}
	if r.Err != nil {
		return nil, r.Err
	}
	if r.StopReason == "" {
		r.StopReason = stopEnd
	}
	return &Response{Content: r.Content, Usage: r.Usage, Model: m.ModelID(), StopReason: r.StopReason}, nil
}

func (m *MockProvider) ModelID() string { return "mock" }

// Requests returns a copy of the requests seen so far.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
