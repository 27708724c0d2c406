package llm

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockClient returns canned replies keyed on the last message. It is used for
// offline demos and for exercising fallback paths.
type MockClient struct {
	mu         sync.Mutex
	shouldFail bool
	delay      time.Duration
	calls      int
}

// NewMockClient 创建 mock 客户端。
func NewMockClient(shouldFail bool, delay time.Duration) *MockClient {
	return &MockClient{shouldFail: shouldFail, delay: delay}
}

// SetShouldFail 切换失败模式。
func (m *MockClient) SetShouldFail(fail bool) {
	m.mu.Lock()
	m.shouldFail = fail
	m.mu.Unlock()
}

// Calls returns how many times Generate has been invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Generate implements Client.
func (m *MockClient) Generate(ctx context.Context, messages []Message, _ float64, _ int) (string, error) {
	m.mu.Lock()
	m.calls++
	fail := m.shouldFail
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", &NetworkError{Err: ctx.Err()}
		case <-timer.C:
		}
	}

	if fail {
		return "", &APIError{StatusCode: 500, Body: "Mock service error"}
	}

	last := ""
	if len(messages) > 0 {
		last = strings.ToLower(messages[len(messages)-1].Content)
	}

	switch {
	case strings.Contains(last, "welcome"):
		return "🎙️ Welcome to WutongTree! I'm MoMo, your friendly AI host. Let's have a great conversation! 😊", nil
	case strings.Contains(last, "host message"):
		return "🎯 That's interesting! What do you all think about that? Let's dive deeper! 💭", nil
	case strings.Contains(last, "natural response"):
		return "That's really cool! 😄 I love hearing different perspectives on this topic.", nil
	default:
		return "This is a mock response from the LLM service for testing purposes.", nil
	}
}
