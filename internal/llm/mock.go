package llm

import (
	"context"
	"sync"
)

// MockClient replays canned replies for tests and offline runs.
type MockClient struct {
	mu        sync.Mutex
	replies   []string
	err       error
	calls     [][]Message
	threadIDs []string
}

var (
	_ Completer = (*MockClient)(nil)
	_ Responder = (*MockClient)(nil)
)

// NewMockClient returns replies in order, repeating the last one.
func NewMockClient(replies ...string) *MockClient {
	return &MockClient{replies: replies}
}

// NewFailingMockClient returns err from every call.
func NewFailingMockClient(err error) *MockClient {
	return &MockClient{err: err}
}

// Complete records messages and returns the next canned reply.
func (m *MockClient) Complete(ctx context.Context, messages []Message) (string, error) {
	return m.Respond(ctx, "", messages)
}

// Respond records the call and returns the next canned reply.
func (m *MockClient) Respond(ctx context.Context, threadID string, history []Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]Message(nil), history...))
	m.threadIDs = append(m.threadIDs, threadID)

	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", nil
	}
	reply := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return reply, nil
}

// Calls returns the message lists received so far.
func (m *MockClient) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Message(nil), m.calls...)
}
