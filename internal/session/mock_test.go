package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sjawhar/clinic-assistant/internal/delta"
	"github.com/sjawhar/clinic-assistant/internal/transcript"
)

type mockPublisher struct {
	mu     sync.Mutex
	events []delta.Event
	err    error
	panics bool
}

func (m *mockPublisher) Publish(_ context.Context, event delta.Event) error {
	if m.panics {
		panic("publisher exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) snapshot() []delta.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]delta.Event, len(m.events))
	copy(out, m.events)
	return out
}

type mockSummarizer struct {
	mu         sync.Mutex
	calls      int
	transcript string
	result     string
	err        error
}

func (m *mockSummarizer) Summarize(_ context.Context, transcript string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.transcript = transcript
	return m.result, m.err
}

type conversationCall struct {
	contact string
	summary string
	at      time.Time
}

type mockConversationLog struct {
	mu    sync.Mutex
	calls []conversationCall
	err   error
}

func (m *mockConversationLog) InsertConversation(_ context.Context, contact, summary string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, conversationCall{contact: contact, summary: summary, at: at})
	return m.err
}

func (m *mockConversationLog) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockRoom struct {
	mu          sync.Mutex
	disconnects int
}

func (m *mockRoom) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
}

func (m *mockRoom) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

// failingView reports turns it cannot return.
type failingView struct {
	n int
}

func (f failingView) Len() int { return f.n }

func (f failingView) Slice(int, int) ([]transcript.Turn, error) {
	return nil, errors.New("store unavailable")
}
