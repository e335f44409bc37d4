package summary

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sjawhar/clinic-assistant/internal/llm"
)

type mockClient struct {
	mu       sync.Mutex
	calls    int
	messages []llm.Message
	result   string
	err      error
}

func (m *mockClient) Complete(_ context.Context, messages []llm.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.messages = messages
	return m.result, m.err
}

type mockStreamClient struct {
	mockClient
	chunks []string
}

func (m *mockStreamClient) CompleteStream(_ context.Context, messages []llm.Message, onDelta func(string)) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.messages = messages
	var b strings.Builder
	for _, chunk := range m.chunks {
		if onDelta != nil {
			onDelta(chunk)
		}
		b.WriteString(chunk)
	}
	return b.String(), m.err
}

func TestSummarizeEmptyTranscriptSkipsModel(t *testing.T) {
	client := &mockClient{result: "should not be used"}
	s := New(client)

	got, err := s.Summarize(context.Background(), "  \n")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if got != NoConversation {
		t.Fatalf("expected placeholder, got %q", got)
	}
	if client.calls != 0 {
		t.Fatalf("expected no model call, got %d", client.calls)
	}
}

func TestSummarizeSendsInstructionAndTranscript(t *testing.T) {
	client := &mockClient{result: "  Alice booked 10:00 AM.  "}
	s := New(client)

	got, err := s.Summarize(context.Background(), "user: book 10 am\nassistant: done\n")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if got != "Alice booked 10:00 AM." {
		t.Fatalf("unexpected summary %q", got)
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly one model call, got %d", client.calls)
	}
	if len(client.messages) != 2 || client.messages[0].Role != "system" || client.messages[0].Content != SystemPrompt {
		t.Fatalf("unexpected system message: %#v", client.messages)
	}
	if client.messages[1].Role != "user" || !strings.Contains(client.messages[1].Content, "book 10 am") {
		t.Fatalf("unexpected user message: %#v", client.messages[1])
	}
}

func TestSummarizeEmptyGeneration(t *testing.T) {
	s := New(&mockClient{result: ""})

	got, err := s.Summarize(context.Background(), "user: hi\n")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if got != EmptyGeneration {
		t.Fatalf("expected empty generation placeholder, got %q", got)
	}
}

func TestSummarizeAccumulatesStream(t *testing.T) {
	client := &mockStreamClient{chunks: []string{"Alice ", "booked ", "2:00 PM."}}
	s := New(client)

	got, err := s.Summarize(context.Background(), "user: hi\n")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if got != "Alice booked 2:00 PM." {
		t.Fatalf("unexpected streamed summary %q", got)
	}
}

func TestSummarizeModelError(t *testing.T) {
	s := New(&mockClient{err: errors.New("rate limited")})

	if _, err := s.Summarize(context.Background(), "user: hi\n"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSummarizeWithoutClient(t *testing.T) {
	s := New(nil)
	if _, err := s.Summarize(context.Background(), "user: hi\n"); err == nil {
		t.Fatal("expected error without client")
	}
}
