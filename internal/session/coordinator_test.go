package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sjawhar/clinic-assistant/internal/delta"
	"github.com/sjawhar/clinic-assistant/internal/summary"
	"github.com/sjawhar/clinic-assistant/internal/transcript"
)

type coordinatorFixture struct {
	session       *Session
	room          *mockRoom
	store         *transcript.Store
	summarizer    *mockSummarizer
	conversations *mockConversationLog
	publisher     *mockPublisher
	coordinator   *Coordinator

	mu     sync.Mutex
	sleeps []time.Duration
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()

	f := &coordinatorFixture{
		session:       New(context.Background(), "medical-clinic-test"),
		room:          &mockRoom{},
		store:         transcript.NewStore(),
		summarizer:    &mockSummarizer{result: "Alice booked 10:00 AM."},
		conversations: &mockConversationLog{},
		publisher:     &mockPublisher{},
	}
	f.session.Attach(f.room)
	f.coordinator = NewCoordinator(f.session, f.store, f.summarizer, f.conversations, f.publisher, 2*time.Second)
	f.coordinator.sleep = func(d time.Duration) {
		f.mu.Lock()
		f.sleeps = append(f.sleeps, d)
		f.mu.Unlock()
	}
	return f
}

func (f *coordinatorFixture) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.coordinator.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not finish")
	}
}

func TestCoordinatorFullSequence(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.store.Append(transcript.Turn{Role: transcript.RoleUser, Content: "my number is 555"})
	f.store.Append(transcript.Turn{Role: transcript.RoleAssistant, Content: "Welcome back, Alice."})
	f.session.SetIdentity("555")

	if !f.coordinator.Trigger("end_conversation") {
		t.Fatal("expected first trigger to start shutdown")
	}
	f.wait(t)

	if !strings.Contains(f.summarizer.transcript, "user: my number is 555\nassistant: Welcome back, Alice.\n") {
		t.Fatalf("unexpected transcript sent to summarizer: %q", f.summarizer.transcript)
	}

	events := f.publisher.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected one summary event, got %d", len(events))
	}
	ev, ok := events[0].(delta.SummaryEvent)
	if !ok || ev.Summary != "Alice booked 10:00 AM." {
		t.Fatalf("unexpected summary event: %#v", events[0])
	}

	if f.conversations.count() != 1 || f.conversations.calls[0].contact != "555" || f.conversations.calls[0].summary != "Alice booked 10:00 AM." {
		t.Fatalf("unexpected persistence calls: %#v", f.conversations.calls)
	}
	if len(f.sleeps) != 1 || f.sleeps[0] != 2*time.Second {
		t.Fatalf("expected one grace sleep of 2s, got %v", f.sleeps)
	}
	if f.room.count() != 1 {
		t.Fatalf("expected one disconnect, got %d", f.room.count())
	}
	if f.session.Context().Err() == nil {
		t.Fatal("expected session context to be cancelled")
	}
}

func TestCoordinatorWithoutIdentitySkipsPersistence(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.store.Append(transcript.Turn{Role: transcript.RoleUser, Content: "just browsing"})

	f.coordinator.Trigger("end_conversation")
	f.wait(t)

	if f.conversations.count() != 0 {
		t.Fatalf("expected no conversation write, got %d", f.conversations.count())
	}
	if f.room.count() != 1 {
		t.Fatal("expected disconnect")
	}
}

func TestCoordinatorAlwaysDisconnects(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.session.SetIdentity("555")
	f.summarizer.err = errors.New("model down")
	f.conversations.err = errors.New("db down")
	f.publisher.panics = true

	f.coordinator.Trigger("end_conversation")
	f.wait(t)

	if f.room.count() != 1 {
		t.Fatalf("expected disconnect despite failures, got %d", f.room.count())
	}
	if got := f.coordinator.Summary(); got != summary.Unavailable {
		t.Fatalf("expected unavailable placeholder, got %q", got)
	}
	if f.conversations.count() != 1 || f.conversations.calls[0].summary != summary.Unavailable {
		t.Fatalf("expected placeholder persisted, got %#v", f.conversations.calls)
	}
}

func TestCoordinatorDisconnectsWithinGrace(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.coordinator.grace = 20 * time.Millisecond
	f.coordinator.sleep = time.Sleep
	f.summarizer.err = errors.New("model down")
	f.publisher.err = delta.ErrChannelClosed

	start := time.Now()
	f.coordinator.Trigger("end_conversation")
	f.wait(t)
	elapsed := time.Since(start)

	if elapsed < 20*time.Millisecond || elapsed > time.Second {
		t.Fatalf("expected disconnect shortly after grace, took %v", elapsed)
	}
	if f.room.count() != 1 {
		t.Fatal("expected disconnect")
	}
}

func TestCoordinatorTriggersOnce(t *testing.T) {
	f := newCoordinatorFixture(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.coordinator.Trigger("idle") {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	f.wait(t)

	if started != 1 {
		t.Fatalf("expected exactly one trigger to start shutdown, got %d", started)
	}
	if f.summarizer.calls != 1 || f.room.count() != 1 {
		t.Fatalf("expected one summarization and one disconnect, got %d and %d", f.summarizer.calls, f.room.count())
	}
}
