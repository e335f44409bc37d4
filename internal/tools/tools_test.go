package tools

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sjawhar/clinic-assistant/internal/delta"
	"github.com/sjawhar/clinic-assistant/internal/storage"
)

type mockPublisher struct {
	mu     sync.Mutex
	events []delta.ToolEvent
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, event delta.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := event.(delta.ToolEvent); ok {
		m.events = append(m.events, ev)
	}
	return m.err
}

type mockIdentity struct {
	contacts []string
}

func (m *mockIdentity) SetIdentity(contact string) bool {
	m.contacts = append(m.contacts, contact)
	return len(m.contacts) == 1
}

type mockShutdown struct {
	reasons []string
}

func (m *mockShutdown) Trigger(reason string) bool {
	m.reasons = append(m.reasons, reason)
	return len(m.reasons) == 1
}

// failingStore answers every call with err.
type failingStore struct {
	err error
}

func (f failingStore) UpsertUser(context.Context, string, string) error { return f.err }
func (f failingStore) GetUser(context.Context, string) (storage.User, error) {
	return storage.User{}, f.err
}
func (f failingStore) InsertAppointment(context.Context, string, string) (storage.Appointment, error) {
	return storage.Appointment{}, f.err
}
func (f failingStore) ListAppointments(context.Context, string) ([]storage.Appointment, error) {
	return nil, f.err
}
func (f failingStore) SlotBooked(context.Context, string) (bool, error) { return false, f.err }
func (f failingStore) CancelAppointment(context.Context, string, string) (bool, error) {
	return false, f.err
}

type fixture struct {
	tools     *Tools
	store     *storage.SQLiteStore
	publisher *mockPublisher
	identity  *mockIdentity
	shutdown  *mockShutdown
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "clinic.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store:     store,
		publisher: &mockPublisher{},
		identity:  &mockIdentity{},
		shutdown:  &mockShutdown{},
	}
	f.tools = New(store, f.publisher, f.identity, f.shutdown, nil)
	return f
}

func TestIdentifyUserFlows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got := f.tools.IdentifyUser(ctx, "555", "")
	if !strings.Contains(got, "What is your name?") {
		t.Fatalf("expected name prompt, got %q", got)
	}

	got = f.tools.IdentifyUser(ctx, "555", "Alice")
	if got != "Nice to meet you, Alice. I've registered you with number 555." {
		t.Fatalf("unexpected registration result %q", got)
	}

	got = f.tools.IdentifyUser(ctx, "555", "")
	if got != "Welcome back, Alice." {
		t.Fatalf("unexpected welcome %q", got)
	}

	if len(f.identity.contacts) != 3 || f.identity.contacts[0] != "555" {
		t.Fatalf("expected identity to be offered on each call, got %#v", f.identity.contacts)
	}

	events := f.publisher.events
	if len(events) != 6 {
		t.Fatalf("expected start/end pairs, got %d events", len(events))
	}
	if events[0].Type != delta.TypeToolStart || events[1].Type != delta.TypeToolEnd || events[1].Name != NameIdentifyUser {
		t.Fatalf("unexpected event sequence: %#v", events[:2])
	}
}

func TestIdentifyUserRequiresContact(t *testing.T) {
	f := newFixture(t)
	got := f.tools.IdentifyUser(context.Background(), "  ", "Alice")
	if !strings.Contains(got, "contact number") {
		t.Fatalf("unexpected result %q", got)
	}
	if len(f.publisher.events) != 0 || len(f.identity.contacts) != 0 {
		t.Fatal("expected no side effects for invalid input")
	}
}

func TestIdentifyUserLookupFailure(t *testing.T) {
	tools := New(failingStore{err: errors.New("connection refused")}, &mockPublisher{}, nil, nil, nil)
	got := tools.IdentifyUser(context.Background(), "555", "")
	if !strings.Contains(got, "trouble looking up") {
		t.Fatalf("expected generic failure sentence, got %q", got)
	}
}

func TestFetchSlots(t *testing.T) {
	f := newFixture(t)
	slots := f.tools.FetchSlots(context.Background())
	if strings.Join(slots, "|") != "10:00 AM|2:00 PM|4:00 PM" {
		t.Fatalf("unexpected slots %#v", slots)
	}
	if f.publisher.events[1].Message != "Found 3 slots" {
		t.Fatalf("unexpected tool_end message %q", f.publisher.events[1].Message)
	}
}

func TestBookingMutualExclusion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if got := f.tools.BookAppointment(ctx, "555", "Alice", "2:00 PM"); got != "Appointment booked for Alice at 2:00 PM." {
		t.Fatalf("unexpected booking result %q", got)
	}

	got := f.tools.BookAppointment(ctx, "777", "Bob", "2:00 PM")
	if !strings.Contains(got, "already booked") {
		t.Fatalf("expected slot unavailable, got %q", got)
	}

	list, err := f.store.ListAppointments(ctx, "777")
	if err != nil {
		t.Fatalf("ListAppointments failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no second record, got %#v", list)
	}
}

func TestBookingSystemError(t *testing.T) {
	tools := New(failingStore{err: errors.New("disk full")}, &mockPublisher{}, nil, nil, nil)
	got := tools.BookAppointment(context.Background(), "555", "Alice", "10:00 AM")
	if got != "Failed to book appointment due to a system error." {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestBookingRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tools.BookAppointment(ctx, "555", "Alice", "10:00 AM")

	got := f.tools.RetrieveAppointments(ctx, "555")
	if got != "You have the following appointments: 10:00 AM (booked)" {
		t.Fatalf("unexpected retrieval %q", got)
	}

	if got := f.tools.CancelAppointment(ctx, "555", "10:00 AM"); !strings.Contains(got, "successfully cancelled") {
		t.Fatalf("unexpected cancel result %q", got)
	}

	got = f.tools.RetrieveAppointments(ctx, "555")
	if strings.Contains(got, "(booked)") {
		t.Fatalf("expected appointment no longer booked, got %q", got)
	}

	if got := f.tools.CancelAppointment(ctx, "555", "10:00 AM"); !strings.Contains(got, "couldn't find") {
		t.Fatalf("expected ambiguous failure, got %q", got)
	}
}

func TestRetrieveAppointmentsEmpty(t *testing.T) {
	f := newFixture(t)
	if got := f.tools.RetrieveAppointments(context.Background(), "999"); got != "No past appointments found." {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestPublishFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = delta.ErrChannelClosed

	if got := f.tools.BookAppointment(context.Background(), "555", "Alice", "4:00 PM"); got != "Appointment booked for Alice at 4:00 PM." {
		t.Fatalf("expected booking to succeed despite publish failure, got %q", got)
	}
}

func TestEndConversationTriggersShutdown(t *testing.T) {
	f := newFixture(t)

	if got := f.tools.EndConversation(context.Background()); got != Goodbye {
		t.Fatalf("unexpected result %q", got)
	}
	if len(f.shutdown.reasons) != 1 || f.shutdown.reasons[0] != NameEndConversation {
		t.Fatalf("expected one shutdown trigger, got %#v", f.shutdown.reasons)
	}
}

func TestCallDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.tools.Call(ctx, NameBookAppointment, `{"contact_number":"555","name":"Alice","time":"10:00 AM"}`)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != "Appointment booked for Alice at 10:00 AM." {
		t.Fatalf("unexpected result %q", got)
	}

	got, err = f.tools.Call(ctx, NameFetchSlots, "")
	if err != nil {
		t.Fatalf("Call fetch_slots failed: %v", err)
	}
	if got != `["10:00 AM","2:00 PM","4:00 PM"]` {
		t.Fatalf("unexpected slots payload %q", got)
	}

	if _, err := f.tools.Call(ctx, "delete_everything", "{}"); err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if _, err := f.tools.Call(ctx, NameIdentifyUser, "{not json"); err == nil {
		t.Fatal("expected error for malformed arguments")
	}
}

func TestDefinitionsCoverEveryTool(t *testing.T) {
	f := newFixture(t)
	for _, def := range Definitions() {
		if def.Function == nil {
			t.Fatal("expected function definition")
		}
		if _, err := f.tools.Call(context.Background(), def.Function.Name, "{}"); err != nil {
			t.Fatalf("definition %q is not dispatchable: %v", def.Function.Name, err)
		}
	}
	if len(Definitions()) != 6 {
		t.Fatalf("expected 6 tools, got %d", len(Definitions()))
	}
}
