package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSessionIdentitySetOnce(t *testing.T) {
	s := New(context.Background(), "room")

	if _, ok := s.Identity(); ok {
		t.Fatal("expected no identity on a new session")
	}
	if s.SetIdentity("") {
		t.Fatal("expected empty contact to be ignored")
	}
	if !s.SetIdentity("555") {
		t.Fatal("expected first identity to be stored")
	}
	if s.SetIdentity("777") {
		t.Fatal("expected second identity to be rejected")
	}
	if contact, _ := s.Identity(); contact != "555" {
		t.Fatalf("expected 555, got %q", contact)
	}
}

func TestSessionEndIdempotent(t *testing.T) {
	s := New(context.Background(), "room")
	room := &mockRoom{}
	s.Attach(room)

	s.End()
	s.End()

	if room.count() != 1 {
		t.Fatalf("expected one disconnect, got %d", room.count())
	}
	if !s.Ended() || s.Context().Err() == nil {
		t.Fatal("expected ended session with cancelled context")
	}
}

type mockAvatarStarter struct {
	mu    sync.Mutex
	rooms []string
	err   error
	done  chan struct{}
}

func (m *mockAvatarStarter) Start(_ context.Context, room string) error {
	m.mu.Lock()
	m.rooms = append(m.rooms, room)
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.err
}

func TestAvatarDroppedBeforeReady(t *testing.T) {
	s := New(context.Background(), "room")
	starter := &mockAvatarStarter{}
	a := NewAvatar(s, starter)

	if a.HandleSignal([]byte(InitAvatarSignal)) {
		t.Fatal("expected signal to be dropped before ready")
	}
	if _, err := s.claimAvatar(); !errors.Is(err, ErrSessionNotReady) {
		t.Fatalf("expected ErrSessionNotReady, got %v", err)
	}

	// A later signal after ready still starts it.
	s.MarkReady()
	starter.done = make(chan struct{}, 1)
	if !a.HandleSignal([]byte(InitAvatarSignal)) {
		t.Fatal("expected start after ready")
	}
	select {
	case <-starter.done:
	case <-time.After(time.Second):
		t.Fatal("expected avatar start")
	}
}

func TestAvatarStartsOnce(t *testing.T) {
	s := New(context.Background(), "medical-clinic-ab12cd34")
	s.MarkReady()
	starter := &mockAvatarStarter{done: make(chan struct{}, 4)}
	a := NewAvatar(s, starter)

	if a.HandleSignal([]byte("hello")) {
		t.Fatal("expected unrelated payload to be ignored")
	}
	if !a.HandleSignal([]byte(InitAvatarSignal)) {
		t.Fatal("expected first signal to start avatar")
	}
	if a.HandleSignal([]byte(InitAvatarSignal)) {
		t.Fatal("expected duplicate signal to be a no-op")
	}

	select {
	case <-starter.done:
	case <-time.After(time.Second):
		t.Fatal("expected avatar start")
	}

	starter.mu.Lock()
	defer starter.mu.Unlock()
	if len(starter.rooms) != 1 || starter.rooms[0] != "medical-clinic-ab12cd34" {
		t.Fatalf("unexpected avatar starts: %#v", starter.rooms)
	}
}

func TestAvatarWithoutStarter(t *testing.T) {
	s := New(context.Background(), "room")
	s.MarkReady()
	if NewAvatar(s, nil).HandleSignal([]byte(InitAvatarSignal)) {
		t.Fatal("expected no start without a starter")
	}
}
