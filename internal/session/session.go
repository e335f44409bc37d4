package session

import (
	"context"
	"sync"
)

// Session is the explicit per-room context passed to every task the room
// spawns. Mutation happens only through its methods.
type Session struct {
	Room string

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	contact       string
	handle        RoomHandle
	ready         bool
	avatarStarted bool
	ended         bool
}

func New(parent context.Context, room string) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{Room: room, ctx: ctx, cancel: cancel}
}

func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) Attach(h RoomHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = h
}

func (s *Session) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
}

func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// SetIdentity records the caller's contact number. Only the first call has
// an effect; it reports whether the identity was stored.
func (s *Session) SetIdentity(contact string) bool {
	if contact == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contact != "" {
		return false
	}
	s.contact = contact
	return true
}

func (s *Session) Identity() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contact, s.contact != ""
}

// claimAvatar marks the avatar as started. It returns false when it already
// was, and ErrSessionNotReady before MarkReady.
func (s *Session) claimAvatar() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return false, ErrSessionNotReady
	}
	if s.avatarStarted {
		return false, nil
	}
	s.avatarStarted = true
	return true, nil
}

// End cancels the session context and disconnects the room. Safe to call
// more than once.
func (s *Session) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	handle := s.handle
	s.mu.Unlock()

	s.cancel()
	if handle != nil {
		handle.Disconnect()
	}
}

func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}
