package session

import (
	"errors"
	"log/slog"
)

// InitAvatarSignal is the frontend's request to start the avatar.
const InitAvatarSignal = "init_avatar"

type Avatar struct {
	session *Session
	starter AvatarStarter
}

func NewAvatar(sess *Session, starter AvatarStarter) *Avatar {
	return &Avatar{session: sess, starter: starter}
}

// HandleSignal starts the avatar on the first init_avatar signal after the
// session is ready. Earlier signals are dropped.
func (a *Avatar) HandleSignal(payload []byte) bool {
	if string(payload) != InitAvatarSignal {
		return false
	}
	if a.starter == nil {
		slog.Warn("avatar requested but no avatar service is configured", "room", a.session.Room)
		return false
	}

	first, err := a.session.claimAvatar()
	if errors.Is(err, ErrSessionNotReady) {
		slog.Error("avatar signal dropped", "room", a.session.Room, "error", err)
		return false
	}
	if !first {
		slog.Info("avatar already initialized", "room", a.session.Room)
		return false
	}

	go func() {
		if err := a.starter.Start(a.session.Context(), a.session.Room); err != nil {
			slog.Error("start avatar failed", "room", a.session.Room, "error", err)
			return
		}
		slog.Info("avatar started", "room", a.session.Room)
	}()
	return true
}
