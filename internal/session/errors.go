package session

import "errors"

// ErrSessionNotReady is returned when a signal arrives before the voice
// pipeline has been attached to the session.
var ErrSessionNotReady = errors.New("session not ready")
