package server

import (
	"encoding/json"
	"time"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type DeltaEvent struct {
	Event
	Room  string          `json:"room"`
	Delta json.RawMessage `json:"delta"`
}

type SessionStartedEvent struct {
	Event
	Room string `json:"room"`
}

type SessionEndedEvent struct {
	Event
	Room     string  `json:"room"`
	Duration float64 `json:"duration"`
	Summary  string  `json:"summary"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
