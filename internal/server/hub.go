package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/clinic-assistant/internal/delta"
)

// Hub fans events out to observer websocket clients. Slow clients miss
// messages rather than blocking publishers.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	now     func() time.Time
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{}), now: time.Now}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// RoomMirror returns a delta.Mirror that tags each payload with room.
func (h *Hub) RoomMirror(room string) delta.Mirror {
	return roomMirror{hub: h, room: room}
}

type roomMirror struct {
	hub  *Hub
	room string
}

func (m roomMirror) Broadcast(msg []byte) {
	if !json.Valid(msg) {
		slog.Warn("dropping invalid delta payload", "room", m.room)
		return
	}
	m.hub.broadcastEvent(DeltaEvent{
		Event: newEvent("delta", m.hub.now()),
		Room:  m.room,
		Delta: append(json.RawMessage(nil), msg...),
	})
}

func (h *Hub) SessionStarted(room string) {
	h.broadcastEvent(SessionStartedEvent{
		Event: newEvent("session_started", h.now()),
		Room:  room,
	})
}

func (h *Hub) SessionEnded(room, summary string, duration time.Duration) {
	h.broadcastEvent(SessionEndedEvent{
		Event:    newEvent("session_ended", h.now()),
		Room:     room,
		Duration: duration.Seconds(),
		Summary:  summary,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("event marshal error", "error", err)
		return
	}
	h.Broadcast(payload)
}
