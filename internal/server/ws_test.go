package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestRoomMirrorWrapsDelta(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	hub.RoomMirror("medical-clinic-abc").Broadcast([]byte(`{"type":"agent_speech","text":"Hello!","timestamp":1}`))

	select {
	case msg := <-ch:
		var payload struct {
			Type  string         `json:"type"`
			Room  string         `json:"room"`
			Delta map[string]any `json:"delta"`
		}
		if err := json.Unmarshal(msg, &payload); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if payload.Type != "delta" || payload.Room != "medical-clinic-abc" {
			t.Fatalf("unexpected envelope %s", string(msg))
		}
		if payload.Delta["text"] != "Hello!" {
			t.Fatalf("expected delta to be embedded verbatim, got %s", string(msg))
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
}

func TestRoomMirrorDropsInvalidJSON(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	hub.RoomMirror("r").Broadcast([]byte("not json"))

	select {
	case msg := <-ch:
		t.Fatalf("expected nothing, got %s", string(msg))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWSStreamsHubEvents(t *testing.T) {
	hub := NewHub()
	h, err := Handler(nil, hub, clinicStoreStub{}, Options{})
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, first, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read connection event: %v", err)
	}
	if !strings.Contains(string(first), `"connection"`) {
		t.Fatalf("expected connection event, got %s", string(first))
	}

	// The subscription is registered right after the connection event.
	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.clients)
		hub.mu.RUnlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.SessionEnded("medical-clinic-abc", "Booked 10:00 AM.", 90*time.Second)

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read session event: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(msg, &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload["type"] != "session_ended" || payload["summary"] != "Booked 10:00 AM." || payload["duration"] != float64(90) {
		t.Fatalf("unexpected session event %s", string(msg))
	}
}
