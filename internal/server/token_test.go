package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
)

type issuerStub struct {
	identity string
	name     string
	room     string
	err      error
}

func (s *issuerStub) Issue(identity, name, roomName string) (string, error) {
	s.identity, s.name, s.room = identity, name, roomName
	return "signed-jwt", s.err
}

func TestTokenCreatesRoomAndStartsAgent(t *testing.T) {
	issuer := &issuerStub{}
	var started []string
	opts := Options{
		LiveKitURL: "wss://clinic.livekit.cloud",
		RoomPrefix: "medical-clinic-",
		Tokens:     issuer,
		StartRoom: func(roomName string) error {
			started = append(started, roomName)
			return nil
		},
	}

	rr := serve(t, clinicStoreStub{}, opts, http.MethodGet, "/token")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected permissive CORS header")
	}

	var got tokenResponse
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if got.Token != "signed-jwt" || got.URL != "wss://clinic.livekit.cloud" {
		t.Fatalf("unexpected response %#v", got)
	}

	if !strings.HasPrefix(issuer.room, "medical-clinic-") || len(issuer.room) != len("medical-clinic-")+8 {
		t.Fatalf("unexpected room name %q", issuer.room)
	}
	if !strings.HasPrefix(issuer.identity, "user_") || issuer.name != "Guest User" {
		t.Fatalf("unexpected identity %q name %q", issuer.identity, issuer.name)
	}
	if len(started) != 1 || started[0] != issuer.room {
		t.Fatalf("expected agent started for %q, got %v", issuer.room, started)
	}
}

func TestTokenEachCallGetsFreshRoom(t *testing.T) {
	issuer := &issuerStub{}
	opts := Options{RoomPrefix: "medical-clinic-", Tokens: issuer}

	serve(t, clinicStoreStub{}, opts, http.MethodGet, "/token")
	first := issuer.room
	serve(t, clinicStoreStub{}, opts, http.MethodGet, "/token")
	if issuer.room == first {
		t.Fatalf("expected a new room, got %q twice", first)
	}
}

func TestTokenPreflight(t *testing.T) {
	rr := serve(t, clinicStoreStub{}, Options{Tokens: &issuerStub{}}, http.MethodOptions, "/token")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatal("expected allowed methods header")
	}
}

func TestTokenFailures(t *testing.T) {
	rr := serve(t, clinicStoreStub{}, Options{}, http.MethodGet, "/token")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without issuer, got %d", rr.Code)
	}

	rr = serve(t, clinicStoreStub{}, Options{Tokens: &issuerStub{err: errors.New("no credentials")}}, http.MethodGet, "/token")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on issue failure, got %d", rr.Code)
	}

	rr = serve(t, clinicStoreStub{}, Options{
		Tokens:    &issuerStub{},
		StartRoom: func(string) error { return errors.New("worker closed") },
	}, http.MethodGet, "/token")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when agent cannot start, got %d", rr.Code)
	}

	rr = serve(t, clinicStoreStub{}, Options{Tokens: &issuerStub{}}, http.MethodPost, "/token")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST, got %d", rr.Code)
	}
}
