package server

import (
	"log/slog"
	"net/http"

	"github.com/sjawhar/clinic-assistant/internal/room"
)

type TokenIssuer interface {
	Issue(identity, name, roomName string) (string, error)
}

type tokenResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// registerTokenRoute serves GET /token: each call creates a fresh room,
// starts the agent for it and returns a guest token. Any origin may call it.
func registerTokenRoute(mux *http.ServeMux, opts Options) {
	mux.HandleFunc("/token", withCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if opts.Tokens == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "token issuing not configured")
			return
		}

		roomName := room.NewRoomName(opts.RoomPrefix)
		token, err := opts.Tokens.Issue(room.NewIdentity(), room.GuestName, roomName)
		if err != nil {
			slog.Error("issue token failed", "room", roomName, "error", err)
			writeJSONError(w, http.StatusServiceUnavailable, "could not issue token")
			return
		}

		if opts.StartRoom != nil {
			if err := opts.StartRoom(roomName); err != nil {
				slog.Error("start agent failed", "room", roomName, "error", err)
				writeJSONError(w, http.StatusServiceUnavailable, "assistant unavailable")
				return
			}
		}

		slog.Info("token issued", "room", roomName)
		writeJSON(w, http.StatusOK, tokenResponse{Token: token, URL: opts.LiveKitURL})
	}))
}

func withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}
