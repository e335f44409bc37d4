package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/sjawhar/clinic-assistant/internal/storage"
)

var (
	contactPattern = regexp.MustCompile(`^[a-zA-Z0-9+_.-]{1,64}$`)
	roomPattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	datePattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

type ClinicStore interface {
	GetUser(ctx context.Context, contactNumber string) (storage.User, error)
	ListAppointments(ctx context.Context, contactNumber string) ([]storage.Appointment, error)
	ListConversations(ctx context.Context, contactNumber string) ([]storage.Conversation, error)
	ConversationsByDate(ctx context.Context, date string) ([]storage.Conversation, error)
	SlotBooked(ctx context.Context, startTime string) (bool, error)
}

type slotStatus struct {
	StartTime string `json:"start_time"`
	Available bool   `json:"available"`
}

func registerAPIRoutes(mux *http.ServeMux, store ClinicStore, opts Options) {
	mux.HandleFunc("GET /api/users/{contact}", func(w http.ResponseWriter, r *http.Request) {
		contact, ok := contactParam(w, r)
		if !ok {
			return
		}

		user, err := store.GetUser(r.Context(), contact)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, storage.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("get user: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, user)
	})

	mux.HandleFunc("GET /api/users/{contact}/appointments", func(w http.ResponseWriter, r *http.Request) {
		contact, ok := contactParam(w, r)
		if !ok {
			return
		}

		appointments, err := store.ListAppointments(r.Context(), contact)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list appointments: %v", err))
			return
		}
		if appointments == nil {
			appointments = []storage.Appointment{}
		}
		writeJSON(w, http.StatusOK, appointments)
	})

	mux.HandleFunc("GET /api/users/{contact}/conversations", func(w http.ResponseWriter, r *http.Request) {
		contact, ok := contactParam(w, r)
		if !ok {
			return
		}

		conversations, err := store.ListConversations(r.Context(), contact)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list conversations: %v", err))
			return
		}
		if conversations == nil {
			conversations = []storage.Conversation{}
		}
		writeJSON(w, http.StatusOK, conversations)
	})

	mux.HandleFunc("GET /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			date = time.Now().UTC().Format("2006-01-02")
		}
		if !datePattern.MatchString(date) {
			writeJSONError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}

		conversations, err := store.ConversationsByDate(r.Context(), date)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list conversations: %v", err))
			return
		}
		if conversations == nil {
			conversations = []storage.Conversation{}
		}
		writeJSON(w, http.StatusOK, conversations)
	})

	mux.HandleFunc("GET /api/slots", func(w http.ResponseWriter, r *http.Request) {
		slots := make([]slotStatus, 0, len(opts.Slots))
		for _, slot := range opts.Slots {
			booked, err := store.SlotBooked(r.Context(), slot)
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("check slot: %v", err))
				return
			}
			slots = append(slots, slotStatus{StartTime: slot, Available: !booked})
		}
		writeJSON(w, http.StatusOK, slots)
	})

	mux.HandleFunc("GET /api/recordings/{room}", func(w http.ResponseWriter, r *http.Request) {
		room := r.PathValue("room")
		if !roomPattern.MatchString(room) {
			writeJSONError(w, http.StatusForbidden, "invalid room name")
			return
		}
		if opts.AudioDir == "" {
			writeJSONError(w, http.StatusNotFound, "recordings not available")
			return
		}

		for _, ext := range []string{".mp3", ".ogg"} {
			path := filepath.Join(opts.AudioDir, room+ext)
			f, err := os.Open(path)
			if err != nil {
				continue
			}
			defer func() { _ = f.Close() }()

			info, err := f.Stat()
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("stat audio: %v", err))
				return
			}

			w.Header().Set("Accept-Ranges", "bytes")
			w.Header().Set("Content-Type", contentTypeForAudio(path))
			http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
			return
		}
		writeJSONError(w, http.StatusNotFound, "recording not found")
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var rooms []string
		if opts.Rooms != nil {
			rooms = opts.Rooms()
		}
		if rooms == nil {
			rooms = []string{}
		}
		var warnings []string
		if opts.Warnings != nil {
			warnings = opts.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms, "warnings": warnings})
	})
}

func contactParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	contact := r.PathValue("contact")
	if !contactPattern.MatchString(contact) {
		writeJSONError(w, http.StatusBadRequest, "invalid contact number")
		return "", false
	}
	return contact, true
}

func contentTypeForAudio(path string) string {
	switch filepath.Ext(path) {
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
