package server

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

type Options struct {
	LiveKitURL string
	RoomPrefix string
	Tokens     TokenIssuer
	Slots      []string
	AudioDir   string

	StartRoom func(roomName string) error
	Rooms     func() []string
	Warnings  func() []string
}

func Handler(staticFS fs.FS, hub *Hub, store ClinicStore, opts Options) (http.Handler, error) {
	mux := http.NewServeMux()

	registerTokenRoute(mux, opts)
	registerWSRoute(mux, hub)
	registerAPIRoutes(mux, store, opts)

	if staticFS != nil {
		fileServer := http.FileServer(http.FS(staticFS))
		mux.HandleFunc("/", serveSPA(fileServer))
	}

	return mux, nil
}

func serveSPA(fileServer http.Handler) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" {
			http.NotFound(w, r)
			return
		}

		cleanPath := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if cleanPath == "." || cleanPath == "" {
			r.URL.Path = "/"
		} else if !strings.Contains(cleanPath, ".") {
			r.URL.Path = "/index.html"
		} else {
			r.URL.Path = "/" + cleanPath
		}

		fileServer.ServeHTTP(w, r)
	}
}
