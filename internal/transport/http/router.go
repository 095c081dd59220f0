package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/rs/cors"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// NewRouter mounts the websocket gateway, health check and game status
// endpoints, with CORS restricted to allowedOrigins (empty allows all).
// metrics is served on /metrics when non-nil.
func NewRouter(service *app.GameService, ws *WSHandler, allowedOrigins []string, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", ws.ServeWS)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	mux.HandleFunc("GET /api/games/{pin}", func(w http.ResponseWriter, r *http.Request) {
		status, err := service.Status(r.Context(), r.PathValue("pin"))
		if errors.Is(err, domain.ErrInvalidSession) {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	})

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(mux)
}

// OriginChecker builds a websocket origin check from the CORS allow list.
func OriginChecker(allowedOrigins []string) func(r *http.Request) bool {
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowedOrigins, origin)
	}
}
