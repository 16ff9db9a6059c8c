package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /{$}", h.Trigger)
	mux.HandleFunc("POST /event/{sessionID}", h.Event)
	mux.HandleFunc("POST /input/{sessionID}", h.Input)

	mux.HandleFunc("GET /v1/health", h.Health)
	mux.HandleFunc("GET /v1/sessions/{sessionID}", h.GetSession)

	mux.HandleFunc("GET /v1/sweeper/status", h.SweeperStatus)
	mux.HandleFunc("POST /v1/sweeper/start", h.SweeperStart)
	mux.HandleFunc("POST /v1/sweeper/stop", h.SweeperStop)

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("automatic-calling"))
	})

	return mux
}
