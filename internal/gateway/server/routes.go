package server

import (
	"encoding/json"
	"net/http"

	"prsentry/internal/gateway/handler"
	"prsentry/internal/gateway/middleware"
)

// NewMux wires the gateway routes. prs may be nil when no database is
// configured.
func NewMux(webhook http.Handler, prs *handler.PRHandler) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /webhooks/github", webhook)
	if prs != nil {
		mux.HandleFunc("GET /api/prs/{owner}/{repo}/{number}", prs.Get)
	}
	mux.HandleFunc("GET /healthz", handleHealthz)

	return middleware.CORS(middleware.RequestLog(mux))
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
