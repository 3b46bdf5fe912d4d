// Package handler holds the gateway's plain HTTP handlers.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"prsentry/internal/store"
)

// PRHandler serves stored PR snapshots with their latest score.
type PRHandler struct {
	store *store.Store
	log   *slog.Logger
}

func NewPRHandler(s *store.Store, log *slog.Logger) *PRHandler {
	return &PRHandler{store: s, log: log}
}

// Get handles GET /api/prs/{owner}/{repo}/{number}.
func (h *PRHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	repo := r.PathValue("repo")
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || owner == "" || repo == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pr coordinates"})
		return
	}

	view, err := h.store.GetPullRequest(r.Context(), owner, repo, number)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "pull request not found"})
		return
	}
	if err != nil {
		h.log.Error("pr lookup failed", "owner", owner, "repo", repo, "number", number, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
