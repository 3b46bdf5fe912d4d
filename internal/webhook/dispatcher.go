// Package webhook verifies and dispatches GitHub webhook deliveries.
// Intake is deliberately thin: verify, enqueue, respond fast. All real
// work happens in the worker pool.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v61/github"
	"github.com/google/uuid"

	"prsentry/internal/queue"
)

// maxBodyBytes caps webhook payload reads. GitHub's own limit is 25MB;
// pull_request payloads are far below that.
const maxBodyBytes = 5 << 20

// Enqueuer is the slice of the queue the dispatcher needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.ScorePRJob) error
}

// Dispatcher is the HTTP handler for POST /webhooks/github.
type Dispatcher struct {
	secret []byte
	q      Enqueuer
	log    *slog.Logger
}

func NewDispatcher(secret string, q Enqueuer, log *slog.Logger) *Dispatcher {
	return &Dispatcher{secret: []byte(secret), q: q, log: log}
}

// payload is the subset of the pull_request event we act on.
type payload struct {
	Action      string `json:"action"`
	PullRequest struct {
		Number int `json:"number"`
	} `json:"pull_request"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
	Installation struct {
		ID int64 `json:"id"`
	} `json:"installation"`
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if len(d.secret) == 0 {
		d.log.Error("webhook secret not configured")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "webhook secret not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	sig := r.Header.Get("X-Hub-Signature-256")
	if err := github.ValidateSignature(sig, body, d.secret); err != nil {
		d.log.Warn("webhook signature rejected", "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	deliveryID := r.Header.Get("X-GitHub-Delivery")
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}

	// Every delivery carries a JSON body; reject broken ones before
	// looking at the event type.
	if !json.Valid(body) {
		d.log.Warn("malformed webhook payload", "event", event, "delivery_id", deliveryID)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
		return
	}

	if event == "pull_request" {
		var p payload
		if err := json.Unmarshal(body, &p); err != nil {
			d.log.Warn("unexpected pull_request payload shape", "delivery_id", deliveryID, "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
			return
		}

		if p.Action == "opened" || p.Action == "synchronize" {
			job := queue.ScorePRJob{
				Owner:          p.Repository.Owner.Login,
				Name:           p.Repository.Name,
				PRNumber:       p.PullRequest.Number,
				InstallationID: p.Installation.ID,
				DeliveryID:     deliveryID,
			}
			// Enqueue failures never fail the delivery; GitHub will
			// redeliver and the job ID keeps that idempotent.
			if err := d.q.Enqueue(r.Context(), job); err != nil {
				d.log.Error("failed to enqueue job", "job_id", job.ID(), "error", err)
			}
		} else {
			d.log.Debug("ignoring pull_request action", "action", p.Action, "delivery_id", deliveryID)
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
