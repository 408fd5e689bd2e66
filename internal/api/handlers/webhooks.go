package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nikhilbhutani/docextract/internal/discovery"
)

type NotificationFilter interface {
	FilterNotifications(batch []discovery.Notification) []string
}

type ReconcileEnqueuer interface {
	EnqueueDriveReconcile(ctx context.Context, driveID string) error
}

// WebhookHandler receives Microsoft Graph change notifications for the inputs drive.
type WebhookHandler struct {
	filter NotificationFilter
	queue  ReconcileEnqueuer
}

func NewWebhookHandler(filter NotificationFilter, queue ReconcileEnqueuer) *WebhookHandler {
	return &WebhookHandler{filter: filter, queue: queue}
}

// Validate answers subscription validation probes sent with GET.
func (h *WebhookHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if token := validationToken(r); token != "" {
		writeToken(w, token)
		return
	}
	writeToken(w, "OK")
}

// Notify handles the validation handshake and change notifications. Graph
// only needs an acknowledgement, so notification handling never changes the
// 202 reply.
func (h *WebhookHandler) Notify(w http.ResponseWriter, r *http.Request) {
	if token := validationToken(r); token != "" {
		slog.Info("graph subscription validation")
		writeToken(w, token)
		return
	}

	start := time.Now()

	var batch discovery.NotificationBatch
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err == nil && len(body) > 0 {
		err = json.Unmarshal(body, &batch)
	}
	if err != nil {
		slog.Warn("unreadable graph notification", "error", err)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if len(batch.Value) == 0 {
		slog.Info("empty graph notification")
		w.WriteHeader(http.StatusAccepted)
		return
	}

	drives := h.filter.FilterNotifications(batch.Value)
	for _, driveID := range drives {
		if err := h.queue.EnqueueDriveReconcile(r.Context(), driveID); err != nil {
			slog.Error("enqueue drive reconcile", "drive_id", driveID, "error", err)
		}
	}

	slog.Info("graph notifications handled",
		"received", len(batch.Value),
		"drives", len(drives),
		"duration", time.Since(start),
	)
	w.WriteHeader(http.StatusAccepted)
}

func validationToken(r *http.Request) string {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		return token
	}
	return r.Header.Get("validation-token")
}

func writeToken(w http.ResponseWriter, token string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, token)
}
