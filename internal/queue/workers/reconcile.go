package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/docextract/internal/discovery"
	"github.com/nikhilbhutani/docextract/internal/queue"
)

type Reconciler interface {
	Reconcile(ctx context.Context, driveID string) (*discovery.Stats, error)
}

type ReconcileWorker struct {
	gateway Reconciler
}

func NewReconcileWorker(gateway Reconciler) *ReconcileWorker {
	return &ReconcileWorker{gateway: gateway}
}

func (w *ReconcileWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DriveReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.DriveID == "" {
		return fmt.Errorf("reconcile task without drive id: %w", asynq.SkipRetry)
	}

	slog.Info("reconciling drive", "drive_id", payload.DriveID)

	stats, err := w.gateway.Reconcile(ctx, payload.DriveID)
	if err != nil {
		return err
	}

	slog.Info("drive reconciled",
		"drive_id", stats.DriveID,
		"listed", stats.Listed,
		"started", stats.Started,
		"failed", stats.Failed,
	)

	if rw := t.ResultWriter(); rw != nil {
		if raw, err := json.Marshal(stats); err == nil {
			rw.Write(raw)
		}
	}
	return nil
}
