package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/docextract/internal/models"
	"github.com/nikhilbhutani/docextract/internal/queue"
)

type Reprocessor interface {
	Reprocess(ctx context.Context, ext models.ExternalID) (*models.Document, error)
}

type ReprocessWorker struct {
	orchestrator Reprocessor
}

func NewReprocessWorker(orchestrator Reprocessor) *ReprocessWorker {
	return &ReprocessWorker{orchestrator: orchestrator}
}

// ProcessTask reruns the pipeline.
func (w *ReprocessWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentReprocessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	ext := payload.ExternalID()
	if ext.IsZero() {
		return fmt.Errorf("reprocess task without external id: %w", asynq.SkipRetry)
	}

	slog.Info("reprocessing document", "external_id", ext.String())

	doc, err := w.orchestrator.Reprocess(ctx, ext)
	if err != nil {
		return runError(ctx, "reprocess "+ext.String(), err)
	}

	slog.Info("document reprocessed", "document_id", doc.ID, "status", doc.Status)
	return nil
}
