package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/docextract/internal/models"
)

type Starter interface {
	Start(ctx context.Context, file models.SourceFile) (*models.Document, error)
}

type ProcessWorker struct {
	orchestrator Starter
}

func NewProcessWorker(orchestrator Starter) *ProcessWorker {
	return &ProcessWorker{orchestrator: orchestrator}
}

func (w *ProcessWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var file models.SourceFile
	if err := json.Unmarshal(t.Payload(), &file); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if file.ExternalID.IsZero() {
		return fmt.Errorf("process task without external id: %w", asynq.SkipRetry)
	}

	slog.Info("processing document", "external_id", file.ExternalID.String(), "file_name", file.FileName)

	doc, err := w.orchestrator.Start(ctx, file)
	if err != nil {
		return runError(ctx, "process "+file.ExternalID.String(), err)
	}

	slog.Info("document processed", "document_id", doc.ID, "status", doc.Status)
	return nil
}

// runError classifies a failed pipeline run. A run that failed on its own is
// already recorded on the document and is not retried. A run cut short by
// shutdown or the task deadline is retried so it starts again from scratch.
func runError(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s interrupted: %w", what, err)
	}
	return fmt.Errorf("%s: %v: %w", what, err, asynq.SkipRetry)
}
