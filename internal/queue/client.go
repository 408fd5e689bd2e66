package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/docextract/internal/config"
	"github.com/nikhilbhutani/docextract/internal/models"
)

const (
	// reconcileWindow coalesces bursts of notifications for the same drive.
	reconcileWindow = 30 * time.Second
	// ReconcileTimeout bounds a drive listing. Files are run by their own tasks.
	ReconcileTimeout = 5 * time.Minute
	// DocumentTimeout bounds one pipeline run: OCR polling plus the LLM calls.
	DocumentTimeout = 20 * time.Minute
)

type Client struct {
	client *asynq.Client
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(RedisOpt(cfg)),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueDriveReconcile schedules a reconcile of driveID. A reconcile already
// queued for the same drive absorbs the request.
func (c *Client) EnqueueDriveReconcile(ctx context.Context, driveID string) error {
	task, err := NewDriveReconcileTask(driveID)
	if err != nil {
		return err
	}
	err = c.enqueue(ctx, task, asynq.Unique(reconcileWindow), asynq.MaxRetry(1), asynq.Timeout(ReconcileTimeout))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		slog.Debug("reconcile already queued", "drive_id", driveID)
		return nil
	}
	return err
}

// EnqueueReprocess schedules a full pipeline rerun. The single retry is only
// used when the run was interrupted; failed runs are not retried.
func (c *Client) EnqueueReprocess(ctx context.Context, ext models.ExternalID) error {
	task, err := NewDocumentReprocessTask(ext)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, asynq.MaxRetry(1), asynq.Timeout(DocumentTimeout))
}

// EnqueueProcess schedules the first pipeline run for file. A task already
// pending or running for the same file absorbs the request.
func (c *Client) EnqueueProcess(ctx context.Context, file models.SourceFile) error {
	task, err := NewDocumentProcessTask(file)
	if err != nil {
		return err
	}
	err = c.enqueue(ctx, task,
		asynq.TaskID(TypeDocumentProcess+":"+file.ExternalID.String()),
		asynq.MaxRetry(1),
		asynq.Timeout(DocumentTimeout),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		slog.Debug("document already queued", "external_id", file.ExternalID.String())
		return nil
	}
	return err
}

// Starter adapts the client to discovery.Starter, so a rescan queues one task
// per new file instead of running the pipeline inline.
func (c *Client) Starter() *ProcessStarter {
	return &ProcessStarter{client: c}
}

type ProcessStarter struct {
	client *Client
}

// Start queues file. It never returns a document.
func (s *ProcessStarter) Start(ctx context.Context, file models.SourceFile) (*models.Document, error) {
	return nil, s.client.EnqueueProcess(ctx, file)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}
