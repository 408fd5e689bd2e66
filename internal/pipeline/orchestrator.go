// Package pipeline drives a single document from discovery to a terminal state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docextract/internal/document"
	"github.com/nikhilbhutani/docextract/internal/extraction"
	"github.com/nikhilbhutani/docextract/internal/models"
	"github.com/nikhilbhutani/docextract/internal/ocr"
	"github.com/nikhilbhutani/docextract/internal/sharepoint"
)

var (
	ErrEmptyText        = errors.New("OCR returned no text")
	ErrExtractionFailed = errors.New("model returned no usable extraction")
)

type JobCreator interface {
	CreateJob(ctx context.Context, req ocr.CreateJobRequest) (*ocr.Job, error)
}

type ResultWaiter interface {
	WaitForResult(ctx context.Context, jobID, driveID, itemID string) (*ocr.FileResult, error)
}

type Extractor interface {
	Classify(ctx context.Context, text string) (string, error)
	Extract(ctx context.Context, schema *extraction.Schema, text string) (map[string]models.FieldValue, error)
}

// StatusPusher mirrors progress onto the source item. It is best effort.
type StatusPusher interface {
	UpdateProcessingStatus(ctx context.Context, driveID, itemID string, status sharepoint.ProcessingStatus) error
}

type Deps struct {
	Repo    *document.Repository
	OCR     JobCreator
	Poller  ResultWaiter
	Engine  Extractor
	Schemas document.SchemaLookup
	Pusher  StatusPusher // optional
}

type Options struct {
	SourceApp             string
	GenerateSearchablePDF bool
	Logger                *slog.Logger
}

type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	if opts.SourceApp == "" {
		opts.SourceApp = "extraction-service"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{deps: deps, opts: opts, logger: logger}
}

// Start runs the whole pipeline for file. Calling it again for the same
// external id resets the document and runs from the beginning.
//
// A failure after the document is created is recorded as FAILED with the
// error message and then returned.
func (o *Orchestrator) Start(ctx context.Context, file models.SourceFile) (*models.Document, error) {
	doc, err := o.deps.Repo.UpsertStartProcessing(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", file.ExternalID, err)
	}

	log := o.logger.With("document_id", doc.ID, "external_id", file.ExternalID.String())
	log.Info("pipeline started", "file_name", file.FileName)

	o.push(ctx, log, file.ExternalID, sharepoint.StatusInProgress)

	done, err := o.run(ctx, log, doc)
	if err != nil {
		log.Error("pipeline failed", "error", err)

		// the failure is recorded even if the caller gave up
		recordCtx := context.WithoutCancel(ctx)
		if _, markErr := o.deps.Repo.MarkFailed(recordCtx, doc.ID, err.Error()); markErr != nil {
			log.Error("failed to record pipeline failure", "error", markErr)
		}
		o.push(recordCtx, log, file.ExternalID, sharepoint.StatusFailed)
		return nil, err
	}

	o.push(ctx, log, file.ExternalID, sharepoint.StatusProcessed)
	log.Info("pipeline finished", "document_type", deref(done.DocumentType), "fields", len(done.Data))
	return done, nil
}

func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, doc *models.Document) (*models.Document, error) {
	ext := doc.ExternalID()
	repo := o.deps.Repo

	job, err := o.deps.OCR.CreateJob(ctx, ocr.CreateJobRequest{
		SourceApp:             o.opts.SourceApp,
		GenerateSearchablePDF: o.opts.GenerateSearchablePDF,
		Files: []ocr.FileRequest{{
			ExternalFileID: ext.String(),
			SourceDriveID:  ext.DriveID,
			SourceItemID:   ext.ItemID,
		}},
	})
	if err != nil {
		return nil, err
	}
	if _, err := repo.SetStep(ctx, doc.ID, models.StepOCR); err != nil {
		return nil, err
	}
	log.Info("OCR job submitted", "job_id", job.ID)

	result, err := o.deps.Poller.WaitForResult(ctx, job.ID, ext.DriveID, ext.ItemID)
	if err != nil {
		return nil, err
	}
	text := result.Text
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: job %s", ErrEmptyText, job.ID)
	}

	var artifact *models.ExternalID
	if a := result.SearchableArtifact; a != nil {
		artifact = &models.ExternalID{DriveID: a.DriveID, ItemID: a.ItemID}
	}
	if _, err := repo.SaveOCRResult(ctx, doc.ID, job.ID, artifact); err != nil {
		return nil, err
	}

	docType, err := o.deps.Engine.Classify(ctx, text)
	if err != nil {
		return nil, err
	}
	if docType == extraction.Unrecognized {
		return nil, extraction.ErrUnrecognizedType
	}
	if _, err := repo.SetDocumentType(ctx, doc.ID, docType); err != nil {
		return nil, err
	}
	log.Info("document classified", "document_type", docType)

	schema, err := o.deps.Schemas.Lookup(docType)
	if err != nil {
		return nil, err
	}

	fields, err := o.deps.Engine.Extract(ctx, schema, text)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrExtractionFailed, docType)
	}

	if _, err := repo.SetStep(ctx, doc.ID, models.StepSavingResults); err != nil {
		return nil, err
	}
	data, err := document.EncodeFields(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return repo.MarkProcessed(ctx, doc.ID, data, text)
}

// Reprocess restarts the pipeline for a known document from its stored metadata.
func (o *Orchestrator) Reprocess(ctx context.Context, ext models.ExternalID) (*models.Document, error) {
	doc, err := o.deps.Repo.GetByExternalID(ctx, ext)
	if err != nil {
		return nil, fmt.Errorf("reprocess %s: %w", ext, err)
	}
	return o.Start(ctx, doc.SourceFile())
}

// ReprocessByID is Reprocess keyed by the internal document id.
func (o *Orchestrator) ReprocessByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := o.deps.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reprocess %s: %w", id, err)
	}
	return o.Start(ctx, doc.SourceFile())
}

func (o *Orchestrator) push(ctx context.Context, log *slog.Logger, ext models.ExternalID, status sharepoint.ProcessingStatus) {
	if o.deps.Pusher == nil {
		return
	}
	if err := o.deps.Pusher.UpdateProcessingStatus(ctx, ext.DriveID, ext.ItemID, status); err != nil {
		log.Error("source status update failed", "status", status, "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
