package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docextract/internal/events"
	"github.com/nikhilbhutani/docextract/internal/extraction"
	"github.com/nikhilbhutani/docextract/internal/models"
)

// Repository is the only write path for documents. Every successful write is
// announced to the publisher as a ChangeEvent.
type Repository struct {
	store  Store
	events events.Publisher
	now    func() time.Time
}

func NewRepository(store Store, publisher events.Publisher) *Repository {
	return &Repository{store: store, events: publisher, now: time.Now}
}

func (r *Repository) publish(doc *models.Document) {
	if r.events != nil {
		r.events.Publish(models.NewChangeEvent(doc))
	}
}

// CreatePending records a discovered file without starting it.
func (r *Repository) CreatePending(ctx context.Context, file models.SourceFile) (*models.Document, error) {
	now := r.now().UTC()
	doc, err := r.store.Insert(ctx, &models.Document{
		DriveID:      file.ExternalID.DriveID,
		ItemID:       file.ExternalID.ItemID,
		SiteID:       file.SiteID,
		WebURL:       file.WebURL,
		FileName:     file.FileName,
		FileSize:     file.FileSize,
		ContentType:  file.ContentType,
		DocumentType: file.DocumentType,
		Status:       models.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	r.publish(doc)
	return doc, nil
}

// UpsertStartProcessing creates or resets the document for file. It always
// leaves the document IN_PROGRESS at DOWNLOADING.
func (r *Repository) UpsertStartProcessing(ctx context.Context, file models.SourceFile) (*models.Document, error) {
	if file.ExternalID.IsZero() {
		return nil, fmt.Errorf("start processing: incomplete external id %q", file.ExternalID)
	}
	doc, err := r.store.UpsertStart(ctx, file, r.now().UTC())
	if err != nil {
		return nil, err
	}
	r.publish(doc)
	return doc, nil
}

func (r *Repository) update(ctx context.Context, id uuid.UUID, fn func(doc *models.Document) error) (*models.Document, error) {
	doc, err := r.store.Update(ctx, id, func(doc *models.Document) error {
		if err := fn(doc); err != nil {
			return err
		}
		doc.UpdatedAt = r.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.publish(doc)
	return doc, nil
}

func (r *Repository) SetStep(ctx context.Context, id uuid.UUID, step models.Step) (*models.Document, error) {
	return r.update(ctx, id, func(doc *models.Document) error {
		doc.Status = models.StatusInProgress
		doc.CurrentStep = &step
		return nil
	})
}

// SaveOCRResult stores the job linkage and the searchable artifact locator,
// then advances to AI_EXTRACTION.
func (r *Repository) SaveOCRResult(ctx context.Context, id uuid.UUID, jobID string, artifact *models.ExternalID) (*models.Document, error) {
	return r.update(ctx, id, func(doc *models.Document) error {
		step := models.StepAIExtraction
		doc.OCRJobID = &jobID
		doc.SearchableDriveID, doc.SearchableItemID = nil, nil
		if artifact != nil && !artifact.IsZero() {
			doc.SearchableDriveID = &artifact.DriveID
			doc.SearchableItemID = &artifact.ItemID
		}
		doc.Status = models.StatusInProgress
		doc.CurrentStep = &step
		return nil
	})
}

func (r *Repository) SetDocumentType(ctx context.Context, id uuid.UUID, docType string) (*models.Document, error) {
	return r.update(ctx, id, func(doc *models.Document) error {
		doc.DocumentType = &docType
		return nil
	})
}

// MarkProcessed persists the extraction result. processedAt keeps the time of
// the first successful run.
func (r *Repository) MarkProcessed(ctx context.Context, id uuid.UUID, data models.FieldData, rawText string) (*models.Document, error) {
	return r.update(ctx, id, func(doc *models.Document) error {
		now := r.now().UTC()
		doc.Data = data
		doc.RawText = &rawText
		doc.Status = models.StatusProcessed
		doc.CurrentStep = nil
		doc.ErrorMessage = nil
		if doc.ProcessedAt == nil {
			doc.ProcessedAt = &now
		}
		return nil
	})
}

// MarkFailed records the error and leaves data untouched.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, message string) (*models.Document, error) {
	if message == "" {
		message = "unknown error"
	}
	return r.update(ctx, id, func(doc *models.Document) error {
		doc.Status = models.StatusFailed
		doc.CurrentStep = nil
		doc.ErrorMessage = &message
		return nil
	})
}

// UpdateFieldValue replaces the value of one field. The field's evidence and
// every other field are written back byte for byte.
func (r *Repository) UpdateFieldValue(ctx context.Context, id uuid.UUID, field, value string) (*models.Document, error) {
	if strings.TrimSpace(field) == "" {
		return nil, fmt.Errorf("%w: field name is required", ErrInvalidField)
	}
	return r.update(ctx, id, func(doc *models.Document) error {
		current := map[string]json.RawMessage{}
		if raw, ok := doc.Data[field]; ok && len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &current); err != nil {
				return fmt.Errorf("%w: %s is not an object", ErrInvalidField, field)
			}
		}

		encoded, err := json.Marshal(value)
		if err != nil {
			return err
		}
		current["value"] = encoded

		updated, err := json.Marshal(current)
		if err != nil {
			return err
		}
		if doc.Data == nil {
			doc.Data = models.FieldData{}
		}
		doc.Data[field] = updated
		return nil
	})
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return r.store.Get(ctx, id)
}

func (r *Repository) GetByExternalID(ctx context.Context, ext models.ExternalID) (*models.Document, error) {
	return r.store.GetByExternalID(ctx, ext)
}

func (r *Repository) ExistsByExternalID(ctx context.Context, ext models.ExternalID) (bool, error) {
	_, err := r.store.GetByExternalID(ctx, ext)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ListByStatus pages through documents newest first. A nil status lists all.
func (r *Repository) ListByStatus(ctx context.Context, status *models.Status, page, pageSize int) ([]models.Document, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	docs, err := r.store.List(ctx, ListQuery{Status: status, Limit: pageSize, Offset: (page - 1) * pageSize})
	if err != nil {
		return nil, 0, err
	}
	total, err := r.store.Count(ctx, status)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (r *Repository) CountByStatus(ctx context.Context, status models.Status) (int, error) {
	return r.store.Count(ctx, &status)
}

type ExportQuery struct {
	Status        *models.Status
	ProcessedFrom *time.Time
	ProcessedTo   *time.Time
}

// ListForExport returns matching documents in processing order.
func (r *Repository) ListForExport(ctx context.Context, q ExportQuery) ([]models.Document, error) {
	return r.store.List(ctx, ListQuery{
		Status:        q.Status,
		ProcessedFrom: q.ProcessedFrom,
		ProcessedTo:   q.ProcessedTo,
		ByProcessedAt: true,
	})
}

// SchemaLookup resolves the field schema of a document type.
type SchemaLookup interface {
	Lookup(docType string) (*extraction.Schema, error)
}

type FieldView struct {
	Name           string `json:"name"`
	Label          string `json:"label"`
	Kind           string `json:"kind,omitempty"`
	Value          string `json:"value"`
	SourceText     string `json:"sourceText"`
	SourceSentence string `json:"sourceSentence"`
}

type View struct {
	ID           uuid.UUID     `json:"id"`
	FileName     string        `json:"fileName"`
	CreatedAt    time.Time     `json:"createdAt"`
	ProcessedAt  *time.Time    `json:"processedAt"`
	Status       models.Status `json:"status"`
	DocumentType string        `json:"documentType"`
	Fields       []FieldView   `json:"fields"`
}

// View renders the extracted fields with the labels of the document's schema,
// in schema order followed by any fields the schema no longer declares.
func (r *Repository) View(ctx context.Context, id uuid.UUID, schemas SchemaLookup) (*View, error) {
	doc, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Data == nil {
		return nil, fmt.Errorf("%w: document %s has no extracted data", ErrNotFound, id)
	}
	if doc.DocumentType == nil || *doc.DocumentType == "" {
		return nil, fmt.Errorf("%w: document %s has no type", ErrNotFound, id)
	}
	schema, err := schemas.Lookup(*doc.DocumentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	view := &View{
		ID:           doc.ID,
		FileName:     doc.FileName,
		CreatedAt:    doc.CreatedAt,
		ProcessedAt:  doc.ProcessedAt,
		Status:       doc.Status,
		DocumentType: *doc.DocumentType,
		Fields:       []FieldView{},
	}

	seen := make(map[string]bool, len(doc.Data))
	add := func(name string) {
		raw, ok := doc.Data[name]
		if !ok || seen[name] {
			return
		}
		seen[name] = true
		fv, ok := decodeFieldValue(raw)
		if !ok {
			return
		}
		f, _ := schema.Field(name)
		view.Fields = append(view.Fields, FieldView{
			Name:           name,
			Label:          schema.Title(name),
			Kind:           f.Kind,
			Value:          fv.Value,
			SourceText:     fv.SourceText,
			SourceSentence: fv.SourceSentence,
		})
	}
	for _, f := range schema.Fields {
		add(f.Name)
	}
	for _, name := range sortedKeys(doc.Data) {
		add(name)
	}
	return view, nil
}

// SearchableArtifact returns the locator of the OCR searchable rendition.
func (r *Repository) SearchableArtifact(ctx context.Context, id uuid.UUID) (models.ExternalID, error) {
	doc, err := r.store.Get(ctx, id)
	if err != nil {
		return models.ExternalID{}, err
	}
	if doc.SearchableDriveID == nil || doc.SearchableItemID == nil {
		return models.ExternalID{}, ErrArtifactUnavailable
	}
	return models.ExternalID{DriveID: *doc.SearchableDriveID, ItemID: *doc.SearchableItemID}, nil
}
