package document

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docextract/internal/models"
)

var (
	ErrNotFound            = errors.New("document not found")
	ErrAlreadyExists       = errors.New("document already exists")
	ErrArtifactUnavailable = errors.New("searchable artifact not available for this document yet")
	ErrInvalidField        = errors.New("invalid field")
)

// Store is the persistence primitive behind Repository. Implementations only
// move rows; lifecycle rules and change notification live in Repository.
type Store interface {
	Insert(ctx context.Context, doc *models.Document) (*models.Document, error)
	// UpsertStart inserts or updates the document keyed by the file's external
	// id and leaves it IN_PROGRESS at DOWNLOADING with no error.
	UpsertStart(ctx context.Context, file models.SourceFile, now time.Time) (*models.Document, error)
	// Update loads the document, applies fn and writes every mutable column back.
	Update(ctx context.Context, id uuid.UUID, fn func(doc *models.Document) error) (*models.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Document, error)
	GetByExternalID(ctx context.Context, ext models.ExternalID) (*models.Document, error)
	List(ctx context.Context, q ListQuery) ([]models.Document, error)
	Count(ctx context.Context, status *models.Status) (int, error)
}

type ListQuery struct {
	Status        *models.Status
	ProcessedFrom *time.Time
	ProcessedTo   *time.Time
	// ByProcessedAt orders by processed_at ascending instead of newest first.
	ByProcessedAt bool
	Limit         int // 0 means no limit
	Offset        int
}
