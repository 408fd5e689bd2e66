package document

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docextract/internal/models"
)

// MemoryStore keeps documents in process memory. It backs the service when no
// database is configured and is used throughout the tests.
type MemoryStore struct {
	mu    sync.Mutex
	docs  map[uuid.UUID]*models.Document
	byExt map[models.ExternalID]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[uuid.UUID]*models.Document),
		byExt: make(map[models.ExternalID]uuid.UUID),
	}
}

func (s *MemoryStore) Insert(_ context.Context, doc *models.Document) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ext := doc.ExternalID()
	if _, ok := s.byExt[ext]; ok {
		return nil, ErrAlreadyExists
	}
	stored := doc.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	s.docs[stored.ID] = stored
	s.byExt[ext] = stored.ID
	return stored.Clone(), nil
}

func (s *MemoryStore) UpsertStart(_ context.Context, file models.SourceFile, now time.Time) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	step := models.StepDownloading
	id, ok := s.byExt[file.ExternalID]
	if !ok {
		doc := &models.Document{
			ID:        uuid.New(),
			DriveID:   file.ExternalID.DriveID,
			ItemID:    file.ExternalID.ItemID,
			CreatedAt: now,
		}
		id = doc.ID
		s.docs[id] = doc
		s.byExt[file.ExternalID] = id
	}

	doc := s.docs[id]
	doc.SiteID = file.SiteID
	doc.WebURL = file.WebURL
	doc.FileName = file.FileName
	doc.FileSize = file.FileSize
	doc.ContentType = file.ContentType
	doc.DocumentType = file.DocumentType
	doc.Status = models.StatusInProgress
	doc.CurrentStep = &step
	doc.ErrorMessage = nil
	doc.UpdatedAt = now
	return doc.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, fn func(doc *models.Document) error) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	// identity is immutable
	working.ID, working.DriveID, working.ItemID, working.CreatedAt = current.ID, current.DriveID, current.ItemID, current.CreatedAt
	s.docs[id] = working
	return working.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) GetByExternalID(_ context.Context, ext models.ExternalID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byExt[ext]
	if !ok {
		return nil, ErrNotFound
	}
	return s.docs[id].Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, q ListQuery) ([]models.Document, error) {
	s.mu.Lock()
	var out []models.Document
	for _, d := range s.docs {
		if matches(d, q) {
			out = append(out, *d.Clone())
		}
	}
	s.mu.Unlock()

	if q.ByProcessedAt {
		sort.Slice(out, func(i, j int) bool {
			a, b := out[i].ProcessedAt, out[j].ProcessedAt
			if a == nil || b == nil {
				return b == nil && a != nil
			}
			return a.Before(*b)
		})
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context, status *models.Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, d := range s.docs {
		if status == nil || d.Status == *status {
			n++
		}
	}
	return n, nil
}

func matches(d *models.Document, q ListQuery) bool {
	if q.Status != nil && d.Status != *q.Status {
		return false
	}
	if q.ProcessedFrom != nil || q.ProcessedTo != nil {
		if d.ProcessedAt == nil {
			return false
		}
		if q.ProcessedFrom != nil && d.ProcessedAt.Before(*q.ProcessedFrom) {
			return false
		}
		if q.ProcessedTo != nil && d.ProcessedAt.After(*q.ProcessedTo) {
			return false
		}
	}
	return true
}
