package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docextract/internal/models"
)

// Store is the JSON key/value contract the view cache runs on. Cache implements it.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

const defaultViewTTL = 10 * time.Minute

// ViewCache caches rendered document views until the document changes.
type ViewCache struct {
	store Store
	ttl   time.Duration
}

func NewViewCache(store Store, ttl time.Duration) *ViewCache {
	if ttl <= 0 {
		ttl = defaultViewTTL
	}
	return &ViewCache{store: store, ttl: ttl}
}

func viewKey(id uuid.UUID) string {
	return "documents:view:" + id.String()
}

// Get loads a cached view into dest. It reports false on a miss or any cache error.
func (v *ViewCache) Get(ctx context.Context, id uuid.UUID, dest interface{}) bool {
	err := v.store.Get(ctx, viewKey(id), dest)
	if err != nil && err != ErrMiss {
		slog.Warn("view cache read failed", "document_id", id, "error", err)
	}
	return err == nil
}

func (v *ViewCache) Put(ctx context.Context, id uuid.UUID, view interface{}) {
	if err := v.store.Set(ctx, viewKey(id), view, v.ttl); err != nil {
		slog.Warn("view cache write failed", "document_id", id, "error", err)
	}
}

func (v *ViewCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return v.store.Delete(ctx, viewKey(id))
}

// Subscriber is the subscribing half of the event bus.
type Subscriber interface {
	Subscribe(ctx context.Context) <-chan models.ChangeEvent
}

// RunInvalidator drops the cached view of every document that changes. It
// returns when ctx is done.
func (v *ViewCache) RunInvalidator(ctx context.Context, bus Subscriber) {
	for ev := range bus.Subscribe(ctx) {
		if err := v.Invalidate(ctx, ev.ID); err != nil {
			slog.Warn("view cache invalidation failed", "document_id", ev.ID, "error", err)
		}
	}
}
