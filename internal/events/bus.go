// Package events fans document change events out to live observers.
//
// Delivery is at-most-once: a subscriber that is not keeping up loses events,
// and a subscriber only sees events published after it subscribed.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nikhilbhutani/docextract/internal/models"
)

// Publisher is implemented by anything that accepts change events.
type Publisher interface {
	Publish(ev models.ChangeEvent)
}

// RelayedPublisher accepts events that originated in another process.
type RelayedPublisher interface {
	PublishRelayed(ev models.ChangeEvent)
}

type subscriber struct {
	ch        chan models.ChangeEvent
	localOnly bool
}

const defaultSubscriberBuffer = 16

type Bus struct {
	mu     sync.RWMutex
	subs   map[int]subscriber
	nextID int
	buffer int
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[int]subscriber),
		buffer: defaultSubscriberBuffer,
		logger: logger,
	}
}

// Publish never blocks.
func (b *Bus) Publish(ev models.ChangeEvent) {
	b.publish(ev, false)
}

// PublishRelayed delivers an event received from another process. Local-only
// subscribers do not see it.
func (b *Bus) PublishRelayed(ev models.ChangeEvent) {
	b.publish(ev, true)
}

func (b *Bus) publish(ev models.ChangeEvent, relayed bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subs {
		if relayed && sub.localOnly {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("event subscriber lagging, dropping event", "subscriber", id, "document_id", ev.ID)
		}
	}
}

// Subscribe returns a channel of events that is closed once ctx is done.
func (b *Bus) Subscribe(ctx context.Context) <-chan models.ChangeEvent {
	return b.subscribe(ctx, false)
}

// SubscribeLocal is Subscribe without the events that arrived through
// PublishRelayed.
func (b *Bus) SubscribeLocal(ctx context.Context) <-chan models.ChangeEvent {
	return b.subscribe(ctx, true)
}

func (b *Bus) subscribe(ctx context.Context, localOnly bool) <-chan models.ChangeEvent {
	ch := make(chan models.ChangeEvent, b.buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscriber{ch: ch, localOnly: localOnly}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
