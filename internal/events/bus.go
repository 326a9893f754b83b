// Package events fans engine notifications out to in-process subscribers
// such as the SSE endpoint and the Kafka sink.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-radar-overlay/internal/domain"
	"github.com/couchcryptid/storm-radar-overlay/internal/observability"
)

// Type names a notification.
type Type string

const (
	TypeFrameChanged     Type = "frame-changed"
	TypeRadarLoaded      Type = "radar-loaded"
	TypeWarningsLoaded   Type = "warnings-loaded"
	TypeAnimationStarted Type = "animation-started"
	TypeAnimationStopped Type = "animation-stopped"
	TypeError            Type = "error"
)

// Notification is one published event.
type Notification struct {
	ID        uint64    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// FrameChanged is emitted when a transition completes.
type FrameChanged struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Total     int       `json:"total"`
}

// RadarLoaded is emitted when a frame set has been built.
type RadarLoaded struct {
	Timestamp time.Time `json:"timestamp"`
}

// WarningsLoaded carries the hazards active at the visible frame.
type WarningsLoaded struct {
	Count    int             `json:"count"`
	Warnings []domain.Hazard `json:"warnings"`
}

// Error reports a non-fatal failure in one subsystem.
type Error struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 100

// Bus delivers notifications to subscribers without ever blocking the
// publisher. A subscriber whose buffer is full misses the notification.
type Bus struct {
	mu         sync.RWMutex
	subs       map[string]chan Notification
	seq        atomic.Uint64
	bufferSize int
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewBus creates an empty bus.
func NewBus(clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Bus {
	return &Bus{
		subs:       make(map[string]chan Notification),
		bufferSize: DefaultBufferSize,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// Subscribe registers a subscriber. Subscribing an existing id closes and
// replaces its previous channel.
func (b *Bus) Subscribe(id string) <-chan Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subs[id]; ok {
		close(old)
	}
	ch := make(chan Notification, b.bufferSize)
	b.subs[id] = ch
	b.logger.Debug("subscriber added", "subscriber", id, "total", len(b.subs))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. It is a no-op
// when id has since been re-subscribed, so only the holder of the current
// channel can remove it.
func (b *Bus) Unsubscribe(id string, ch <-chan Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.subs[id]
	if !ok || (<-chan Notification)(cur) != ch {
		return
	}
	close(cur)
	delete(b.subs, id)
	b.logger.Debug("subscriber removed", "subscriber", id, "remaining", len(b.subs))
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish stamps and delivers a notification to every subscriber.
func (b *Bus) Publish(typ Type, data any) {
	n := Notification{
		ID:        b.seq.Add(1),
		Type:      typ,
		Timestamp: b.clock.Now(),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	b.metrics.NotificationsPublished.Inc()
	for id, ch := range b.subs {
		select {
		case ch <- n:
		default:
			b.metrics.NotificationsDropped.Inc()
			b.logger.Warn("subscriber buffer full, dropping notification", "subscriber", id, "type", typ)
		}
	}
}

// Close removes every subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
