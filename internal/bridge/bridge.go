// ABOUTME: In-memory fan-out bridge from background producers to front-end consumers
// ABOUTME: Each subscription owns a bounded inbox; publishing never blocks and drops the oldest event when full

package bridge

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/familiar/internal/metrics"
)

// DefaultInboxSize is the per-subscription buffer used when none is configured.
const DefaultInboxSize = 64

// Kind classifies an event.
type Kind string

const (
	KindReminderDue Kind = "reminder_due"
	KindAsyncResult Kind = "plugin_async_result"
	KindSystem      Kind = "system"
	KindWebhook     Kind = "webhook"
)

// Event is a notification delivered to every subscription.
type Event struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Payload   string            `json:"payload"`
	Source    string            `json:"source,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Publisher is implemented by anything events can be handed to.
type Publisher interface {
	Publish(ev Event)
}

// Bridge fans events out to subscriptions.
type Bridge struct {
	// mu is held exclusively for the whole of Publish so every subscription
	// sees events in the same order, and no inbox is closed mid-delivery.
	mu        sync.Mutex
	subs      map[string]*Subscription
	inboxSize int
	closed    bool
	dropped   atomic.Uint64
	published atomic.Uint64
	logger    *slog.Logger
}

// New creates a bridge. A non-positive inboxSize uses DefaultInboxSize.
// Pass nil logger for default.
func New(inboxSize int, logger *slog.Logger) *Bridge {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		subs:      make(map[string]*Subscription),
		inboxSize: inboxSize,
		logger:    logger.With("component", "bridge"),
	}
}

// Subscription is one consumer's view of the bridge.
type Subscription struct {
	ID      string
	Name    string
	inbox   chan Event
	done    chan struct{}
	dropped atomic.Uint64
}

// Events returns the inbox. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.inbox
}

// Dropped returns how many events were discarded from this inbox.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Subscribe registers a consumer. The subscription receives every event
// published after this call returns and ends when ctx is cancelled,
// Unsubscribe is called, or the bridge is closed.
func (b *Bridge) Subscribe(ctx context.Context, name string) *Subscription {
	sub := &Subscription{
		ID:    uuid.New().String(),
		Name:  name,
		inbox: make(chan Event, b.inboxSize),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.inbox)
		close(sub.done)
		return sub
	}
	b.subs[sub.ID] = sub
	b.mu.Unlock()

	metrics.BridgeSubscribers.Inc()
	b.logger.Debug("subscriber added", "sub_id", sub.ID, "name", name)

	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(sub.ID)
		case <-sub.done:
		}
	}()

	return sub
}

// Publish delivers ev to every subscription without blocking. A full inbox
// loses its oldest event to make room.
func (b *Bridge) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.published.Add(1)
	metrics.BridgeEventsPublished.WithLabelValues(string(ev.Kind)).Inc()

	for _, sub := range b.subs {
		if b.deliver(sub, ev) {
			b.dropped.Add(1)
			metrics.BridgeEventsDropped.WithLabelValues(sub.Name).Inc()
			b.logger.Debug("dropped oldest event for slow subscriber",
				"sub_id", sub.ID,
				"name", sub.Name,
				"event_id", ev.ID)
		}
	}
}

// deliver enqueues ev, evicting the oldest event if needed. It reports
// whether an event was dropped. Must be called with mu held.
func (b *Bridge) deliver(sub *Subscription, ev Event) bool {
	dropped := false
	for {
		select {
		case sub.inbox <- ev:
			return dropped
		default:
		}
		// The consumer may drain concurrently, so the eviction can miss.
		select {
		case <-sub.inbox:
			if !dropped {
				sub.dropped.Add(1)
				dropped = true
			}
		default:
		}
	}
}

// Unsubscribe ends a subscription and closes its inbox.
func (b *Bridge) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	b.remove(sub)

	b.logger.Debug("subscriber removed", "sub_id", id, "name", sub.Name)
}

// remove must be called with mu held.
func (b *Bridge) remove(sub *Subscription) {
	delete(b.subs, sub.ID)
	close(sub.inbox)
	close(sub.done)
	metrics.BridgeSubscribers.Dec()
}

// Dropped returns the total number of events dropped across all subscriptions.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// Published returns the number of events accepted by Publish.
func (b *Bridge) Published() uint64 {
	return b.published.Load()
}

// SubscriptionStats describes one subscription for diagnostics.
type SubscriptionStats struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Pending  int    `json:"pending"`
	Capacity int    `json:"capacity"`
	Dropped  uint64 `json:"dropped"`
}

// Stats lists active subscriptions ordered by name then ID.
func (b *Bridge) Stats() []SubscriptionStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := make([]SubscriptionStats, 0, len(b.subs))
	for _, sub := range b.subs {
		stats = append(stats, SubscriptionStats{
			ID:       sub.ID,
			Name:     sub.Name,
			Pending:  len(sub.inbox),
			Capacity: cap(sub.inbox),
			Dropped:  sub.dropped.Load(),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Name != stats[j].Name {
			return stats[i].Name < stats[j].Name
		}
		return stats[i].ID < stats[j].ID
	})
	return stats
}

// Close ends every subscription. Later publishes are ignored.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		b.remove(sub)
	}

	b.logger.Debug("bridge closed")
}
