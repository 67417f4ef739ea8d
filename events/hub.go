package events

import (
	"log/slog"
	"sync"
)

// subscriberBuffer is the per-subscriber queue depth; events beyond it are
// dropped for that subscriber rather than blocking the producer.
const subscriberBuffer = 64

// SnapshotFunc produces the state sent to a subscriber on connect.
type SnapshotFunc func() Snapshot

// Hub fans lifecycle events out to all live subscribers. Delivery is
// best-effort per subscriber; per-subscriber order matches emission order.
type Hub struct {
	mu       sync.RWMutex
	subs     map[*Subscriber]struct{}
	snapshot SnapshotFunc
	logger   *slog.Logger
}

// Subscriber is one registered event consumer.
type Subscriber struct {
	ch chan Event
}

// Events returns the subscriber's delivery channel. It is closed on
// unsubscribe.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// NewHub creates a Hub. The snapshot function is invoked once per subscriber
// at subscribe time; it must be safe for concurrent use.
func NewHub(snapshot SnapshotFunc, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:     make(map[*Subscriber]struct{}),
		snapshot: snapshot,
		logger:   logger,
	}
}

// Subscribe registers a consumer. The first event on the channel is the
// snapshot; live events follow in emission order. The returned function
// unsubscribes and closes the channel.
func (h *Hub) Subscribe() (*Subscriber, func()) {
	sub := &Subscriber{ch: make(chan Event, subscriberBuffer)}

	// Snapshot and register under the same lock so the snapshot is always
	// the first delivery and no event published after the snapshot state is
	// missed.
	h.mu.Lock()
	sub.ch <- Event{Type: TypeSnapshot, Payload: h.snapshot()}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub, unsubscribe
}

// Emit broadcasts an event to all live subscribers. A slow subscriber's
// event is dropped; other subscribers are unaffected.
func (h *Hub) Emit(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- e:
		default:
			h.logger.Debug("event dropped for slow subscriber", slog.String("type", e.Type))
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
