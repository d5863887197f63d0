// Package hub routes domain events to per-user subscriber queues.
package hub

import (
	"log/slog"
	"sync"

	"microchat/internal/events"
	"microchat/internal/observability"
)

// DefaultBuffer is the queue size used when none is configured.
const DefaultBuffer = 64

// Handler observes emitted events. Handlers run on the emitting goroutine and
// must not block; wrap slow ones in a Forwarder.
type Handler func(events.Event)

// Hub maintains the active subscriptions of every user.
type Hub struct {
	subs     map[int64]map[*Subscription]struct{}
	handlers map[string][]Handler
	any      []Handler
	buffer   int
	log      *slog.Logger
	mu       sync.RWMutex
}

// New creates an empty hub whose queues hold up to buffer events.
func New(log *slog.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:     make(map[int64]map[*Subscription]struct{}),
		handlers: make(map[string][]Handler),
		buffer:   buffer,
		log:      log,
	}
}

// Subscribe registers a fresh queue for userID. A user may hold any number
// of subscriptions at once.
func (h *Hub) Subscribe(userID int64) *Subscription {
	sub := newSubscription(userID, h.buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[userID]; !ok {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.log.Debug("Subscribed", "user_id", userID, "subscription", sub.ID)
	return sub
}

// Unsubscribe removes sub and discards whatever it still buffers. Calling it
// again for the same subscription does nothing.
func (h *Hub) Unsubscribe(userID int64, sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if subs, ok := h.subs[userID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subs, userID)
		}
	}
	h.mu.Unlock()

	if drained := sub.close(); drained > 0 {
		h.log.Debug("Discarded buffered events", "user_id", userID, "subscription", sub.ID, "count", drained)
	}
}

// On registers fn for events of one kind.
func (h *Hub) On(kind string, fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[kind] = append(h.handlers[kind], fn)
}

// OnAny registers fn for every emitted event.
func (h *Hub) OnAny(fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.any = append(h.any, fn)
}

// Emit delivers evt to the subscriptions of its recipients and then runs
// the registered handlers. It never blocks on a slow consumer.
func (h *Hub) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	h.Deliver(evt)

	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.handlers[evt.Kind()])+len(h.any))
	handlers = append(handlers, h.handlers[evt.Kind()]...)
	handlers = append(handlers, h.any...)
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(evt)
	}
}

// Deliver enqueues evt for local subscribers only. Handlers are not run.
func (h *Hub) Deliver(evt events.Event) {
	if evt == nil {
		return
	}
	targets := h.snapshot(evt.Recipients())
	for _, sub := range targets {
		if dropped, ok := sub.push(evt); ok {
			observability.IncEventDelivered(evt.Kind())
			if dropped != nil {
				observability.IncEventDropped(dropped.Kind())
				h.log.Warn("Subscriber queue full, dropped oldest event",
					"user_id", sub.UserID, "subscription", sub.ID, "dropped", dropped.Kind())
			}
		}
	}
}

// snapshot copies the distinct subscriptions of recipients under the read lock.
func (h *Hub) snapshot(recipients []int64) []*Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Subscription]struct{})
	var out []*Subscription
	for _, userID := range recipients {
		for sub := range h.subs[userID] {
			if _, ok := seen[sub]; ok {
				continue
			}
			seen[sub] = struct{}{}
			out = append(out, sub)
		}
	}
	return out
}

// Subscribers reports how many subscriptions userID holds.
func (h *Hub) Subscribers(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Users reports how many users hold at least one subscription.
func (h *Hub) Users() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
