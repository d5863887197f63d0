package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"microchat/internal/events"
)

// ErrClosed is returned by Next once the subscription was unsubscribed.
var ErrClosed = errors.New("subscription closed")

// Subscription is one consumer's private event queue. The queue is bounded:
// when it is full the oldest buffered event is dropped to make room.
type Subscription struct {
	ID          string
	UserID      int64
	ConnectedAt time.Time

	mu     sync.Mutex
	queue  []events.Event
	limit  int
	closed bool
	notify chan struct{}
	done   chan struct{}
}

func newSubscription(userID int64, limit int) *Subscription {
	if limit <= 0 {
		limit = DefaultBuffer
	}
	return &Subscription{
		ID:          uuid.NewString(),
		UserID:      userID,
		ConnectedAt: time.Now(),
		limit:       limit,
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// push enqueues evt and returns the event evicted to make room, if any.
func (s *Subscription) push(evt events.Event) (dropped events.Event, ok bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, false
	}
	if len(s.queue) >= s.limit {
		dropped = s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, evt)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return dropped, true
}

// Next blocks until an event is available, ctx is done or the subscription
// is closed. Events come out in enqueue order.
func (s *Subscription) Next(ctx context.Context) (events.Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			evt := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return evt, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
		case <-s.notify:
		}
	}
}

// Len reports the number of buffered events.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Done is closed when the subscription is removed from the hub.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// close marks the subscription closed and discards buffered events.
func (s *Subscription) close() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	s.closed = true
	drained := len(s.queue)
	s.queue = nil
	close(s.done)
	return drained
}
