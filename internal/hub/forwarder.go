package hub

import (
	"context"
	"log/slog"

	"microchat/internal/events"
	"microchat/internal/observability"
)

// Forwarder hands events to a slow handler on its own goroutine. It is best
// effort: when its buffer is full new events are dropped.
type Forwarder struct {
	name  string
	log   *slog.Logger
	queue chan events.Event
	fn    Handler
}

func NewForwarder(log *slog.Logger, name string, size int, fn Handler) *Forwarder {
	if size <= 0 {
		size = DefaultBuffer
	}
	return &Forwarder{name: name, log: log, queue: make(chan events.Event, size), fn: fn}
}

// Handle is a Handler suitable for Hub.On and Hub.OnAny.
func (f *Forwarder) Handle(evt events.Event) {
	select {
	case f.queue <- evt:
	default:
		observability.IncEventDropped(evt.Kind())
		f.log.Warn("Forwarder buffer full, event lost", "forwarder", f.name, "kind", evt.Kind())
	}
}

// Run consumes the buffer until ctx is done.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case evt := <-f.queue:
			f.fn(evt)
		case <-ctx.Done():
			f.log.Debug("Context done, stopping forwarder", "forwarder", f.name)
			return
		}
	}
}
