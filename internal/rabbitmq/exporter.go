package rabbitmq

import (
	"context"
	"log/slog"
	"time"

	"microchat/internal/events"
	"microchat/internal/observability"
)

const eventRoutingPrefix = "chat_events."

// Exporter copies hub events to the exchange so other systems can follow
// chat activity. It is meant to run behind a hub.Forwarder.
type Exporter struct {
	publisher Publisher
	origin    string
	timeout   time.Duration
	log       *slog.Logger
}

func NewExporter(log *slog.Logger, publisher Publisher, origin string) *Exporter {
	return &Exporter{publisher: publisher, origin: origin, timeout: 5 * time.Second, log: log}
}

func RoutingKey(evt events.Event) string {
	return eventRoutingPrefix + evt.Kind()
}

func (e *Exporter) Export(evt events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	envelope := observability.EventEnvelope{
		EventType:  "chat_event",
		EventName:  evt.Kind(),
		Origin:     e.origin,
		Recipients: evt.Recipients(),
		Payload:    evt,
	}
	if err := e.publisher.Publish(ctx, RoutingKey(evt), envelope, observability.BuildHeaders("", "")); err != nil {
		e.log.Warn("Event export failed", "kind", evt.Kind(), "error", err)
	}
}
