// Package relay shares hub events between instances over a Redis channel.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"microchat/internal/events"
	"microchat/internal/observability"
)

// Deliverer pushes an event to local subscribers without re-running
// handlers, so a relayed event is never published again.
type Deliverer interface {
	Deliver(evt events.Event)
}

type frame struct {
	Origin     string          `json:"origin"`
	Kind       string          `json:"kind"`
	Recipients []int64         `json:"recipients"`
	Data       json.RawMessage `json:"data"`
}

// publishTimeout bounds one PUBLISH. The client must be built with
// ContextTimeoutEnabled for the deadline to reach the socket.
const publishTimeout = 3 * time.Second

type Relay struct {
	client  *redis.Client
	channel string
	origin  string
	target  Deliverer
	log     *slog.Logger
	timeout time.Duration
}

func New(log *slog.Logger, client *redis.Client, channel, origin string, target Deliverer) *Relay {
	return &Relay{client: client, channel: channel, origin: origin, target: target, log: log, timeout: publishTimeout}
}

// Publish is a hub handler. It should run behind a forwarder since it does
// network I/O.
func (r *Relay) Publish(evt events.Event) {
	payload, err := r.encode(evt)
	if err != nil {
		r.log.Error("Relay encode failed", "kind", evt.Kind(), "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.log.Warn("Relay publish failed", "kind", evt.Kind(), "error", err)
		return
	}
	observability.IncRelayMessage("out")
}

// Run consumes the channel until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info("Relay subscribed", "channel", r.channel, "origin", r.origin)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.receive([]byte(msg.Payload))
		}
	}
}

func (r *Relay) encode(evt events.Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame{
		Origin:     r.origin,
		Kind:       evt.Kind(),
		Recipients: evt.Recipients(),
		Data:       data,
	})
}

func (r *Relay) receive(payload []byte) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		r.log.Warn("Relay frame rejected", "error", err)
		return
	}
	if f.Origin == r.origin {
		return
	}
	evt, err := events.Decode(f.Kind, f.Data, f.Recipients)
	if err != nil {
		r.log.Warn("Relay event rejected", "kind", f.Kind, "error", err)
		return
	}
	observability.IncRelayMessage("in")
	r.target.Deliver(evt)
}
