package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"microchat/internal/events"
	"microchat/internal/hub"
	"microchat/internal/observability"
	"microchat/internal/repositories"
	"microchat/internal/telemetry"
)

const (
	transportSSE = "sse"
	transportWS  = "ws"

	defaultKeepAlive = 25 * time.Second
	writeWait        = 10 * time.Second
)

var tracer = otel.Tracer("microchat/handlers")

// StreamHandler pushes hub events to connected clients.
type StreamHandler struct {
	resolver
	hub       *hub.Hub
	publisher telemetry.Publisher
	keepAlive time.Duration
	log       *slog.Logger
	upgrader  websocket.Upgrader
}

// NewStreamHandler builds a StreamHandler. publisher receives connection
// lifecycle envelopes and may be nil.
func NewStreamHandler(storage repositories.Storage, h *hub.Hub, publisher telemetry.Publisher, log *slog.Logger) *StreamHandler {
	return &StreamHandler{
		resolver:  resolver{entities: storage.Entities, relations: storage.Relations},
		hub:       h,
		publisher: publisher,
		keepAlive: defaultKeepAlive,
		log:       log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// WithKeepAlive sets the idle interval after which a keepalive is written.
func (h *StreamHandler) WithKeepAlive(d time.Duration) *StreamHandler {
	h.keepAlive = d
	return h
}

// frame is the websocket rendition of an SSE event.
type frame struct {
	Event string       `json:"event"`
	Data  events.Event `json:"data"`
}

// SSE streams the events of the authenticated actor until the client goes away.
func (h *StreamHandler) SSE(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	ctx, span := tracer.Start(c.Request.Context(), "stream.sse")
	defer span.End()

	sub := h.hub.Subscribe(actor.ID)
	defer h.hub.Unsubscribe(actor.ID, sub)
	info := h.connect(ctx, c, transportSSE, sub)
	reason := "client gone"
	defer func() { h.disconnect(ctx, info, reason) }()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	for {
		evt, err := h.next(ctx, sub)
		switch {
		case err == nil:
			data, err := json.Marshal(evt)
			if err != nil {
				h.log.Error("Encode event", "kind", evt.Kind(), "error", err)
				continue
			}
			c.SSEvent(evt.Kind(), string(data))
		case errors.Is(err, context.DeadlineExceeded):
			_, _ = c.Writer.WriteString(": keepalive\n\n")
		default:
			if errors.Is(err, hub.ErrClosed) {
				reason = "subscription closed"
			}
			return
		}
		if c.IsAborted() {
			reason = "write failed"
			return
		}
		c.Writer.Flush()
	}
}

// WS mirrors SSE over a websocket. Every text message carries one event.
func (h *StreamHandler) WS(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	ctx, span := tracer.Start(c.Request.Context(), "stream.ws")
	defer span.End()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "user_id", actor.ID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := h.hub.Subscribe(actor.ID)
	defer h.hub.Unsubscribe(actor.ID, sub)
	info := h.connect(ctx, c, transportWS, sub)
	reason := "server closed"
	defer func() { h.disconnect(context.WithoutCancel(ctx), info, reason) }()

	// The read side only detects the peer going away.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				cancel()
				return
			}
		}
	}()

	for {
		evt, err := h.next(ctx, sub)
		switch {
		case err == nil:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteJSON(frame{Event: evt.Kind(), Data: evt})
		case errors.Is(err, context.DeadlineExceeded):
			err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		default:
			select {
			case rerr := <-readErr:
				reason = rerr.Error()
				if !websocket.IsCloseError(rerr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncStreamEvent(transportWS, "stream_error")
				}
			default:
			}
			return
		}
		if err != nil {
			reason = err.Error()
			observability.IncStreamEvent(transportWS, "stream_error")
			return
		}
	}
}

// next waits for an event, returning context.DeadlineExceeded when the
// keepalive interval passes without one.
func (h *StreamHandler) next(ctx context.Context, sub *hub.Subscription) (events.Event, error) {
	wait, cancel := context.WithTimeout(ctx, h.keepAlive)
	defer cancel()
	evt, err := sub.Next(wait)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return evt, err
}

type connInfo struct {
	transport   string
	connID      string
	userID      int64
	deviceID    string
	ip          string
	requestID   string
	traceID     string
	connectedAt time.Time
}

func (h *StreamHandler) connect(ctx context.Context, c *gin.Context, transport string, sub *hub.Subscription) connInfo {
	info := connInfo{
		transport:   transport,
		connID:      sub.ID,
		userID:      sub.UserID,
		deviceID:    observability.DeviceIDFromRequest(c.Request),
		ip:          observability.IPFromRequest(c.Request),
		requestID:   requestIDFromContext(c),
		traceID:     observability.TraceIDFromContext(ctx),
		connectedAt: sub.ConnectedAt,
	}
	observability.IncStreamActive(transport)
	observability.IncStreamEvent(transport, "stream_connect")
	h.log.Info("Stream opened", "transport", transport, "user_id", info.userID, "conn_id", info.connID)
	h.lifecycle(ctx, info, "stream_connect", "")
	return info
}

func (h *StreamHandler) disconnect(ctx context.Context, info connInfo, reason string) {
	observability.DecStreamActive(info.transport)
	observability.IncStreamEvent(info.transport, "stream_disconnect")
	h.log.Info("Stream closed", "transport", info.transport, "user_id", info.userID, "conn_id", info.connID, "reason", reason)
	h.lifecycle(ctx, info, "stream_disconnect", reason)
}

func (h *StreamHandler) lifecycle(ctx context.Context, info connInfo, name, reason string) {
	if h.publisher == nil {
		return
	}
	envelope := observability.EventEnvelope{
		EventType:  "stream_events",
		EventName:  name,
		Recipients: []int64{info.userID},
		Payload: gin.H{
			"stream": gin.H{
				"transport":   info.transport,
				"event":       name,
				"conn_id":     info.connID,
				"duration_ms": time.Since(info.connectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": gin.H{
				"user_id":   info.userID,
				"device_id": info.deviceID,
				"ip":        info.ip,
			},
		},
	}
	headers := observability.BuildHeaders(info.requestID, info.traceID)
	if err := h.publisher.Publish(context.WithoutCancel(ctx), "stream_events."+info.transport, envelope, headers); err != nil {
		h.log.Warn("Stream lifecycle publish failed", "event", name, "error", err)
	}
}
