package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	streamActiveSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_stream_active_subscriptions",
			Help: "Number of open event stream connections.",
		},
		[]string{"transport"},
	)
	streamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_stream_events_total",
			Help: "Total number of event stream lifecycle events.",
		},
		[]string{"transport", "event"},
	)
	eventsDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_delivered_total",
			Help: "Events enqueued into subscriber queues.",
		},
		[]string{"kind"},
	)
	eventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_dropped_total",
			Help: "Events dropped because a queue or forwarder was full.",
		},
		[]string{"kind"},
	)
	ordinalRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_ordinal_retries_total",
			Help: "Message inserts retried after an ordinal conflict.",
		},
	)
	relayMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_messages_total",
			Help: "Events exchanged with other instances through the relay.",
		},
		[]string{"direction"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		streamActiveSubscriptions,
		streamEventsTotal,
		eventsDeliveredTotal,
		eventsDroppedTotal,
		ordinalRetriesTotal,
		relayMessagesTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncStreamActive(transport string) {
	streamActiveSubscriptions.WithLabelValues(transport).Inc()
}

func DecStreamActive(transport string) {
	streamActiveSubscriptions.WithLabelValues(transport).Dec()
}

func IncStreamEvent(transport, event string) {
	streamEventsTotal.WithLabelValues(transport, event).Inc()
}

func IncEventDelivered(kind string) {
	eventsDeliveredTotal.WithLabelValues(kind).Inc()
}

func IncEventDropped(kind string) {
	eventsDroppedTotal.WithLabelValues(kind).Inc()
}

func IncOrdinalRetry() {
	ordinalRetriesTotal.Inc()
}

func IncRelayMessage(direction string) {
	relayMessagesTotal.WithLabelValues(direction).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
