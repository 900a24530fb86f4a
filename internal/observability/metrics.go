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
			Name: "rtc_http_requests_total",
			Help: "Total number of HTTP requests processed by the rtc service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rtc_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	sessionsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rtc_sessions_live",
			Help: "Number of sessions currently held by the session store.",
		},
	)
	sessionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtc_session_events_total",
			Help: "Total number of session lifecycle events.",
		},
		[]string{"kind", "event"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rtc_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtc_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	fanoutDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtc_fanout_delivered_total",
			Help: "Total number of events delivered by the fan-out worker.",
		},
		[]string{"kind", "event"},
	)
	fanoutDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rtc_fanout_dropped_total",
			Help: "Total number of events dropped because the fan-out queue was full.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rtc_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		sessionsLive,
		sessionEventsTotal,
		wsActiveConnections,
		wsEventsTotal,
		fanoutDeliveredTotal,
		fanoutDroppedTotal,
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

func SetSessionsLive(n int) {
	sessionsLive.Set(float64(n))
}

func IncSessionEvent(kind, event string) {
	sessionEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncFanoutDelivered(kind, event string) {
	fanoutDeliveredTotal.WithLabelValues(kind, event).Inc()
}

func IncFanoutDropped() {
	fanoutDroppedTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
