package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons for MessagesDropped.
const (
	ReasonOffline    = "offline"
	ReasonSendFailed = "send_failed"
	ReasonDuplicate  = "duplicate"
)

// Publish outcomes for PublishTotal.
const (
	OutcomeSuccess = "success"
	OutcomeFail    = "fail"
)

var (
	// Gateway metrics
	ConnectedUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connected_users",
			Help: "Number of distinct users with a registered live connection",
		},
	)

	MessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_delivered_total",
			Help: "Total number of events forwarded to a live connection",
		},
	)

	MessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_dropped_total",
			Help: "Total number of events not forwarded, by reason",
		},
		[]string{"reason"},
	)

	// Bus metrics
	BusMessagesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_bus_messages_received_total",
			Help: "Total number of messages received from the bus",
		},
	)

	BusDecodeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_bus_decode_errors_total",
			Help: "Total number of bus messages that could not be decoded",
		},
	)

	BusReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_bus_reconnects_total",
			Help: "Total number of times the subscription was dropped and reopened",
		},
	)

	BusConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_bus_connected",
			Help: "Whether the bus link is up (1 = connected, 0 = disconnected)",
		},
	)

	// Publisher metrics
	PublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_publish_total",
			Help: "Total number of publish calls by outcome",
		},
		[]string{"outcome"},
	)

	PublishRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_publish_retries_total",
			Help: "Total number of publish retries after a failed attempt",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(ConnectedUsers)
	prometheus.MustRegister(MessagesDelivered)
	prometheus.MustRegister(MessagesDropped)
	prometheus.MustRegister(BusMessagesReceived)
	prometheus.MustRegister(BusDecodeErrors)
	prometheus.MustRegister(BusReconnects)
	prometheus.MustRegister(BusConnected)
	prometheus.MustRegister(PublishTotal)
	prometheus.MustRegister(PublishRetries)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}

// SetBusConnected records the bus link state.
func SetBusConnected(up bool) {
	if up {
		BusConnected.Set(1)
		return
	}
	BusConnected.Set(0)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
