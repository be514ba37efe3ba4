package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EchoedRequests counts the requests answered by the echo application
	EchoedRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "request_echo_echoed_requests_total",
		Help: "The total number of requests echoed back since daemon start",
	})

	// UWSGIRequests counts requests received over the uwsgi protocol
	UWSGIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "request_echo_uwsgi_requests_total",
		Help: "The total number of uwsgi requests served, by status code",
	}, []string{"status_code"})

	// UWSGIRequestDuration records how long it takes to serve a uwsgi request
	UWSGIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "request_echo_uwsgi_request_duration_seconds",
		Help: "The time (in seconds) it takes to serve a uwsgi request",
	}, []string{"status_code"})

	// UWSGIPacketErrors counts uwsgi packets that could not be decoded
	UWSGIPacketErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "request_echo_uwsgi_packet_errors_total",
		Help: "The total number of malformed uwsgi packets received",
	})

	// LimitListenerMaxConns is the maximum number of concurrent connections
	LimitListenerMaxConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "request_echo_limit_listener_max_conns",
		Help: "The maximum number of concurrent connections allowed across all listeners",
	})

	// LimitListenerConcurrentConns is the number of connections being served
	LimitListenerConcurrentConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "request_echo_limit_listener_concurrent_conns",
		Help: "The number of concurrent connections",
	})

	// LimitListenerWaitingConns is the number of connections waiting for a slot
	LimitListenerWaitingConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "request_echo_limit_listener_waiting_conns",
		Help: "The number of connections waiting for a free connection slot",
	})

	// RateLimitSourceIPCacheRequests is the number of source IP rate limiter cache lookups
	RateLimitSourceIPCacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "request_echo_rate_limit_source_ip_cache_requests",
		Help: "The number of source_ip cache hits/misses in the rate limiter",
	}, []string{"op", "cache"})

	// RateLimitSourceIPCachedEntries is the number of entries in the source IP rate limiter cache
	RateLimitSourceIPCachedEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "request_echo_rate_limit_source_ip_cached_entries",
		Help: "The number of entries in the rate limiter cache per source IP",
	}, []string{"op"})

	// RateLimitSourceIPBlockedCount is the number of source IPs that have been blocked
	RateLimitSourceIPBlockedCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "request_echo_rate_limit_source_ip_blocked_count",
		Help: "The number of source IPs that have been blocked by the rate limiter",
	}, []string{"enforced"})
)

// MustRegister collectors with the Prometheus client
func MustRegister() {
	prometheus.MustRegister(
		EchoedRequests,
		UWSGIRequests,
		UWSGIRequestDuration,
		UWSGIPacketErrors,
		LimitListenerMaxConns,
		LimitListenerConcurrentConns,
		LimitListenerWaitingConns,
		RateLimitSourceIPCacheRequests,
		RateLimitSourceIPCachedEntries,
		RateLimitSourceIPBlockedCount,
	)
}
