// Prometheus instrumentation for HTTP traffic.
//
// Labels stay bounded: the route template from c.FullPath() instead of the
// raw URL, so application codes and ids in document and admin URLs never
// become label values, and the status class instead of the exact code.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests that matched no route.
const unmatchedRoute = "<unmatched>"

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "internship",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status class.",
		},
		[]string{"method", "route", "class"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "internship",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			// PDF rendering and SMTP-backed admin calls sit in the upper buckets.
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "internship",
			Subsystem: "http",
			Name:      "requests_inflight",
			Help:      "Requests currently being served.",
		},
	)

	httpResponseBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "internship",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Response body size by route.",
			// JSON envelopes up to generated PDFs.
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"route"},
	)

	httpReplays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "internship",
			Subsystem: "http",
			Name:      "idempotent_replays_total",
			Help:      "Requests answered from a stored Idempotency-Key.",
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, httpInflight, httpResponseBytes, httpReplays)
}

// statusClass maps 204 to "2xx". Anything outside 100..599 is "other".
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Metrics records request count, latency, in-flight gauge and response size.
// Replays are read from the context after the chain returns, so Metrics may
// sit before IdempotencyValidator.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method

		httpRequests.WithLabelValues(method, route, statusClass(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpResponseBytes.WithLabelValues(route).Observe(float64(size))
		}
		if IsReplay(c) {
			httpReplays.WithLabelValues(route).Inc()
		}
	}
}
