package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CourierRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awb_courier_requests_total",
			Help: "Courier API attempts by host and outcome",
		},
		[]string{"host", "outcome"},
	)

	CourierRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awb_courier_retries_total",
			Help: "Courier API retries by reason",
		},
		[]string{"reason"},
	)

	CourierRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "awb_courier_request_duration_seconds",
			Help:    "Courier API attempt latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"host"},
	)

	TokenRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awb_token_refreshes_total",
			Help: "Bearer token refreshes by family",
		},
		[]string{"family"},
	)

	ManifestCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awb_manifest_cache_total",
			Help: "Manifest cache lookups by result",
		},
		[]string{"result"},
	)

	LifecycleOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awb_lifecycle_outcomes_total",
			Help: "Lifecycle transition outcomes",
		},
		[]string{"transition", "outcome"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awb_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "awb_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(CourierRequestsTotal)
	prometheus.MustRegister(CourierRetriesTotal)
	prometheus.MustRegister(CourierRequestDuration)
	prometheus.MustRegister(TokenRefreshesTotal)
	prometheus.MustRegister(ManifestCacheTotal)
	prometheus.MustRegister(LifecycleOutcomesTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}

// Transport records courier attempts. It satisfies transport.Observer.
type Transport struct{}

func (Transport) ObserveAttempt(host string, status int, elapsed time.Duration, err error) {
	outcome := "error"
	if err == nil {
		outcome = strconv.Itoa(status)
	}
	CourierRequestsTotal.WithLabelValues(host, outcome).Inc()
	CourierRequestDuration.WithLabelValues(host).Observe(elapsed.Seconds())
}

func (Transport) ObserveRetry(reason string) {
	CourierRetriesTotal.WithLabelValues(reason).Inc()
}

func Outcome(transition, outcome string) {
	LifecycleOutcomesTotal.WithLabelValues(transition, outcome).Inc()
}

// Instrument is gin middleware counting requests per route template.
func Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
