package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
	authRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_rejections_total",
			Help: "Total number of unauthorized requests",
		},
		[]string{"reason"},
	)
)

// InitPrometheus registers the HTTP metrics plus any extra collectors. Call
// this once from main.go.
func InitPrometheus(extra ...prometheus.Collector) {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, authRejections)
	prometheus.MustRegister(extra...)
}

// MonitorMiddleware records request counts and latency by route template, so
// ids in paths do not explode label cardinality.
func MonitorMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		path := c.Route().Path
		httpRequestsTotal.WithLabelValues(path, c.Method(), strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(path, c.Method()).Observe(time.Since(start).Seconds())
		return err
	}
}

// MetricsHandler serves /metrics behind basic auth.
func MetricsHandler(user, pass string) []fiber.Handler {
	return []fiber.Handler{
		basicauth.New(basicauth.Config{
			Users: map[string]string{user: pass},
			Realm: "Metrics",
		}),
		adaptor.HTTPHandler(promhttp.Handler()),
	}
}
