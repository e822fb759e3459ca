// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	chatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiforge_chat_requests_total",
			Help: "Chat requests by provider, mode (stream or sync) and status.",
		},
		[]string{"provider", "mode", "status"},
	)

	chatDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aiforge_chat_duration_seconds",
			Help:    "Time until a chat reply (or the end of a stream) was delivered.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "mode"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiforge_http_requests_total",
			Help: "Handled HTTP requests by method, route and status code.",
		},
		[]string{"method", "route", "status"},
	)
)

const (
	ModeSync   = "sync"
	ModeStream = "stream"

	StatusOK    = "ok"
	StatusError = "error"
)

// ObserveChat records one finished chat request.
func ObserveChat(provider, mode, status string, d time.Duration) {
	chatRequestsTotal.WithLabelValues(provider, mode, status).Inc()
	chatDuration.WithLabelValues(provider, mode).Observe(d.Seconds())
}

// Middleware counts requests by matched route; unmatched paths share one label.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func Handler() http.Handler { return promhttp.Handler() }
