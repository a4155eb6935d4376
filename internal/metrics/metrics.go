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
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_records_written_total",
			Help: "Attendance upserts by status",
		},
		[]string{"status"},
	)

	StatsCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_stats_cache_total",
			Help: "Stats cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_notifications_total",
			Help: "Attendance notifications by outcome",
		},
		[]string{"outcome"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// GinMiddleware observes request durations labelled by route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		APIRequestDuration.WithLabelValues(
			path,
			c.Request.Method,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}
