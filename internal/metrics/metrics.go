package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the comment service.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec   // zhutalk_comment_operations_total{operation,result}
	OperationDuration *prometheus.HistogramVec // zhutalk_comment_operation_duration_seconds{operation}
	ThreadNodes       prometheus.Histogram     // zhutalk_thread_nodes
	OrphansPromoted   prometheus.Counter       // zhutalk_thread_orphans_promoted_total
	HTTPRequests      *prometheus.CounterVec   // zhutalk_http_requests_total{method,route,status}
}

// New registers the collectors on registry, or the default registerer when nil.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	f := promauto.With(registry)
	return &Metrics{
		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zhutalk_comment_operations_total",
			Help: "Comment operations by operation and result",
		}, []string{"operation", "result"}),

		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zhutalk_comment_operation_duration_seconds",
			Help:    "Comment operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		ThreadNodes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "zhutalk_thread_nodes",
			Help:    "Number of nodes in each built comment tree",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),

		OrphansPromoted: f.NewCounter(prometheus.CounterOpts{
			Name: "zhutalk_thread_orphans_promoted_total",
			Help: "Replies promoted to roots because their parent was not visible",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zhutalk_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
	}
}

// RecordOperation records the outcome of a list/create/edit/delete call.
// A nil receiver is a no-op so tests can omit metrics.
func (m *Metrics) RecordOperation(operation, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordTree records the size of a built tree and how many replies lost their parent.
func (m *Metrics) RecordTree(nodes, orphans int) {
	if m == nil {
		return
	}
	m.ThreadNodes.Observe(float64(nodes))
	if orphans > 0 {
		m.OrphansPromoted.Add(float64(orphans))
	}
}

// Middleware counts requests by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
