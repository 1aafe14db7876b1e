package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	LinksCreated    prometheus.Counter
	LinksDeleted    prometheus.Counter
	IntakeRequests  *prometheus.CounterVec
	IntakeFiles     *prometheus.CounterVec
	IntakeBytes     prometheus.Counter
	Notifications   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg. A nil reg creates
// unregistered collectors, which keeps tests independent of each other.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LinksCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "docintake_links_created_total",
			Help: "Total number of personalized links created",
		}),
		LinksDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "docintake_links_deleted_total",
			Help: "Total number of links deleted",
		}),
		IntakeRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docintake_intake_requests_total",
			Help: "Intake requests by outcome kind",
		}, []string{"result"}),
		IntakeFiles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docintake_intake_files_total",
			Help: "Stored files by document category",
		}, []string{"category"}),
		IntakeBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "docintake_intake_bytes_total",
			Help: "Bytes written to upload storage",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docintake_notifications_total",
			Help: "Notification dispatch attempts by outcome",
		}, []string{"result"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docintake_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

func (m *Metrics) IncLinksCreated() {
	if m != nil {
		m.LinksCreated.Inc()
	}
}

func (m *Metrics) IncLinksDeleted() {
	if m != nil {
		m.LinksDeleted.Inc()
	}
}

// ObserveIntake records the outcome of one intake request ("ok" or an error kind).
func (m *Metrics) ObserveIntake(result string) {
	if m != nil {
		m.IntakeRequests.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ObserveStoredFile(category string, size int64) {
	if m != nil {
		m.IntakeFiles.WithLabelValues(category).Inc()
		m.IntakeBytes.Add(float64(size))
	}
}

func (m *Metrics) ObserveNotification(result string) {
	if m != nil {
		m.Notifications.WithLabelValues(result).Inc()
	}
}

// Middleware records request latency labelled by the matched route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.
			WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
