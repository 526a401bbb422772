package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/govledger/internal/eventlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	govRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "govledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	govRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "govledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	govMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "govledger_mutations_total",
		Help: "Total token mutations by operation and result.",
	}, []string{"op", "result"})

	govJournalEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "govledger_journal_entries_total",
		Help: "Total journal entries appended by kind.",
	}, []string{"kind"})

	govHeadBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "govledger_head_block",
		Help: "Current block height.",
	})

	govIntegrityChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "govledger_journal_integrity_checks_total",
		Help: "Periodic journal verification results.",
	}, []string{"result"})

	govWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "govledger_webhook_deliveries_total",
		Help: "Webhook delivery attempts by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		govRequestsTotal.WithLabelValues(method, path, status).Inc()
		govRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordMutation records the outcome of a token mutation.
func RecordMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	govMutationsTotal.WithLabelValues(op, result).Inc()
}

// RecordJournalAppend records an appended journal entry and the block it
// landed in.
func RecordJournalAppend(e *eventlog.Entry) {
	govJournalEntriesTotal.WithLabelValues(string(e.Kind)).Inc()
	SetHeadBlock(e.Block)
}

// SetHeadBlock sets the head block gauge.
func SetHeadBlock(n uint64) {
	govHeadBlock.Set(float64(n))
}

// RecordIntegrityCheck records the result of a periodic journal verification.
func RecordIntegrityCheck(success bool) {
	result := "ok"
	if !success {
		result = "failed"
	}
	govIntegrityChecksTotal.WithLabelValues(result).Inc()
}

// RecordWebhookDelivery records a single webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	result := "ok"
	if !success {
		result = "failed"
	}
	govWebhookDeliveriesTotal.WithLabelValues(result).Inc()
}

// RegisterStreamGauge exposes the number of stream subscribers reported by fn.
// It must be called at most once per process.
func RegisterStreamGauge(fn func() int) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "govledger_stream_subscribers",
		Help: "Connected event stream subscribers.",
	}, func() float64 { return float64(fn()) })
}
