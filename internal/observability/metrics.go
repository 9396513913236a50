package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOK     = "ok"
	ResultFailed = "failed"

	DirectionTX = "tx"
	DirectionRX = "rx"

	OutcomeDelivered = "delivered"
	OutcomeRejected  = "rejected"
	OutcomeDiscarded = "discarded"

	EdgeQueued    = "queued"
	EdgeCoalesced = "coalesced"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spilink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"link", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spilink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"link", "method", "path", "status"},
	)
	transactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spilink",
			Subsystem: "transport",
			Name:      "transactions_total",
			Help:      "Duplex exchanges performed, by result.",
		},
		[]string{"link", "result"},
	)
	transactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spilink",
			Subsystem: "transport",
			Name:      "transaction_duration_seconds",
			Help:      "Duplex exchange duration in seconds.",
			Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
		},
		[]string{"link"},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spilink",
			Subsystem: "transport",
			Name:      "frames_total",
			Help:      "Frames by direction and outcome.",
		},
		[]string{"link", "direction", "outcome"},
	)
	edges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spilink",
			Subsystem: "transport",
			Name:      "readiness_edges_total",
			Help:      "Handshake edges, split into queued activations and coalesced ones.",
		},
		[]string{"link", "outcome"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "spilink",
			Subsystem: "transport",
			Name:      "queue_depth",
			Help:      "Frames waiting in the transmit and receive queues.",
		},
		[]string{"link", "queue"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, transactions, transactionDuration, frames, edges, queueDepth)
	})
}

func RecordHTTPRequest(link, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(link, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(link, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordTransaction(link string, err error, duration time.Duration) {
	RegisterMetrics()
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	transactions.WithLabelValues(link, result).Inc()
	transactionDuration.WithLabelValues(link).Observe(duration.Seconds())
}

func RecordFrame(link, direction, outcome string) {
	RegisterMetrics()
	frames.WithLabelValues(link, direction, outcome).Inc()
}

func RecordFrames(link, direction, outcome string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	frames.WithLabelValues(link, direction, outcome).Add(float64(n))
}

func RecordEdge(link string, coalesced bool) {
	RegisterMetrics()
	outcome := EdgeQueued
	if coalesced {
		outcome = EdgeCoalesced
	}
	edges.WithLabelValues(link, outcome).Inc()
}

func SetQueueDepth(link, queue string, n int) {
	RegisterMetrics()
	queueDepth.WithLabelValues(link, queue).Set(float64(n))
}
