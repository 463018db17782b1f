package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nstbot"

var (
	submissionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_submissions_total",
			Help:      "Count of images assigned to requests, by resulting request status.",
		},
		[]string{"status"},
	)
	transferCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Count of finished transfer jobs, by outcome.",
		},
		[]string{"outcome"},
	)
	transferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Wall time of transfer jobs, by outcome.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"outcome"},
	)
	rejectionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_rejections_total",
			Help:      "Count of transfer jobs rejected because the queue was full.",
		},
	)
	activeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_transfers",
			Help:      "Number of transfer jobs currently running.",
		},
	)
	lossGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoint_loss",
			Help:      "Loss reported at the most recent checkpoint, by component.",
		},
		[]string{"component"},
	)
)

var registerMetrics sync.Once

// Register all metrics with reg. Later calls are no-ops.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(submissionCounter)
		reg.MustRegister(transferCounter)
		reg.MustRegister(transferDuration)
		reg.MustRegister(rejectionCounter)
		reg.MustRegister(activeGauge)
		reg.MustRegister(lossGauge)
	})
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordSubmission counts an image assignment that left the request in status.
func RecordSubmission(status string) {
	submissionCounter.WithLabelValues(status).Inc()
}

// RecordTransfer records a finished job with its outcome and duration.
func RecordTransfer(outcome string, took time.Duration) {
	transferCounter.WithLabelValues(outcome).Inc()
	transferDuration.WithLabelValues(outcome).Observe(took.Seconds())
}

// RecordRejection counts a job that could not be queued.
func RecordRejection() {
	rejectionCounter.Inc()
}

// SetActive sets the number of running jobs.
func SetActive(n int) {
	activeGauge.Set(float64(n))
}

// ObserveLoss records the loss of the latest checkpoint.
func ObserveLoss(total, content, style float64) {
	lossGauge.WithLabelValues("total").Set(total)
	lossGauge.WithLabelValues("content").Set(content)
	lossGauge.WithLabelValues("style").Set(style)
}
