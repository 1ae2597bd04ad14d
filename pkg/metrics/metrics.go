package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AccountsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "davsync_accounts_total",
			Help: "Total number of configured accounts",
		},
	)

	ResourcesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "davsync_resources_total",
			Help: "Total number of tracked resources by account",
		},
		[]string{"account"},
	)

	DirtyResourcesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "davsync_dirty_resources_total",
			Help: "Total number of resources flagged dirty by account",
		},
		[]string{"account"},
	)

	ReconcileCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "davsync_reconcile_cycles_total",
			Help: "Total number of Resource Manager reconcile cycles by outcome",
		},
		[]string{"account", "outcome"},
	)

	ReconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "davsync_reconcile_duration_seconds",
			Help:    "Duration of a single reconcile cycle, from remote property fetch to change-set emission",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"account"},
	)

	ChangeSetSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "davsync_changeset_size",
			Help:    "Number of resources carried by a single emitted ChangeSet",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 500},
		},
		[]string{"account", "set"},
	)

	DownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "davsync_downloads_total",
			Help: "Total number of completed downloads by outcome",
		},
		[]string{"account", "outcome"},
	)

	DownloadBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "davsync_download_bytes_total",
			Help: "Total bytes received by completed downloads",
		},
		[]string{"account"},
	)

	DownloadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "davsync_download_duration_seconds",
			Help:    "Duration of a completed or failed download",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"account", "outcome"},
	)

	PendingDownloadsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "davsync_pending_downloads",
			Help: "Number of in-flight downloads by account",
		},
		[]string{"account"},
	)

	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "davsync_store_operation_duration_seconds",
			Help:    "Duration of a Store operation by name",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(AccountsTotal)
	prometheus.MustRegister(ResourcesTotal)
	prometheus.MustRegister(DirtyResourcesTotal)
	prometheus.MustRegister(ReconcileCyclesTotal)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(ChangeSetSize)
	prometheus.MustRegister(DownloadsTotal)
	prometheus.MustRegister(DownloadBytesTotal)
	prometheus.MustRegister(DownloadDuration)
	prometheus.MustRegister(PendingDownloadsGauge)
	prometheus.MustRegister(StoreOperationDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
