// Package metrics exposes Prometheus instrumentation for the sync loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Error stages reported through RecordError.
const (
	StageReadCursor = "read_cursor"
	StageFetch      = "fetch"
	StageWrite      = "write"
	StageReject     = "reject_record"
	StageCheckpoint = "checkpoint"
)

// SyncMetrics holds the sync loop metrics. A nil *SyncMetrics is valid and
// records nothing.
type SyncMetrics struct {
	// RowsWrittenTotal counts rows accepted by the sink.
	RowsWrittenTotal prometheus.Counter
	// RowsRejectedTotal counts rows the sink refused in skip-invalid mode.
	RowsRejectedTotal prometheus.Counter
	// BatchesFlushedTotal counts successful batch writes.
	BatchesFlushedTotal prometheus.Counter
	// WindowsProcessedTotal counts fully consumed windows.
	WindowsProcessedTotal prometheus.Counter
	// IdleWaitsTotal counts iterations where the next window was not yet safe.
	IdleWaitsTotal prometheus.Counter
	// SkipForwardMissesTotal counts windows where the last processed id was not found.
	SkipForwardMissesTotal prometheus.Counter
	// ErrorsTotal counts failed iterations by stage.
	ErrorsTotal *prometheus.CounterVec
	// CursorTimestamp is the unix time of the last persisted cursor.
	CursorTimestamp prometheus.Gauge
	// CursorLagSeconds is how far the cursor trails the wall clock.
	CursorLagSeconds prometheus.Gauge
	// BatchWriteSeconds tracks sink write latency per batch.
	BatchWriteSeconds prometheus.Histogram
}

// NewSyncMetrics creates the metrics and registers them with the default registry.
func NewSyncMetrics() *SyncMetrics {
	return newSyncMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewSyncMetricsWithRegistry registers the metrics with reg instead of the
// default registry, which keeps tests isolated.
func NewSyncMetricsWithRegistry(reg prometheus.Registerer) *SyncMetrics {
	return newSyncMetrics(promauto.With(reg))
}

func newSyncMetrics(f promauto.Factory) *SyncMetrics {
	return &SyncMetrics{
		RowsWrittenTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "requestsync_rows_written_total",
			Help: "Total number of rows written to the analytical sink",
		}),
		RowsRejectedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "requestsync_rows_rejected_total",
			Help: "Total number of rows rejected by the analytical sink",
		}),
		BatchesFlushedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "requestsync_batches_flushed_total",
			Help: "Total number of batches flushed and checkpointed",
		}),
		WindowsProcessedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "requestsync_windows_processed_total",
			Help: "Total number of time windows fully consumed",
		}),
		IdleWaitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "requestsync_idle_waits_total",
			Help: "Total number of waits because the next window was inside the lag margin",
		}),
		SkipForwardMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "requestsync_skip_forward_misses_total",
			Help: "Total number of windows replayed because the last processed document was not found",
		}),
		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "requestsync_errors_total",
			Help: "Total number of failed sync iterations by stage",
		}, []string{"stage"}),
		CursorTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "requestsync_cursor_timestamp_seconds",
			Help: "Unix timestamp of the last persisted cursor",
		}),
		CursorLagSeconds: f.NewGauge(prometheus.GaugeOpts{
			Name: "requestsync_cursor_lag_seconds",
			Help: "Seconds between the wall clock and the persisted cursor timestamp",
		}),
		BatchWriteSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "requestsync_batch_write_seconds",
			Help:    "Duration of a batch write to the analytical sink",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
	}
}

func (m *SyncMetrics) RecordBatch(written, rejected int, d time.Duration) {
	if m == nil {
		return
	}
	m.RowsWrittenTotal.Add(float64(written))
	m.RowsRejectedTotal.Add(float64(rejected))
	m.BatchesFlushedTotal.Inc()
	m.BatchWriteSeconds.Observe(d.Seconds())
}

func (m *SyncMetrics) RecordWindow() {
	if m == nil {
		return
	}
	m.WindowsProcessedTotal.Inc()
}

func (m *SyncMetrics) RecordIdleWait() {
	if m == nil {
		return
	}
	m.IdleWaitsTotal.Inc()
}

func (m *SyncMetrics) RecordSkipForwardMiss() {
	if m == nil {
		return
	}
	m.SkipForwardMissesTotal.Inc()
}

func (m *SyncMetrics) RecordError(stage string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(stage).Inc()
}

func (m *SyncMetrics) RecordCursor(ts time.Time) {
	if m == nil {
		return
	}
	m.CursorTimestamp.Set(float64(ts.UnixMilli()) / 1000)
}

func (m *SyncMetrics) RecordLag(d time.Duration) {
	if m == nil {
		return
	}
	m.CursorLagSeconds.Set(d.Seconds())
}
