package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetricsWithRegistry(reg)

	m.RecordBatch(998, 2, 150*time.Millisecond)
	m.RecordBatch(500, 0, 80*time.Millisecond)
	m.RecordWindow()
	m.RecordIdleWait()
	m.RecordSkipForwardMiss()
	m.RecordError(StageFetch)
	m.RecordError(StageFetch)
	m.RecordError(StageWrite)
	m.RecordCursor(time.Unix(1704067200, 500000000))
	m.RecordLag(49 * time.Hour)

	assert.Equal(t, 1498.0, testutil.ToFloat64(m.RowsWrittenTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsRejectedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BatchesFlushedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WindowsProcessedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IdleWaitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkipForwardMissesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(StageFetch)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(StageWrite)))
	assert.Equal(t, 1704067200.5, testutil.ToFloat64(m.CursorTimestamp))
	assert.Equal(t, 176400.0, testutil.ToFloat64(m.CursorLagSeconds))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 10)
}

func TestSyncMetrics_NilIsNoop(t *testing.T) {
	var m *SyncMetrics
	assert.NotPanics(t, func() {
		m.RecordBatch(1, 1, time.Second)
		m.RecordWindow()
		m.RecordIdleWait()
		m.RecordSkipForwardMiss()
		m.RecordError(StageCheckpoint)
		m.RecordCursor(time.Now())
		m.RecordLag(time.Minute)
	})
}
