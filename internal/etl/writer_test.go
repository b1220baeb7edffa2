package etl

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BartekS5/requestsync/internal/metrics"
)

func rowsFor(ids ...string) []Row {
	rows := make([]Row, len(ids))
	for i, id := range ids {
		rows[i] = Row{Columns: []string{"_id"}, Values: []interface{}{id}, InsertID: id}
	}
	return rows
}

func TestBatchWriter_AllAccepted(t *testing.T) {
	sink := &fakeSink{}
	m := metrics.NewSyncMetricsWithRegistry(prometheus.NewRegistry())
	w := NewBatchWriter(sink, &memRejects{}, m, zap.NewNop().Sugar())

	res, err := w.Write(context.Background(), "requests", rowsFor("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, WriteResult{Written: 3}, res)
	assert.Equal(t, []string{"a", "b", "c"}, sink.insertedIDs())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RowsWrittenTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesFlushedTotal))
}

func TestBatchWriter_EmptyBatch(t *testing.T) {
	sink := &fakeSink{}
	w := NewBatchWriter(sink, &memRejects{}, nil, zap.NewNop().Sugar())

	res, err := w.Write(context.Background(), "requests", nil)
	require.NoError(t, err)
	assert.Equal(t, WriteResult{}, res)
	assert.Equal(t, 0, sink.calls)
}

func TestBatchWriter_PartialFailureRecordsRejects(t *testing.T) {
	sink := &fakeSink{reject: map[string]string{"b": "invalid status"}}
	rejects := &memRejects{}
	m := metrics.NewSyncMetricsWithRegistry(prometheus.NewRegistry())
	w := NewBatchWriter(sink, rejects, m, zap.NewNop().Sugar())

	res, err := w.Write(context.Background(), "requests", rowsFor("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, WriteResult{Written: 2, Rejected: 1}, res)

	require.Len(t, rejects.entries, 1)
	assert.Equal(t, "b", rejects.entries[0].DocumentID)
	assert.Equal(t, "requests", rejects.entries[0].Table)
	assert.Equal(t, "invalid status", rejects.entries[0].Reason)
	assert.Equal(t, map[string]interface{}{"_id": "b"}, rejects.entries[0].Row)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsRejectedTotal))
}

type scriptedSink struct {
	errs []RowError
}

func (s scriptedSink) Insert(context.Context, string, []Row) ([]RowError, error) {
	return s.errs, nil
}

func TestBatchWriter_MergesAndBoundsRowErrors(t *testing.T) {
	rejects := &memRejects{}
	sink := scriptedSink{errs: []RowError{
		{Index: 1, Reason: "bad credit"},
		{Index: 1, Reason: "bad route"},
		{Index: 9, Reason: "out of range"},
	}}
	w := NewBatchWriter(sink, rejects, nil, zap.NewNop().Sugar())

	res, err := w.Write(context.Background(), "requests", rowsFor("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, WriteResult{Written: 1, Rejected: 1}, res)
	require.Len(t, rejects.entries, 1)
	assert.Equal(t, "bad credit; bad route", rejects.entries[0].Reason)
}

func TestBatchWriter_TotalFailure(t *testing.T) {
	sink := &fakeSink{failAt: map[int]bool{0: true}}
	rejects := &memRejects{}
	w := NewBatchWriter(sink, rejects, nil, zap.NewNop().Sugar())

	_, err := w.Write(context.Background(), "requests", rowsFor("a"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSinkUnavailable))
	assert.True(t, errors.Is(err, errSinkDown))
	assert.Empty(t, rejects.entries)
}

func TestBatchWriter_RejectRecordFailure(t *testing.T) {
	sink := &fakeSink{reject: map[string]string{"a": "bad"}}
	w := NewBatchWriter(sink, &memRejects{err: errors.New("disk full")}, nil, zap.NewNop().Sugar())

	_, err := w.Write(context.Background(), "requests", rowsFor("a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
