package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BartekS5/requestsync/internal/metrics"
)

// ErrSinkUnavailable wraps every total sink failure.
var ErrSinkUnavailable = errors.New("sink unavailable")

// WriteResult summarises one batch write.
type WriteResult struct {
	Written  int
	Rejected int
}

// BatchWriter writes projected rows to a Sink. Rows the sink rejects are
// dropped from the batch and kept in the reject record; the rest of the
// batch counts as committed. A total sink failure is returned to the caller
// unchanged in meaning so the cursor is not advanced.
type BatchWriter struct {
	sink    Sink
	rejects RejectRecorder
	metrics *metrics.SyncMetrics
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewBatchWriter(sink Sink, rejects RejectRecorder, m *metrics.SyncMetrics, log *zap.SugaredLogger) *BatchWriter {
	return &BatchWriter{
		sink:    sink,
		rejects: rejects,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

func (w *BatchWriter) Write(ctx context.Context, table string, rows []Row) (WriteResult, error) {
	if len(rows) == 0 {
		return WriteResult{}, nil
	}
	batch := make([]Row, len(rows))
	copy(batch, rows)

	start := w.now()
	rowErrs, err := w.sink.Insert(ctx, table, batch)
	if err != nil {
		return WriteResult{}, fmt.Errorf("%w: inserting %d rows into %s: %w", ErrSinkUnavailable, len(batch), table, err)
	}

	rejected := w.collectRejects(table, batch, rowErrs)
	if len(rejected) > 0 {
		if err := w.rejects.Record(rejected); err != nil {
			w.metrics.RecordError(metrics.StageReject)
			return WriteResult{}, fmt.Errorf("recording %d rejected rows: %w", len(rejected), err)
		}
		w.log.Warnw("sink rejected rows",
			"table", table,
			"rejected", len(rejected),
			"batchSize", len(batch),
			"firstReason", rejected[0].Reason,
		)
	}

	res := WriteResult{Written: len(batch) - len(rejected), Rejected: len(rejected)}
	w.metrics.RecordBatch(res.Written, res.Rejected, w.now().Sub(start))
	return res, nil
}

// collectRejects maps row errors back to rows, merging several errors for the
// same row and ignoring indexes outside the batch.
func (w *BatchWriter) collectRejects(table string, batch []Row, rowErrs []RowError) []RejectedRow {
	if len(rowErrs) == 0 {
		return nil
	}
	at := w.now().UTC()
	byIndex := make(map[int]int, len(rowErrs))
	var out []RejectedRow
	for _, re := range rowErrs {
		if re.Index < 0 || re.Index >= len(batch) {
			w.log.Errorw("sink reported rejection for unknown row", "table", table, "index", re.Index, "reason", re.Reason)
			continue
		}
		if pos, ok := byIndex[re.Index]; ok {
			out[pos].Reason += "; " + re.Reason
			continue
		}
		byIndex[re.Index] = len(out)
		row := batch[re.Index]
		out = append(out, RejectedRow{
			Table:      table,
			DocumentID: row.InsertID,
			Reason:     re.Reason,
			RejectedAt: at,
			Row:        row.Map(),
		})
	}
	return out
}
