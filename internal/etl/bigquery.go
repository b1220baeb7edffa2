package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
)

// rowInserter is the part of *bigquery.Inserter the sink uses.
type rowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// BigQuerySink streams rows into tables of one dataset. Invalid rows are
// skipped by BigQuery and reported back as row errors.
type BigQuerySink struct {
	dataset  string
	inserter func(table string) rowInserter
	log      *zap.SugaredLogger
}

func NewBigQuerySink(client *bigquery.Client, dataset string, log *zap.SugaredLogger) *BigQuerySink {
	ds := client.Dataset(dataset)
	return &BigQuerySink{
		dataset: dataset,
		inserter: func(table string) rowInserter {
			ins := ds.Table(table).Inserter()
			ins.SkipInvalidRows = true
			ins.IgnoreUnknownValues = true
			return ins
		},
		log: log,
	}
}

func (s *BigQuerySink) Insert(ctx context.Context, table string, rows []Row) ([]RowError, error) {
	savers := make([]*rowSaver, len(rows))
	for i := range rows {
		savers[i] = &rowSaver{row: rows[i]}
	}

	err := s.inserter(table).Put(ctx, savers)
	if err == nil {
		return nil, nil
	}
	var multi bigquery.PutMultiError
	if !errors.As(err, &multi) {
		return nil, fmt.Errorf("bigquery %s.%s: %w", s.dataset, table, err)
	}

	rowErrs := make([]RowError, 0, len(multi))
	for _, re := range multi {
		rowErrs = append(rowErrs, RowError{Index: re.RowIndex, Reason: insertionReason(re)})
	}
	s.log.Debugw("bigquery skipped invalid rows", "table", table, "rows", len(rows), "invalid", len(rowErrs))
	return rowErrs, nil
}

func insertionReason(re bigquery.RowInsertionError) string {
	if len(re.Errors) == 0 {
		return "row rejected by bigquery"
	}
	msgs := make([]string, len(re.Errors))
	for i, e := range re.Errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// rowSaver implements bigquery.ValueSaver. The document id doubles as the
// insert id so BigQuery can drop replays of the same batch.
type rowSaver struct {
	row Row
}

func (r *rowSaver) Save() (map[string]bigquery.Value, string, error) {
	out := make(map[string]bigquery.Value, r.row.Len())
	for i, c := range r.row.Columns {
		out[c] = flatValue(r.row.Values[i])
	}
	return out, r.row.InsertID, nil
}
