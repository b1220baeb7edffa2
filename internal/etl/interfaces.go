package etl

import (
	"context"
	"time"

	"github.com/BartekS5/requestsync/internal/cursor"
)

// Document is a source record with its identifier already rendered as text.
type Document struct {
	ID        string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Source returns every document whose ordering timestamp lies in [from, to],
// ascending by timestamp and then by identifier.
type Source interface {
	Fetch(ctx context.Context, from, to time.Time) ([]Document, error)
}

// Sink inserts rows into the named table in skip-invalid mode. Rows the sink
// refuses are reported through RowError; a non-nil error means nothing can be
// assumed about the batch.
type Sink interface {
	Insert(ctx context.Context, table string, rows []Row) ([]RowError, error)
}

// RowError describes a single row rejected by a Sink.
type RowError struct {
	Index  int
	Reason string
}

// CursorStore is the durable resume position.
type CursorStore interface {
	Read() (cursor.Cursor, error)
	Write(c cursor.Cursor) error
}

// RejectRecorder keeps rows a sink refused for later inspection.
type RejectRecorder interface {
	Record(entries []RejectedRow) error
}
