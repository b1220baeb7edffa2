package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BartekS5/requestsync/internal/cursor"
	"github.com/BartekS5/requestsync/internal/metrics"
)

// Config tunes the sync loop.
type Config struct {
	// Table is the sink table rows are written to.
	Table string
	// BatchSize bounds the number of rows per flush and per checkpoint.
	BatchSize int
	// Interval is the width of one window.
	Interval time.Duration
	// Lag keeps windows away from documents that may still be written or backdated.
	Lag time.Duration
	// IdleWait is the pause when the next window is not yet safe. Zero means Interval/4.
	IdleWait time.Duration
	// ErrorBackoff is the pause after a failed iteration.
	ErrorBackoff time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:    1000,
		Interval:     5 * time.Minute,
		Lag:          48 * time.Hour,
		ErrorBackoff: 10 * time.Second,
	}
}

// Validate checks the config and fills IdleWait.
func (c *Config) Validate() error {
	if c.Table == "" {
		return errors.New("sync: table is required")
	}
	if c.BatchSize < 1 {
		return errors.New("sync: batch size must be >= 1")
	}
	if c.Interval <= 0 {
		return errors.New("sync: interval must be positive")
	}
	if c.Lag < 0 {
		return errors.New("sync: lag must not be negative")
	}
	if c.ErrorBackoff <= 0 {
		return errors.New("sync: error backoff must be positive")
	}
	if c.IdleWait <= 0 {
		c.IdleWait = c.Interval / 4
	}
	return nil
}

// State names the loop phases, used in logs.
type State string

const (
	StateComputingWindow State = "computing_window"
	StateWaiting         State = "waiting"
	StateFetching        State = "fetching"
	StateWriting         State = "projecting_and_writing"
	StateAdvancing       State = "advancing_cursor"
	StateErrorBackoff    State = "error_backoff"
)

// Window is the inclusive time range of one iteration.
type Window struct {
	Start time.Time
	End   time.Time
}

// Result summarises one iteration.
type Result struct {
	// Waiting is set when the window was inside the lag margin and nothing was fetched.
	Waiting  bool
	Window   Window
	Fetched  int
	Skipped  int
	Written  int
	Rejected int
	Batches  int
	// SkipMiss is set when the cursor's document id was not in the window.
	SkipMiss bool
	// Cursor is the position persisted at the end of the iteration.
	Cursor cursor.Cursor
}

// IterationError carries the loop state in which an iteration failed.
type IterationError struct {
	State  State
	Window Window
	Batch  int
	Err    error
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("%s (window %s..%s, batch %d): %v",
		e.State, e.Window.Start.Format(time.RFC3339), e.Window.End.Format(time.RFC3339), e.Batch, e.Err)
}

func (e *IterationError) Unwrap() error {
	return e.Err
}

// Option customises a Syncer.
type Option func(*Syncer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// WithSleeper replaces the timed wait used for idle and error pauses.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Syncer) { s.sleep = sleep }
}

// Syncer replicates a source collection into a sink one window at a time,
// checkpointing the cursor after every flushed batch. A single Syncer must
// own its cursor store.
type Syncer struct {
	cfg       Config
	source    Source
	projector *Projector
	writer    *BatchWriter
	store     CursorStore
	metrics   *metrics.SyncMetrics
	log       *zap.SugaredLogger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewSyncer(
	cfg Config,
	source Source,
	projector *Projector,
	writer *BatchWriter,
	store CursorStore,
	m *metrics.SyncMetrics,
	log *zap.SugaredLogger,
	opts ...Option,
) *Syncer {
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = cfg.Interval / 4
	}
	s := &Syncer{
		cfg:       cfg,
		source:    source,
		projector: projector,
		writer:    writer,
		store:     store,
		metrics:   m,
		log:       log,
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run iterates until ctx is cancelled or the cursor becomes invalid. Failed
// iterations are logged and retried after ErrorBackoff from the persisted
// cursor. The returned error is ctx.Err() on cancellation.
func (s *Syncer) Run(ctx context.Context) error {
	s.log.Infow("sync loop started",
		"table", s.cfg.Table,
		"batchSize", s.cfg.BatchSize,
		"interval", s.cfg.Interval,
		"lag", s.cfg.Lag,
		"columns", len(s.projector.Columns()),
	)
	for {
		res, err := s.RunOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var wait time.Duration
		switch {
		case errors.Is(err, cursor.ErrInvalidCursor):
			s.log.Errorw("cursor is invalid; seed a valid timestamp before restarting", "error", err)
			return err
		case err != nil:
			s.log.Errorw("sync iteration failed", "state", StateErrorBackoff, "backoff", s.cfg.ErrorBackoff, "error", err)
			wait = s.cfg.ErrorBackoff
		case res.Waiting:
			s.log.Debugw("window inside lag margin", "state", StateWaiting, "windowEnd", res.Window.End, "wait", s.cfg.IdleWait)
			wait = s.cfg.IdleWait
		}

		if wait > 0 {
			if err := s.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
}

// RunOnce performs a single iteration: read the cursor, compute the window,
// and either report that the window is not yet safe or replicate it.
func (s *Syncer) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	cur, err := s.store.Read()
	if err != nil {
		s.metrics.RecordError(metrics.StageReadCursor)
		return res, &IterationError{State: StateComputingWindow, Err: fmt.Errorf("reading cursor: %w", err)}
	}
	res.Cursor = cur
	now := s.now()
	s.metrics.RecordLag(now.Sub(cur.Timestamp))

	w := Window{Start: cur.Timestamp, End: cur.Timestamp.Add(s.cfg.Interval)}
	res.Window = w
	safeLimit := now.Add(-s.cfg.Lag)
	if !safeLimit.After(w.End) {
		res.Waiting = true
		s.metrics.RecordIdleWait()
		return res, nil
	}

	docs, err := s.source.Fetch(ctx, w.Start, w.End)
	if err != nil {
		s.metrics.RecordError(metrics.StageFetch)
		return res, &IterationError{State: StateFetching, Window: w, Err: err}
	}
	res.Fetched = len(docs)

	pending, skipped, found := skipSeen(docs, cur.DocumentID)
	res.Skipped = skipped
	if !found {
		res.SkipMiss = true
		s.metrics.RecordSkipForwardMiss()
		s.log.Errorw("last processed document not found in window; replaying the whole window",
			"windowStart", w.Start,
			"windowEnd", w.End,
			"documentId", cur.DocumentID,
			"fetched", len(docs),
		)
	}

	batch := make([]Row, 0, s.cfg.BatchSize)
	for i, doc := range pending {
		batch = append(batch, s.projector.Project(doc))
		if len(batch) < s.cfg.BatchSize && i < len(pending)-1 {
			continue
		}

		wr, err := s.writer.Write(ctx, s.cfg.Table, batch)
		if err != nil {
			s.metrics.RecordError(metrics.StageWrite)
			return res, &IterationError{State: StateWriting, Window: w, Batch: res.Batches + 1, Err: err}
		}
		res.Batches++
		res.Written += wr.Written
		res.Rejected += wr.Rejected

		next := cursor.Cursor{Timestamp: doc.Timestamp, DocumentID: doc.ID}
		if err := s.advance(&res, next); err != nil {
			return res, &IterationError{State: StateAdvancing, Window: w, Batch: res.Batches, Err: err}
		}
		s.log.Infow("batch flushed",
			"batch", res.Batches,
			"rows", len(batch),
			"rejected", wr.Rejected,
			"cursor", next.String(),
		)
		batch = make([]Row, 0, s.cfg.BatchSize)
	}

	if err := s.advance(&res, windowEndCursor(w, docs)); err != nil {
		return res, &IterationError{State: StateAdvancing, Window: w, Batch: res.Batches, Err: err}
	}
	s.metrics.RecordWindow()
	s.log.Infow("window synced",
		"windowStart", w.Start,
		"windowEnd", w.End,
		"fetched", res.Fetched,
		"skipped", res.Skipped,
		"written", res.Written,
		"rejected", res.Rejected,
		"batches", res.Batches,
	)
	return res, nil
}

// advance persists next, refusing to move the cursor backwards.
func (s *Syncer) advance(res *Result, next cursor.Cursor) error {
	if next.Timestamp.Before(res.Cursor.Timestamp) {
		return fmt.Errorf("cursor would move backwards from %s to %s", res.Cursor, next)
	}
	if err := s.store.Write(next); err != nil {
		s.metrics.RecordError(metrics.StageCheckpoint)
		return fmt.Errorf("writing cursor: %w", err)
	}
	res.Cursor = next
	s.metrics.RecordCursor(next.Timestamp)
	return nil
}

// skipSeen drops the documents up to and including lastID. When lastID is
// set but absent, nothing is dropped and found is false.
func skipSeen(docs []Document, lastID string) (pending []Document, skipped int, found bool) {
	if lastID == "" {
		return docs, 0, true
	}
	for i, d := range docs {
		if d.ID == lastID {
			return docs[i+1:], i + 1, true
		}
	}
	return docs, 0, false
}

// windowEndCursor is the position after a fully consumed window. The id of
// the last document is kept only when it sits exactly on the window end,
// because the next window includes that instant again.
func windowEndCursor(w Window, docs []Document) cursor.Cursor {
	c := cursor.Cursor{Timestamp: w.End}
	if n := len(docs); n > 0 && docs[n-1].Timestamp.Equal(w.End) {
		c.DocumentID = docs[n-1].ID
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
