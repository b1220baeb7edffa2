package etl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BartekS5/requestsync/internal/cursor"
)

var errSinkDown = errors.New("sink down")

// fakeSink records every successful Insert and can be scripted to fail.
type fakeSink struct {
	mu      sync.Mutex
	batches [][]Row
	// failAt makes the n-th call (zero based) return errSinkDown.
	failAt map[int]bool
	// reject returns row errors for rows whose InsertID is listed.
	reject map[string]string
	calls  int
}

func (s *fakeSink) Insert(_ context.Context, _ string, rows []Row) ([]RowError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.calls
	s.calls++
	if s.failAt[call] {
		return nil, errSinkDown
	}
	var errs []RowError
	for i, r := range rows {
		if reason, ok := s.reject[r.InsertID]; ok {
			errs = append(errs, RowError{Index: i, Reason: reason})
		}
	}
	s.batches = append(s.batches, rows)
	return errs, nil
}

func (s *fakeSink) insertedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, b := range s.batches {
		for _, r := range b {
			ids = append(ids, r.InsertID)
		}
	}
	return ids
}

func (s *fakeSink) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, len(s.batches))
	for i, b := range s.batches {
		sizes[i] = len(b)
	}
	return sizes
}

type memRejects struct {
	entries []RejectedRow
	err     error
}

func (r *memRejects) Record(entries []RejectedRow) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entries...)
	return nil
}

// fakeSource serves documents from memory, honouring the inclusive range.
type fakeSource struct {
	docs   []Document
	err    error
	ranges [][2]time.Time
}

func (s *fakeSource) Fetch(_ context.Context, from, to time.Time) ([]Document, error) {
	s.ranges = append(s.ranges, [2]time.Time{from, to})
	if s.err != nil {
		return nil, s.err
	}
	var out []Document
	for _, d := range s.docs {
		if !d.Timestamp.Before(from) && !d.Timestamp.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

// memStore is an in-memory CursorStore that keeps every write.
type memStore struct {
	current  cursor.Cursor
	writes   []cursor.Cursor
	readErr  error
	writeErr error
}

func (s *memStore) Read() (cursor.Cursor, error) {
	if s.readErr != nil {
		return cursor.Cursor{}, s.readErr
	}
	return s.current, nil
}

func (s *memStore) Write(c cursor.Cursor) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.current = c
	s.writes = append(s.writes, c)
	return nil
}
