package cursor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Default slot file names inside the state directory.
const (
	TimestampFile = "request-timestamp.txt"
	DocumentFile  = "request-last-document.txt"
)

// FileStore keeps the cursor in two files. It assumes a single writer.
type FileStore struct {
	timestampPath string
	documentPath  string
}

// NewFileStore returns a store using the default slot names inside dir.
func NewFileStore(dir string) *FileStore {
	return NewFileStoreWithPaths(filepath.Join(dir, TimestampFile), filepath.Join(dir, DocumentFile))
}

func NewFileStoreWithPaths(timestampPath, documentPath string) *FileStore {
	return &FileStore{timestampPath: timestampPath, documentPath: documentPath}
}

func (s *FileStore) TimestampPath() string { return s.timestampPath }
func (s *FileStore) DocumentPath() string  { return s.documentPath }

// Exists reports whether the timestamp slot has been written.
func (s *FileStore) Exists() (bool, error) {
	_, err := os.Stat(s.timestampPath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Read loads the cursor. A missing or unparseable timestamp slot yields an
// error wrapping ErrInvalidCursor; other I/O errors are returned as is so the
// caller can retry them. A missing document slot is not an error.
func (s *FileStore) Read() (Cursor, error) {
	raw, err := os.ReadFile(s.timestampPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Cursor{}, fmt.Errorf("%w: reading %s: %w", ErrInvalidCursor, s.timestampPath, err)
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("reading %s: %w", s.timestampPath, err)
	}
	ts, err := ParseTimestamp(string(raw))
	if err != nil {
		return Cursor{}, fmt.Errorf("%s: %w", s.timestampPath, err)
	}

	c := Cursor{Timestamp: ts}
	doc, err := os.ReadFile(s.documentPath)
	switch {
	case err == nil:
		c.DocumentID = parseDocumentID(string(doc))
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Cursor{}, fmt.Errorf("reading %s: %w", s.documentPath, err)
	}
	return c, nil
}

// Write persists c, replacing the previous cursor.
//
// The document slot is written before the timestamp slot. A crash between
// the two leaves the previous timestamp next to the new id; resuming from
// there replays the window and skips forward to the new id, so nothing that
// was not yet written is ever skipped.
func (s *FileStore) Write(c Cursor) error {
	if c.Timestamp.IsZero() {
		return fmt.Errorf("%w: refusing to write zero timestamp", ErrInvalidCursor)
	}
	id := c.DocumentID
	if id == "" {
		id = NoDocument
	}
	if err := writeFileAtomic(s.documentPath, []byte(id)); err != nil {
		return fmt.Errorf("writing document slot: %w", err)
	}
	if err := writeFileAtomic(s.timestampPath, []byte(formatTimestamp(c.Timestamp))); err != nil {
		return fmt.Errorf("writing timestamp slot: %w", err)
	}
	return nil
}

// Seed writes an initial cursor with no document id. An existing cursor is
// kept unless overwrite is set. It reports whether anything was written.
func (s *FileStore) Seed(ts time.Time, overwrite bool) (bool, error) {
	if !overwrite {
		exists, err := s.Exists()
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}
	if err := s.Write(Cursor{Timestamp: ts}); err != nil {
		return false, err
	}
	return true, nil
}

// writeFileAtomic replaces path with data through a synced temp file and a
// rename, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := f.Name()

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry after a rename. Not every platform
// supports it, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
