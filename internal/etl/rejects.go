package etl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RejectedRow is one entry of the reject record.
type RejectedRow struct {
	Table      string                 `json:"table"`
	DocumentID string                 `json:"documentId,omitempty"`
	Reason     string                 `json:"reason"`
	RejectedAt time.Time              `json:"rejectedAt"`
	Row        map[string]interface{} `json:"row"`
}

// FileRejectLog appends rejected rows to a newline-delimited JSON file.
type FileRejectLog struct {
	path string
	mu   sync.Mutex
}

func NewFileRejectLog(path string) *FileRejectLog {
	return &FileRejectLog{path: path}
}

func (l *FileRejectLog) Path() string {
	return l.path
}

// Record appends entries and syncs the file before returning.
func (l *FileRejectLog) Record(entries []RejectedRow) error {
	if len(entries) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0750); err != nil {
		return fmt.Errorf("creating reject directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("opening reject file: %w", err)
	}

	enc := json.NewEncoder(f)
	for _, e := range entries {
		if err = enc.Encode(e); err != nil {
			e.Row = stringifyRow(e.Row)
			err = enc.Encode(e)
		}
		if err != nil {
			break
		}
	}
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("writing reject file: %w", err)
	}
	return nil
}

// stringifyRow is the fallback for values encoding/json cannot represent.
func stringifyRow(row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
