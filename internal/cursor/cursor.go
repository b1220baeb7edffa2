// Package cursor persists the replication resume position: the timestamp up
// to which source documents have been durably written to the sink, plus the
// identifier of the last written document at that timestamp.
//
// The position lives in two plain-text slots so operators can inspect and
// seed them by hand. The document slot may be missing or hold "null", both
// meaning the next window starts fresh at the timestamp.
package cursor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// NoDocument is written to the document slot when the cursor carries no id.
const NoDocument = "null"

// ErrInvalidCursor is returned when the timestamp slot is missing, empty or
// unparseable. The sync loop cannot continue until an operator seeds it.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a resume position.
type Cursor struct {
	Timestamp  time.Time
	DocumentID string
}

// HasDocument reports whether the cursor points inside its timestamp.
func (c Cursor) HasDocument() bool {
	return c.DocumentID != ""
}

func (c Cursor) String() string {
	id := c.DocumentID
	if id == "" {
		id = NoDocument
	}
	return fmt.Sprintf("%s/%s", c.Timestamp.Format(time.RFC3339Nano), id)
}

// ParseTimestamp parses the content of a timestamp slot. Surrounding
// whitespace is ignored; the zero time is rejected. The result is truncated
// to milliseconds, the precision of BSON dates, so that window bounds can be
// compared with document timestamps.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", ErrInvalidCursor)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not an RFC 3339 timestamp", ErrInvalidCursor, s)
	}
	t = t.Truncate(time.Millisecond)
	if t.IsZero() {
		return time.Time{}, fmt.Errorf("%w: zero timestamp", ErrInvalidCursor)
	}
	return t, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Millisecond).Format(time.RFC3339Nano)
}

func parseDocumentID(s string) string {
	s = strings.TrimSpace(s)
	if s == NoDocument {
		return ""
	}
	return s
}
