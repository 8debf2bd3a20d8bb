// Package docstore is the remote document store: collections of schemaless
// documents addressed by slash-separated paths such as "reports" or
// "users/{id}/scans", with push-based snapshot subscriptions.
package docstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrInvalidQuery = errors.New("invalid query")
)

// Direction is the sort direction of a query.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Query selects documents of a single collection.
type Query struct {
	Collection string
	OrderBy    string // top-level field name; empty orders by creation time
	Direction  Direction
	Limit      int // zero means no limit
}

// Document is a stored document.
type Document struct {
	ID         string
	Collection string
	Data       map[string]any
	CreatedAt  time.Time
}

// SnapshotFunc receives the complete result set of a query.
type SnapshotFunc func(docs []Document)

// CancelFunc stops a subscription. It is safe to call more than once.
type CancelFunc func()

// Store is implemented by Memory and Postgres.
type Store interface {
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	Set(ctx context.Context, collection, id string, data map[string]any) error
	Get(ctx context.Context, collection, id string) (Document, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	List(ctx context.Context, q Query) ([]Document, error)
	// DeleteBatch removes all listed documents or none of them.
	DeleteBatch(ctx context.Context, collection string, ids []string) error
	// Subscribe delivers the current snapshot, then a fresh snapshot after
	// every change to the collection, until the returned CancelFunc is called.
	Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (CancelFunc, error)
	Close() error
}

type serverTimestamp struct{}

// ServerTimestamp is replaced by the store clock when written.
var ServerTimestamp = serverTimestamp{}

// Increment adds n to a numeric field in Update. Missing fields count as zero.
type Increment float64

// TimeLayout is the fixed-width UTC layout used when timestamps are stored as
// text, so that lexical and chronological order agree.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// TimeValue reads a timestamp field that may hold a time.Time or a string in
// TimeLayout or RFC 3339 form.
func TimeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(TimeLayout, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// Path joins collection path segments.
func Path(segments ...string) string {
	return strings.Join(segments, "/")
}
