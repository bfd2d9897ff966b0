package ports

import (
	"context"
	"io"
	"time"

	"tattoo-datasync/domain/records"
)

// BatchOp selects the write performed by RecordStore.BatchWrite.
type BatchOp string

const (
	BatchPut    BatchOp = "put"
	BatchDelete BatchOp = "delete"
)

// BatchChunkSize is the record store's per-request batch write limit.
const BatchChunkSize = 25

// BatchResult tallies a batch write. Failed counts whole chunks that were
// rejected plus records that never reached the store.
type BatchResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ScanFilter narrows a full table scan. The zero value matches every
// directory record.
type ScanFilter struct {
	Types            []records.EntityType
	MigrationVersion string
}

// Matches reports whether r passes the filter.
func (f ScanFilter) Matches(r *records.Record) bool {
	if f.MigrationVersion != "" && r.MigrationVersion != f.MigrationVersion {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if r.EntityType == t {
			return true
		}
	}
	return false
}

// RecordStore is the key-value store holding directory records.
type RecordStore interface {
	// ScanAll pages through the whole table. Malformed items are
	// quarantined: logged and left out of the result.
	ScanAll(ctx context.Context, filter ScanFilter) ([]*records.Record, error)

	// GetOne returns a not-found AppError when the key is absent.
	GetOne(ctx context.Context, key records.Key) (*records.Record, error)

	// PutOne validates and writes a record, replacing any existing item.
	PutOne(ctx context.Context, r *records.Record) error

	DeleteOne(ctx context.Context, key records.Key) error

	// BatchWrite writes in chunks of BatchChunkSize. A failing chunk is
	// counted and the remaining chunks still run.
	BatchWrite(ctx context.Context, recs []*records.Record, op BatchOp) (BatchResult, error)
}

// SearchIndex is the document index mirroring searchable records.
type SearchIndex interface {
	// GetDocument and DeleteDocument return a not-found AppError on 404.
	GetDocument(ctx context.Context, id string) (*records.Document, error)
	PutDocument(ctx context.Context, id string, doc *records.Document) error
	DeleteDocument(ctx context.Context, id string) error

	// Search issues one request capped at size hits. A nil query matches
	// every document.
	Search(ctx context.Context, query map[string]interface{}, size int) ([]*records.Document, error)
	Count(ctx context.Context, query map[string]interface{}) (int64, error)

	// Refresh makes recent writes visible to Search and Count.
	Refresh(ctx context.Context) error
	EnsureIndex(ctx context.Context) error
}

// BlobObject describes one stored backup archive.
type BlobObject struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// BlobStore holds backup archives.
type BlobStore interface {
	// EnsureBucket creates the bucket when it does not exist.
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, body io.ReadSeeker) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobObject, error)
}

// RunLocker guards mutating runs against concurrent operators.
type RunLocker interface {
	// Acquire returns a release func, or a locked AppError when another
	// run holds the resource.
	Acquire(ctx context.Context, resource string) (release func(context.Context) error, err error)
}

// RunReport summarizes a finished run for metrics and events.
type RunReport struct {
	RunID     string         `json:"runId"`
	Operation string         `json:"operation"`
	StartedAt time.Time      `json:"startedAt"`
	Duration  time.Duration  `json:"duration"`
	Counts    map[string]int `json:"counts"`
	Failed    int            `json:"failed"`
	Err       string         `json:"error,omitempty"`
}

// RunReporter publishes run summaries. Implementations must not fail the
// run they report on.
type RunReporter interface {
	ReportRun(ctx context.Context, report RunReport)
}
