package services

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"tattoo-datasync/application/ports"
	"tattoo-datasync/domain/records"
	apperrors "tattoo-datasync/pkg/errors"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func newArtist(id string, styles ...string) *records.Record {
	if len(styles) == 0 {
		styles = []string{"blackwork"}
	}
	r := &records.Record{
		EntityType:  records.TypeArtist,
		ID:          id,
		Name:        "Artist " + id,
		Styles:      styles,
		StudioID:    "s1",
		Description: "custom work",
		Pricing:     map[string]interface{}{"currency": "GBP", "hourlyRate": 120},
		CreatedAt:   "2024-01-01T00:00:00Z",
		UpdatedAt:   "2024-01-02T00:00:00Z",
	}
	r.SetLocation(51.5074, -0.1278)
	r.DeriveKeys()
	return r
}

func newStudio(id string) *records.Record {
	r := &records.Record{
		EntityType: records.TypeStudio,
		ID:         id,
		Name:       "Studio " + id,
		CreatedAt:  "2024-01-01T00:00:00Z",
		UpdatedAt:  "2024-01-01T00:00:00Z",
	}
	r.SetLocation(53.4808, -2.2426)
	r.DeriveKeys()
	return r
}

func newStyle(id string) *records.Record {
	r := &records.Record{EntityType: records.TypeStyle, ID: id, Name: strings.ReplaceAll(id, "_", " ")}
	r.DeriveKeys()
	return r
}

// indexedDoc returns the document a clean store->index sync would write.
func indexedDoc(t *testing.T, r *records.Record) *records.Document {
	t.Helper()
	fp, err := records.Fingerprint(r)
	require.NoError(t, err)
	d := records.ToDocument(r)
	d.SyncFingerprint = fp
	return d
}

func newSynchronizer(store ports.RecordStore, index ports.SearchIndex, dir string) *Synchronizer {
	s := NewSynchronizer(store, index, SynchronizerConfig{MaxDocuments: 100, SyncPointDir: dir}, zap.NewNop())
	s.now = clock
	return s
}

func newResolver(store ports.RecordStore, index ports.SearchIndex) *ConflictResolver {
	r := NewConflictResolver(store, index, zap.NewNop())
	r.now = clock
	return r
}

func conflictIDs(conflicts []Conflict) map[string]ConflictKind {
	out := make(map[string]ConflictKind, len(conflicts))
	for _, c := range conflicts {
		out[c.ID] = c.Kind
	}
	return out
}

// stripVolatile clears the fields a round trip may rewrite.
func stripVolatile(recs []*records.Record) []*records.Record {
	out := make([]*records.Record, len(recs))
	for i, r := range recs {
		c := r.Clone()
		c.CreatedAt, c.UpdatedAt, c.SyncFingerprint, c.LastSynced = "", "", "", ""
		out[i] = c
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PK < out[j].PK })
	return out
}

func fingerprints(t *testing.T, recs []*records.Record) map[string]string {
	t.Helper()
	out := make(map[string]string, len(recs))
	for _, r := range recs {
		fp, err := records.Fingerprint(r)
		require.NoError(t, err)
		out[r.PK] = fp
	}
	return out
}

// fakeBlobs is an in-memory ports.BlobStore.
type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	modified  map[string]time.Time
	ensureErr error
	ensured   int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}, modified: map[string]time.Time{}}
}

func (f *fakeBlobs) EnsureBucket(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured++
	return f.ensureErr
}

func (f *fakeBlobs) Put(_ context.Context, key string, body io.ReadSeeker) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.modified[key] = fixedNow.Add(time.Duration(len(f.objects)) * time.Minute)
	return nil
}

func (f *fakeBlobs) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, apperrors.NewNotFoundError("object " + key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobs) List(_ context.Context, prefix string) ([]ports.BlobObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ports.BlobObject
	for k, v := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ports.BlobObject{Key: k, Size: int64(len(v)), LastModified: f.modified[k]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

var _ ports.BlobStore = (*fakeBlobs)(nil)
