package memory

import (
	"context"
	"sort"
	"sync"

	"tattoo-datasync/application/ports"
	"tattoo-datasync/domain/records"
	"tattoo-datasync/pkg/errors"
)

// SearchIndex is a map-backed ports.SearchIndex. Search ignores the query
// body and returns documents ordered by id.
type SearchIndex struct {
	mu        sync.RWMutex
	docs      map[string]*records.Document
	fault     Fault
	searchErr error

	Refreshes int
	Ensured   bool
}

var _ ports.SearchIndex = (*SearchIndex)(nil)

// NewSearchIndex creates an index holding copies of docs.
func NewSearchIndex(docs ...*records.Document) *SearchIndex {
	idx := &SearchIndex{docs: make(map[string]*records.Document, len(docs))}
	for _, d := range docs {
		idx.docs[d.ID] = copyDocument(d)
	}
	return idx
}

// SetFault installs a fault hook. The key passed is records.KeyFor(ARTIST, id).
func (i *SearchIndex) SetFault(f Fault) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.fault = f
}

// SetSearchError makes Search fail with err.
func (i *SearchIndex) SetSearchError(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.searchErr = err
}

// Len returns the number of indexed documents.
func (i *SearchIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}

// Peek returns a copy of the document, or nil.
func (i *SearchIndex) Peek(id string) *records.Document {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if d, ok := i.docs[id]; ok {
		return copyDocument(d)
	}
	return nil
}

func (i *SearchIndex) GetDocument(ctx context.Context, id string) (*records.Document, error) {
	if err := i.check(ctx, "get", id); err != nil {
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	d, ok := i.docs[id]
	if !ok {
		return nil, errors.NewNotFoundError("document " + id)
	}
	return copyDocument(d), nil
}

func (i *SearchIndex) PutDocument(ctx context.Context, id string, doc *records.Document) error {
	if err := i.check(ctx, "put", id); err != nil {
		return err
	}
	c := copyDocument(doc)
	c.ID = id
	i.mu.Lock()
	defer i.mu.Unlock()
	i.docs[id] = c
	return nil
}

func (i *SearchIndex) DeleteDocument(ctx context.Context, id string) error {
	if err := i.check(ctx, "delete", id); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.docs[id]; !ok {
		return errors.NewNotFoundError("document " + id)
	}
	delete(i.docs, id)
	return nil
}

func (i *SearchIndex) Search(ctx context.Context, _ map[string]interface{}, size int) ([]*records.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.searchErr != nil {
		return nil, errors.NewExternalError("search-index", i.searchErr)
	}

	ids := make([]string, 0, len(i.docs))
	for id := range i.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if size >= 0 && len(ids) > size {
		ids = ids[:size]
	}

	out := make([]*records.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyDocument(i.docs[id]))
	}
	return out, nil
}

func (i *SearchIndex) Count(ctx context.Context, _ map[string]interface{}) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.searchErr != nil {
		return 0, errors.NewExternalError("search-index", i.searchErr)
	}
	return int64(len(i.docs)), nil
}

func (i *SearchIndex) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Refreshes++
	return nil
}

func (i *SearchIndex) EnsureIndex(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Ensured = true
	return nil
}

func (i *SearchIndex) check(ctx context.Context, op, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.RLock()
	f := i.fault
	i.mu.RUnlock()
	if f == nil {
		return nil
	}
	if err := f(op, records.KeyFor(records.TypeArtist, id)); err != nil {
		return errors.NewExternalError("search-index", err)
	}
	return nil
}

func copyDocument(d *records.Document) *records.Document {
	c := records.ToDocument(records.FromDocument(d))
	c.EntityType = d.EntityType
	return c
}
