// Package memory provides in-process record store and search index
// implementations with fault injection for tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"tattoo-datasync/application/ports"
	"tattoo-datasync/domain/records"
	"tattoo-datasync/pkg/errors"
)

// Fault returns a non-nil error to make the named operation fail for key.
// Operations: "get", "put", "delete", "batch".
type Fault func(op string, key records.Key) error

// RecordStore is a map-backed ports.RecordStore.
type RecordStore struct {
	mu      sync.RWMutex
	items   map[records.Key]*records.Record
	fault   Fault
	scanErr error

	// BatchCalls counts chunk requests issued by BatchWrite.
	BatchCalls int
}

var _ ports.RecordStore = (*RecordStore)(nil)

// NewRecordStore creates a store holding copies of recs.
func NewRecordStore(recs ...*records.Record) *RecordStore {
	s := &RecordStore{items: make(map[records.Key]*records.Record, len(recs))}
	for _, r := range recs {
		c := r.Clone()
		c.DeriveKeys()
		s.items[c.Key()] = c
	}
	return s
}

// SetFault installs a fault hook.
func (s *RecordStore) SetFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// SetScanError makes every ScanAll fail with err.
func (s *RecordStore) SetScanError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanErr = err
}

// Len returns the number of stored records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Peek returns a copy of the stored record, or nil.
func (s *RecordStore) Peek(key records.Key) *records.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.items[key]; ok {
		return r.Clone()
	}
	return nil
}

func (s *RecordStore) ScanAll(ctx context.Context, filter ports.ScanFilter) ([]*records.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.scanErr != nil {
		return nil, errors.NewDatabaseError("scan", s.scanErr)
	}

	out := make([]*records.Record, 0, len(s.items))
	for _, r := range s.items {
		// malformed seeds are quarantined like the DynamoDB adapter does
		if r.Validate() != nil {
			continue
		}
		if filter.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PK < out[j].PK })
	return out, nil
}

func (s *RecordStore) GetOne(ctx context.Context, key records.Key) (*records.Record, error) {
	if err := s.check(ctx, "get", key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[key]
	if !ok {
		return nil, errors.NewNotFoundError("record " + key.String())
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r.Clone(), nil
}

func (s *RecordStore) PutOne(ctx context.Context, r *records.Record) error {
	c := r.Clone()
	c.DeriveKeys()
	if err := s.check(ctx, "put", c.Key()); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[c.Key()] = c
	return nil
}

func (s *RecordStore) DeleteOne(ctx context.Context, key records.Key) error {
	if err := s.check(ctx, "delete", key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// BatchWrite mirrors the DynamoDB client: a chunk containing a faulted key
// fails as a whole and later chunks still run.
func (s *RecordStore) BatchWrite(ctx context.Context, recs []*records.Record, op ports.BatchOp) (ports.BatchResult, error) {
	var result ports.BatchResult

	valid := make([]*records.Record, 0, len(recs))
	for _, r := range recs {
		c := r.Clone()
		c.DeriveKeys()
		if op == ports.BatchPut {
			if err := c.Validate(); err != nil {
				result.Failed++
				continue
			}
		}
		valid = append(valid, c)
	}

	for start := 0; start < len(valid); start += ports.BatchChunkSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		end := start + ports.BatchChunkSize
		if end > len(valid) {
			end = len(valid)
		}
		chunk := valid[start:end]
		s.mu.Lock()
		s.BatchCalls++
		s.mu.Unlock()

		if s.chunkFaulted(chunk) {
			result.Failed += len(chunk)
			continue
		}

		s.mu.Lock()
		for _, r := range chunk {
			if op == ports.BatchDelete {
				delete(s.items, r.Key())
			} else {
				s.items[r.Key()] = r
			}
		}
		s.mu.Unlock()
		result.Succeeded += len(chunk)
	}
	return result, nil
}

func (s *RecordStore) chunkFaulted(chunk []*records.Record) bool {
	s.mu.RLock()
	f := s.fault
	s.mu.RUnlock()
	if f == nil {
		return false
	}
	for _, r := range chunk {
		if f("batch", r.Key()) != nil {
			return true
		}
	}
	return false
}

func (s *RecordStore) check(ctx context.Context, op string, key records.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	f := s.fault
	s.mu.RUnlock()
	if f == nil {
		return nil
	}
	if err := f(op, key); err != nil {
		return errors.NewDatabaseError(op, err)
	}
	return nil
}
