package services

import (
	"context"
	"sort"
	"time"

	"tattoo-datasync/application/ports"
	"tattoo-datasync/domain/records"
	"tattoo-datasync/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ConflictKind classifies a disagreement between the two stores.
type ConflictKind string

const (
	ConflictDataMismatch   ConflictKind = "data_mismatch"
	ConflictMissingInIndex ConflictKind = "missing_in_search_index"
	ConflictMissingInStore ConflictKind = "missing_in_record_store"
)

// Conflict is one identifier on which the record store and the search index
// disagree.
type Conflict struct {
	ID               string            `json:"id"`
	Kind             ConflictKind      `json:"kind"`
	Record           *records.Record   `json:"record,omitempty"`
	Document         *records.Document `json:"document,omitempty"`
	StoreFingerprint string            `json:"storeFingerprint,omitempty"`
	IndexFingerprint string            `json:"indexFingerprint,omitempty"`
}

// SynchronizerConfig tunes the synchronizer.
type SynchronizerConfig struct {
	// MaxDocuments caps the single search request reading the index.
	MaxDocuments int
	// SyncPointDir receives sync point files.
	SyncPointDir string
}

// Synchronizer copies searchable records between the record store and the
// search index and detects where they disagree.
type Synchronizer struct {
	store  ports.RecordStore
	index  ports.SearchIndex
	cfg    SynchronizerConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewSynchronizer creates a synchronizer.
func NewSynchronizer(store ports.RecordStore, index ports.SearchIndex, cfg SynchronizerConfig, logger *zap.Logger) *Synchronizer {
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = 10000
	}
	if cfg.SyncPointDir == "" {
		cfg.SyncPointDir = "./sync-points"
	}
	return &Synchronizer{
		store:  store,
		index:  index,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func searchableTypes() []records.EntityType {
	var out []records.EntityType
	for _, t := range records.AllTypes {
		if t.Searchable() {
			out = append(out, t)
		}
	}
	return out
}

// SyncStoreToIndex writes every searchable record whose fingerprint differs
// from the one stored on its document.
func (s *Synchronizer) SyncStoreToIndex(ctx context.Context) (*SyncStats, error) {
	recs, err := s.store.ScanAll(ctx, ports.ScanFilter{Types: searchableTypes()})
	if err != nil {
		return nil, errors.Wrap(err, "sync store to index")
	}

	stats := &SyncStats{}
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Processed++

		fp, err := records.Fingerprint(r)
		if err != nil {
			s.logger.Warn("Cannot fingerprint record", zap.String("pk", r.PK), zap.Error(err))
			stats.Failed++
			continue
		}

		existing, err := s.index.GetDocument(ctx, r.ID)
		if err != nil && !errors.IsNotFound(err) {
			s.logger.Warn("Failed to read document", zap.String("id", r.ID), zap.Error(err))
			stats.Failed++
			continue
		}
		if existing != nil && existing.SyncFingerprint == fp {
			stats.Skipped++
			continue
		}

		doc := records.ToDocument(r)
		doc.SyncFingerprint = fp
		doc.LastSynced = s.timestamp()
		if err := s.index.PutDocument(ctx, r.ID, doc); err != nil {
			s.logger.Warn("Failed to index record", zap.String("pk", r.PK), zap.Error(err))
			stats.Failed++
			continue
		}
		stats.Synced++
	}

	if stats.Synced > 0 {
		if err := s.index.Refresh(ctx); err != nil {
			s.logger.Warn("Index refresh failed", zap.Error(err))
		}
	}
	s.logStats("store_to_index", stats)
	return stats, nil
}

// SyncIndexToStore writes every document whose record is missing or
// differs, rebuilding keys and GSI fields from the document. Existing
// createdAt values are kept.
func (s *Synchronizer) SyncIndexToStore(ctx context.Context) (*SyncStats, error) {
	docs, err := s.searchAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "sync index to store")
	}

	stats := &SyncStats{}
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Processed++

		r := records.FromDocument(d)
		fp, err := records.Fingerprint(r)
		if err != nil {
			s.logger.Warn("Cannot fingerprint document", zap.String("id", d.ID), zap.Error(err))
			stats.Failed++
			continue
		}

		existing, err := s.store.GetOne(ctx, r.Key())
		if err != nil && !errors.IsNotFound(err) {
			s.logger.Warn("Failed to read record", zap.String("pk", r.PK), zap.Error(err))
			stats.Failed++
			continue
		}
		if existing != nil {
			existingFP, err := records.Fingerprint(existing)
			if err == nil && existingFP == fp {
				stats.Skipped++
				continue
			}
			if existing.CreatedAt != "" {
				r.CreatedAt = existing.CreatedAt
			}
		}

		now := s.timestamp()
		if r.CreatedAt == "" {
			r.CreatedAt = now
		}
		if r.UpdatedAt == "" {
			r.UpdatedAt = now
		}
		r.SyncFingerprint = fp
		r.LastSynced = now

		if err := s.store.PutOne(ctx, r); err != nil {
			s.logger.Warn("Failed to write record", zap.String("pk", r.PK), zap.Error(err))
			stats.Failed++
			continue
		}
		stats.Synced++
	}

	s.logStats("index_to_store", stats)
	return stats, nil
}

// DetectConflicts reads both sides concurrently and classifies every
// identifier. The result is sorted by id.
func (s *Synchronizer) DetectConflicts(ctx context.Context) ([]Conflict, error) {
	flow := NewSyncFlow(s.logger)
	defer flow.reset()

	if err := flow.Advance(StateScanning); err != nil {
		return nil, err
	}
	state, err := s.readState(ctx, ports.ScanFilter{Types: searchableTypes()})
	if err != nil {
		return nil, err
	}

	conflicts := classify(state, s.logger)
	if len(conflicts) > 0 {
		if err := flow.Advance(StateConflictsDetected); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Conflict detection finished",
		zap.Int("records", len(state.records)),
		zap.Int("documents", len(state.documents)),
		zap.Int("conflicts", len(conflicts)),
	)
	return conflicts, nil
}

// storeState is one read of both sides.
type storeState struct {
	records   []*records.Record
	documents []*records.Document
}

func (s *Synchronizer) readState(ctx context.Context, filter ports.ScanFilter) (*storeState, error) {
	state := &storeState{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := s.store.ScanAll(gctx, filter)
		if err != nil {
			return errors.Wrap(err, "scan record store")
		}
		state.records = recs
		return nil
	})
	g.Go(func() error {
		docs, err := s.searchAll(gctx)
		if err != nil {
			return errors.Wrap(err, "read search index")
		}
		state.documents = docs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return state, nil
}

func classify(state *storeState, logger *zap.Logger) []Conflict {
	byID := make(map[string]*records.Record, len(state.records))
	for _, r := range state.records {
		if r.EntityType.Searchable() {
			byID[r.ID] = r
		}
	}
	docs := make(map[string]*records.Document, len(state.documents))
	for _, d := range state.documents {
		docs[d.ID] = d
	}

	var conflicts []Conflict
	for id, r := range byID {
		storeFP, err := records.Fingerprint(r)
		if err != nil {
			logger.Warn("Cannot fingerprint record", zap.String("pk", r.PK), zap.Error(err))
			continue
		}
		d, ok := docs[id]
		if !ok {
			conflicts = append(conflicts, Conflict{ID: id, Kind: ConflictMissingInIndex, Record: r, StoreFingerprint: storeFP})
			continue
		}
		indexFP, err := records.DocumentFingerprint(d)
		if err != nil {
			logger.Warn("Cannot fingerprint document", zap.String("id", id), zap.Error(err))
			continue
		}
		if storeFP != indexFP {
			conflicts = append(conflicts, Conflict{
				ID:               id,
				Kind:             ConflictDataMismatch,
				Record:           r,
				Document:         d,
				StoreFingerprint: storeFP,
				IndexFingerprint: indexFP,
			})
		}
	}
	for id, d := range docs {
		if _, ok := byID[id]; ok {
			continue
		}
		indexFP, err := records.DocumentFingerprint(d)
		if err != nil {
			logger.Warn("Cannot fingerprint document", zap.String("id", id), zap.Error(err))
			continue
		}
		conflicts = append(conflicts, Conflict{ID: id, Kind: ConflictMissingInStore, Document: d, IndexFingerprint: indexFP})
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].ID < conflicts[j].ID })
	return conflicts
}

func (s *Synchronizer) searchAll(ctx context.Context) ([]*records.Document, error) {
	docs, err := s.index.Search(ctx, nil, s.cfg.MaxDocuments)
	if err != nil {
		return nil, err
	}
	if len(docs) >= s.cfg.MaxDocuments {
		s.logger.Warn("Search index read hit the size cap; results may be incomplete",
			zap.Int("cap", s.cfg.MaxDocuments),
		)
	}
	return docs, nil
}

func (s *Synchronizer) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func (s *Synchronizer) logStats(direction string, stats *SyncStats) {
	s.logger.Info("Sync finished",
		zap.String("direction", direction),
		zap.Int("processed", stats.Processed),
		zap.Int("synced", stats.Synced),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
}
