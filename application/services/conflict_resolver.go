package services

import (
	"context"
	"fmt"
	"time"

	"tattoo-datasync/application/ports"
	"tattoo-datasync/domain/records"
	"tattoo-datasync/pkg/errors"
	"tattoo-datasync/pkg/utils"

	"go.uber.org/zap"
)

// Strategy picks the winning side of a conflict.
type Strategy string

const (
	StrategyLatest    Strategy = "latest"
	StrategyStoreWins Strategy = "store_wins"
	StrategyIndexWins Strategy = "index_wins"
)

// Strategies lists the accepted strategies.
var Strategies = []Strategy{StrategyLatest, StrategyStoreWins, StrategyIndexWins}

// ParseStrategy validates a strategy name. Empty means latest.
func ParseStrategy(s string) (Strategy, error) {
	if s == "" {
		return StrategyLatest, nil
	}
	for _, st := range Strategies {
		if string(st) == s {
			return st, nil
		}
	}
	return "", errors.NewValidationError(fmt.Sprintf("unknown strategy %q (want latest, store_wins or index_wins)", s)).
		WithCode(errors.CodeUnknownStrategy)
}

type side int

const (
	sideNone side = iota
	sideStore
	sideIndex
)

// ConflictResolver brings each conflicting identifier back in step by
// copying the winning side over the losing one.
type ConflictResolver struct {
	store  ports.RecordStore
	index  ports.SearchIndex
	logger *zap.Logger
	now    func() time.Time
}

// NewConflictResolver creates a resolver.
func NewConflictResolver(store ports.RecordStore, index ports.SearchIndex, logger *zap.Logger) *ConflictResolver {
	return &ConflictResolver{
		store:  store,
		index:  index,
		logger: logger,
		now:    time.Now,
	}
}

// Resolve settles every conflict with strategy. Both sides are re-read per
// conflict; a failure is counted and the rest still run.
func (c *ConflictResolver) Resolve(ctx context.Context, conflicts []Conflict, strategy Strategy) (*ResolveStats, error) {
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}

	flow := newSyncFlowAt(StateConflictsDetected, c.logger)
	defer flow.reset()
	if err := flow.Advance(StateResolving); err != nil {
		return nil, err
	}

	stats := &ResolveStats{}
	indexWritten := false
	for _, conflict := range conflicts {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Processed++

		touchedIndex, err := c.resolveOne(ctx, conflict, strategy, stats)
		indexWritten = indexWritten || touchedIndex
		if err != nil {
			c.logger.Warn("Failed to resolve conflict",
				zap.String("id", conflict.ID),
				zap.String("kind", string(conflict.Kind)),
				zap.Error(err),
			)
			stats.Failed++
		}
	}

	if indexWritten {
		if err := c.index.Refresh(ctx); err != nil {
			c.logger.Warn("Index refresh failed", zap.Error(err))
		}
	}

	c.logger.Info("Conflict resolution finished",
		zap.String("strategy", string(strategy)),
		zap.Int("processed", stats.Processed),
		zap.Int("failed", stats.Failed),
	)
	return stats, flow.Advance(StateIdle)
}

// Reconcile detects conflicts and resolves them in one pass.
func (c *ConflictResolver) Reconcile(ctx context.Context, sync *Synchronizer, strategy Strategy) ([]Conflict, *ResolveStats, error) {
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, nil, err
	}
	conflicts, err := sync.DetectConflicts(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(conflicts) == 0 {
		return conflicts, &ResolveStats{}, nil
	}
	stats, err := c.Resolve(ctx, conflicts, strategy)
	return conflicts, stats, err
}

func (c *ConflictResolver) resolveOne(ctx context.Context, conflict Conflict, strategy Strategy, stats *ResolveStats) (bool, error) {
	key := records.KeyFor(records.TypeArtist, conflict.ID)
	if conflict.Record != nil {
		key = records.KeyFor(conflict.Record.EntityType, conflict.ID)
	}

	rec, err := c.store.GetOne(ctx, key)
	if err != nil && !errors.IsNotFound(err) {
		return false, err
	}
	if errors.IsNotFound(err) {
		rec = nil
	}
	doc, err := c.index.GetDocument(ctx, conflict.ID)
	if err != nil && !errors.IsNotFound(err) {
		return false, err
	}
	if errors.IsNotFound(err) {
		doc = nil
	}

	switch pickWinner(strategy, rec, doc) {
	case sideStore:
		if rec == nil {
			if doc == nil {
				stats.Skipped++
				return false, nil
			}
			if err := c.index.DeleteDocument(ctx, conflict.ID); err != nil && !errors.IsNotFound(err) {
				return false, err
			}
			stats.Deleted++
			return true, nil
		}
		if err := c.copyToIndex(ctx, rec); err != nil {
			return false, err
		}
		stats.ToIndex++
		return true, nil

	case sideIndex:
		if doc == nil {
			if rec == nil {
				stats.Skipped++
				return false, nil
			}
			if err := c.store.DeleteOne(ctx, rec.Key()); err != nil {
				return false, err
			}
			stats.Deleted++
			return false, nil
		}
		if err := c.copyToStore(ctx, doc, rec); err != nil {
			return false, err
		}
		stats.ToStore++
		return false, nil
	}

	stats.Skipped++
	return false, nil
}

// pickWinner applies strategy. For latest, a present side beats a missing
// one and equal timestamps go to the store.
func pickWinner(strategy Strategy, rec *records.Record, doc *records.Document) side {
	switch strategy {
	case StrategyStoreWins:
		return sideStore
	case StrategyIndexWins:
		return sideIndex
	}

	switch {
	case rec == nil && doc == nil:
		return sideNone
	case doc == nil:
		return sideStore
	case rec == nil:
		return sideIndex
	}
	if parseTime(doc.UpdatedAt).After(parseTime(rec.UpdatedAt)) {
		return sideIndex
	}
	return sideStore
}

func parseTime(s string) time.Time {
	t, err := utils.ParseRFC3339(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (c *ConflictResolver) copyToIndex(ctx context.Context, rec *records.Record) error {
	fp, err := records.Fingerprint(rec)
	if err != nil {
		return err
	}
	doc := records.ToDocument(rec)
	doc.SyncFingerprint = fp
	doc.LastSynced = c.now().UTC().Format(time.RFC3339)
	return c.index.PutDocument(ctx, rec.ID, doc)
}

func (c *ConflictResolver) copyToStore(ctx context.Context, doc *records.Document, existing *records.Record) error {
	r := records.FromDocument(doc)
	fp, err := records.Fingerprint(r)
	if err != nil {
		return err
	}
	now := c.now().UTC().Format(time.RFC3339)
	if existing != nil && existing.CreatedAt != "" {
		r.CreatedAt = existing.CreatedAt
	}
	if r.CreatedAt == "" {
		r.CreatedAt = now
	}
	r.SyncFingerprint = fp
	r.LastSynced = now
	return c.store.PutOne(ctx, r)
}
