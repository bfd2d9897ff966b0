package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tattoo-datasync/domain/records"
	"tattoo-datasync/infrastructure/persistence/memory"
	apperrors "tattoo-datasync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSyncStoreToIndex_SeedsIndexThenSkips(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := memory.NewRecordStore(newArtist("a1"), newArtist("a2"), newArtist("a3"), newStudio("s1"))
	index := memory.NewSearchIndex()
	sync := newSynchronizer(store, index, t.TempDir())

	// Act
	stats, err := sync.SyncStoreToIndex(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, &SyncStats{Processed: 3, Synced: 3}, stats)
	assert.Equal(t, 3, index.Len())
	assert.Equal(t, 1, index.Refreshes)
	for _, id := range []string{"a1", "a2", "a3"} {
		doc := index.Peek(id)
		require.NotNil(t, doc)
		rec := store.Peek(records.KeyFor(records.TypeArtist, id))
		assert.Equal(t, records.MustFingerprint(rec), doc.SyncFingerprint)
		assert.Equal(t, "2024-06-01T09:30:00Z", doc.LastSynced)
	}

	again, err := sync.SyncStoreToIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, &SyncStats{Processed: 3, Skipped: 3}, again)
	assert.Equal(t, 1, index.Refreshes)
}

func TestSyncStoreToIndex_CountsPerRecordFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore(newArtist("a1"), newArtist("a2"))
	index := memory.NewSearchIndex()
	index.SetFault(func(op string, key records.Key) error {
		if op == "put" && key.PK == "ARTIST#a2" {
			return errors.New("503 Service Unavailable")
		}
		return nil
	})

	stats, err := newSynchronizer(store, index, t.TempDir()).SyncStoreToIndex(ctx)

	require.NoError(t, err)
	assert.Equal(t, &SyncStats{Processed: 2, Synced: 1, Failed: 1}, stats)
	assert.Nil(t, index.Peek("a2"))
}

func TestSyncStoreToIndex_ScanFailureAborts(t *testing.T) {
	store := memory.NewRecordStore()
	store.SetScanError(errors.New("connection refused"))

	_, err := newSynchronizer(store, memory.NewSearchIndex(), t.TempDir()).SyncStoreToIndex(context.Background())

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeDatabase))
}

func TestSyncIndexToStore_RebuildsKeysAndKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	existing := newArtist("a1")
	store := memory.NewRecordStore(existing)

	changed := newArtist("a1", "dotwork")
	changed.CreatedAt = "2030-01-01T00:00:00Z"
	fresh := newArtist("a9", "japanese")
	fresh.CreatedAt = ""
	index := memory.NewSearchIndex(indexedDoc(t, changed), indexedDoc(t, fresh))

	stats, err := newSynchronizer(store, index, t.TempDir()).SyncIndexToStore(ctx)

	require.NoError(t, err)
	assert.Equal(t, &SyncStats{Processed: 2, Synced: 2}, stats)

	a1 := store.Peek(records.KeyFor(records.TypeArtist, "a1"))
	require.NotNil(t, a1)
	assert.Equal(t, []string{"dotwork"}, a1.Styles)
	assert.Equal(t, existing.CreatedAt, a1.CreatedAt)
	assert.Equal(t, "STYLE#dotwork", a1.GSI1PK)
	assert.Equal(t, "GEOHASH#"+a1.Geohash+"#ARTIST#a1", a1.GSI1SK)

	a9 := store.Peek(records.KeyFor(records.TypeArtist, "a9"))
	require.NotNil(t, a9)
	assert.Equal(t, "PROFILE", a9.SK)
	assert.Equal(t, "2024-06-01T09:30:00Z", a9.CreatedAt)

	again, err := newSynchronizer(store, index, t.TempDir()).SyncIndexToStore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Skipped)
}

func TestSyncIndexToStore_InvalidDocumentCountsAsFailure(t *testing.T) {
	bad := indexedDoc(t, newArtist("a1"))
	bad.Styles = []string{"not-a-style"}
	index := memory.NewSearchIndex(bad)
	store := memory.NewRecordStore()

	stats, err := newSynchronizer(store, index, t.TempDir()).SyncIndexToStore(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, store.Len())
}

func TestDetectConflicts_FlagsStoreOnlyMutation(t *testing.T) {
	// Arrange: a clean sync, then a2 changes in the store only
	ctx := context.Background()
	store := memory.NewRecordStore(newArtist("a1"), newArtist("a2"), newArtist("a3"))
	index := memory.NewSearchIndex()
	sync := newSynchronizer(store, index, t.TempDir())
	_, err := sync.SyncStoreToIndex(ctx)
	require.NoError(t, err)

	require.NoError(t, store.PutOne(ctx, newArtist("a2", "realism")))

	// Act
	conflicts, err := sync.DetectConflicts(ctx)

	// Assert
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "a2", conflicts[0].ID)
	assert.Equal(t, ConflictDataMismatch, conflicts[0].Kind)
	assert.NotEqual(t, conflicts[0].StoreFingerprint, conflicts[0].IndexFingerprint)
	assert.NotNil(t, conflicts[0].Record)
	assert.NotNil(t, conflicts[0].Document)
}

func TestDetectConflicts_ClassifiesEveryIdentifier(t *testing.T) {
	ctx := context.Background()
	same := newArtist("same")
	changed := newArtist("changed")
	storeOnly := newArtist("store-only")
	indexOnly := newArtist("index-only")

	drifted := changed.Clone()
	drifted.Name = "Renamed in index"

	store := memory.NewRecordStore(same, changed, storeOnly, newStudio("s1"), newStyle("blackwork"))
	index := memory.NewSearchIndex(indexedDoc(t, same), indexedDoc(t, drifted), indexedDoc(t, indexOnly))

	conflicts, err := newSynchronizer(store, index, t.TempDir()).DetectConflicts(ctx)

	require.NoError(t, err)
	assert.Equal(t, map[string]ConflictKind{
		"changed":    ConflictDataMismatch,
		"index-only": ConflictMissingInStore,
		"store-only": ConflictMissingInIndex,
	}, conflictIDs(conflicts))
	ids := []string{conflicts[0].ID, conflicts[1].ID, conflicts[2].ID}
	assert.Equal(t, []string{"changed", "index-only", "store-only"}, ids)
}

func TestDetectConflicts_IgnoresTimestampsAndStoredFingerprint(t *testing.T) {
	r := newArtist("a1")
	doc := indexedDoc(t, r)
	doc.UpdatedAt = "2031-01-01T00:00:00Z"
	doc.LastSynced = "2031-01-01T00:00:00Z"
	doc.SyncFingerprint = "stale"

	conflicts, err := newSynchronizer(memory.NewRecordStore(r), memory.NewSearchIndex(doc), t.TempDir()).
		DetectConflicts(context.Background())

	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestDetectConflicts_ReadFailure(t *testing.T) {
	index := memory.NewSearchIndex()
	index.SetSearchError(errors.New("cluster red"))

	_, err := newSynchronizer(memory.NewRecordStore(newArtist("a1")), index, t.TempDir()).
		DetectConflicts(context.Background())

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
}

func TestSyncPoint_CreateAndValidate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := memory.NewRecordStore(newArtist("a1"), newArtist("a2"), newStudio("s1"))
	index := memory.NewSearchIndex()
	sync := newSynchronizer(store, index, dir)
	_, err := sync.SyncStoreToIndex(ctx)
	require.NoError(t, err)

	created, err := sync.CreateSyncPoint(ctx, "before release/1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "before_release_1-20240601T093000Z.json"), created.Path)
	assert.Equal(t, 3, created.Point.RecordStoreCount)
	assert.Equal(t, 2, created.Point.SearchIndexCount)
	assert.Len(t, created.Point.StateHash, 32)

	raw, err := os.ReadFile(created.Path)
	require.NoError(t, err)
	var saved SyncPoint
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Equal(t, "before release/1", saved.Name)

	check, err := sync.ValidateSyncPoint(ctx, created.Path)
	require.NoError(t, err)
	assert.True(t, check.Valid())
	assert.Equal(t, 0, check.Failures())

	// same counts, different content
	require.NoError(t, store.PutOne(ctx, newArtist("a1", "geometric")))
	check, err = sync.ValidateSyncPoint(ctx, created.Path)
	require.NoError(t, err)
	assert.True(t, check.CountsMatch)
	assert.False(t, check.HashMatch)
	assert.Equal(t, 1, check.Failures())

	require.NoError(t, index.DeleteDocument(ctx, "a2"))
	check, err = sync.ValidateSyncPoint(ctx, created.Path)
	require.NoError(t, err)
	assert.False(t, check.CountsMatch)
}

func TestSyncPoint_Errors(t *testing.T) {
	sync := newSynchronizer(memory.NewRecordStore(), memory.NewSearchIndex(), t.TempDir())

	_, err := sync.CreateSyncPoint(context.Background(), "")
	assert.True(t, apperrors.IsValidation(err))

	_, err = sync.ValidateSyncPoint(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "conflicts.json")
	sync := newSynchronizer(memory.NewRecordStore(), memory.NewSearchIndex(), t.TempDir())
	conflicts := []Conflict{
		{ID: "a1", Kind: ConflictDataMismatch},
		{ID: "a2", Kind: ConflictMissingInIndex},
		{ID: "a3", Kind: ConflictMissingInIndex},
	}

	require.NoError(t, sync.WriteReport(path, conflicts))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var rep ConflictReport
	require.NoError(t, json.Unmarshal(raw, &rep))
	assert.Equal(t, "2024-06-01T09:30:00Z", rep.GeneratedAt)
	assert.Equal(t, 3, rep.Summary.Total)
	assert.Equal(t, 2, rep.Summary.ByKind[ConflictMissingInIndex])
	assert.Len(t, rep.Conflicts, 3)
}

func TestDetectConflicts_WarnsOnceWhenIndexReadIsCapped(t *testing.T) {
	a1, a2 := newArtist("a1"), newArtist("a2")
	store := memory.NewRecordStore(a1, a2)
	index := memory.NewSearchIndex(indexedDoc(t, a1), indexedDoc(t, a2))
	core, logs := observer.New(zapcore.WarnLevel)
	sync := NewSynchronizer(store, index, SynchronizerConfig{MaxDocuments: 2, SyncPointDir: t.TempDir()}, zap.New(core))

	conflicts, err := sync.DetectConflicts(context.Background())

	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Equal(t, 1, logs.FilterMessageSnippet("size cap").Len())
}
