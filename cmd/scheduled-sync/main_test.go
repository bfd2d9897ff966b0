package main

import (
	"context"
	"testing"

	"tattoo-datasync/application/services"
	"tattoo-datasync/domain/records"
	"tattoo-datasync/infrastructure/persistence/memory"
	"tattoo-datasync/pkg/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunScheduled_SyncsThenDetects(t *testing.T) {
	// Arrange
	a := &records.Record{EntityType: records.TypeArtist, ID: "a1", Name: "Artist a1", Styles: []string{"dotwork"}}
	a.DeriveKeys()
	orphan := records.ToDocument(&records.Record{EntityType: records.TypeArtist, ID: "ghost", Name: "Ghost"})
	store, index := memory.NewRecordStore(a), memory.NewSearchIndex(orphan)

	logger := zap.NewNop()
	sync := services.NewSynchronizer(store, index, services.SynchronizerConfig{SyncPointDir: t.TempDir()}, logger)
	guard := services.NewRunGuard(memory.NewRunLocker(), nil, observability.NewTracer("datasync", false), logger)

	// Act
	result, err := runScheduled(context.Background(), guard, sync, logger)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sync["synced"])
	assert.Equal(t, 1, result.Conflicts["total"])
	assert.Equal(t, 1, result.Conflicts[string(services.ConflictMissingInStore)])
}
