package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tattoo-datasync/application/services"
	"tattoo-datasync/domain/migrations"
	"tattoo-datasync/domain/records"
	"tattoo-datasync/infrastructure/persistence/memory"
	"tattoo-datasync/pkg/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	store  *memory.RecordStore
	index  *memory.SearchIndex
	locker *memory.RunLocker
	dir    string
	opts   Options
}

func newHarness(t *testing.T, recs ...*records.Record) *harness {
	t.Helper()
	return &harness{
		store:  memory.NewRecordStore(recs...),
		index:  memory.NewSearchIndex(),
		locker: memory.NewRunLocker(),
		dir:    t.TempDir(),
	}
}

func (h *harness) factory(ctx context.Context, opts Options) (*App, error) {
	h.opts = opts
	logger := zap.NewNop()
	sync := services.NewSynchronizer(h.store, h.index, services.SynchronizerConfig{
		MaxDocuments: 100,
		SyncPointDir: filepath.Join(h.dir, "sync-points"),
	}, logger)

	var guard *services.RunGuard
	if opts.Exclusive {
		guard = services.NewRunGuard(h.locker, nil, observability.NewTracer("datasync", false), logger)
	} else {
		guard = services.NewRunGuard(nil, nil, observability.NewTracer("datasync", false), logger)
	}

	return &App{
		Exporter:   services.NewExporter(h.store, h.index, nil, services.ExporterConfig{MaxDocuments: 100, TempDir: h.dir}, logger),
		Migrations: services.NewMigrationRunner(migrations.DefaultCatalog(), h.store, h.index, logger),
		Sync:       sync,
		Resolver:   services.NewConflictResolver(h.store, h.index, logger),
		Guard:      guard,
		ExportDir:  filepath.Join(h.dir, "exports"),
	}, nil
}

func (h *harness) run(args ...string) (string, error) {
	root := NewRootCommand(h.factory)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func artist(id string) *records.Record {
	r := &records.Record{
		EntityType: records.TypeArtist,
		ID:         id,
		Name:       "Artist " + id,
		Styles:     []string{"blackwork"},
		Pricing:    map[string]interface{}{"currency": "GBP", "hourlyRate": 120},
		CreatedAt:  "2024-01-01T00:00:00Z",
		UpdatedAt:  "2024-01-02T00:00:00Z",
	}
	r.DeriveKeys()
	return r
}

func TestMissingArgumentPrintsUsage(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("migrate", "run")

	require.Error(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "migrate run <migration>")
}

func TestSyncDynamoToOpenSearch(t *testing.T) {
	h := newHarness(t, artist("a1"), artist("a2"))

	out, err := h.run("sync", "dynamo-to-os")

	require.NoError(t, err)
	assert.Contains(t, out, "DynamoDB to OpenSearch")
	assert.Contains(t, out, "Synced")
	assert.Equal(t, 2, h.index.Len())
	assert.NotContains(t, out, "Usage:")
}

func TestCountedFailuresExitNonZero(t *testing.T) {
	h := newHarness(t, artist("a1"), artist("a2"))
	h.index.SetFault(func(op string, key records.Key) error {
		if op == "put" && key.PK == "ARTIST#a2" {
			return errors.New("mapping conflict")
		}
		return nil
	})

	out, err := h.run("sync", "dynamo-to-os")

	require.Error(t, err)
	assert.True(t, IsFailures(err))
	assert.Contains(t, out, "Failed")
	assert.NotContains(t, out, "Usage:")
}

func TestDetectConflictsWritesReport(t *testing.T) {
	h := newHarness(t, artist("a1"))
	reportPath := filepath.Join(h.dir, "reports", "conflicts.json")

	out, err := h.run("sync", "detect-conflicts", "--report", reportPath)

	require.NoError(t, err)
	assert.Contains(t, out, "a1")
	assert.Contains(t, out, string(services.ConflictMissingInIndex))
	raw, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"missing_in_search_index"`)
}

func TestResolveConflicts(t *testing.T) {
	t.Run("unknown strategy", func(t *testing.T) {
		h := newHarness(t, artist("a1"))

		_, err := h.run("sync", "resolve-conflicts", "coin_flip")

		require.Error(t, err)
		assert.Equal(t, 0, h.index.Len())
	})

	t.Run("store wins", func(t *testing.T) {
		h := newHarness(t, artist("a1"))

		out, err := h.run("sync", "resolve-conflicts", "store_wins")

		require.NoError(t, err)
		assert.Contains(t, out, "Resolution (store_wins)")
		assert.Equal(t, 1, h.index.Len())
	})
}

func TestExclusiveRunFailsWhenLocked(t *testing.T) {
	h := newHarness(t, artist("a1"))
	release, err := h.locker.Acquire(context.Background(), services.LockResource)
	require.NoError(t, err)
	defer release(context.Background())

	_, err = h.run("--exclusive", "sync", "dynamo-to-os")

	require.Error(t, err)
	assert.True(t, h.opts.Exclusive)
	assert.Equal(t, 0, h.index.Len())
}

func TestMigrateListAndRun(t *testing.T) {
	h := newHarness(t, artist("a1"))

	out, err := h.run("migrate", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "add-default-pricing")
	assert.Contains(t, out, "inverse")

	out, err = h.run("migrate", "run", "nope")
	require.Error(t, err)
	assert.NotContains(t, out, "Usage:")
}

func TestDataExportAndImport(t *testing.T) {
	h := newHarness(t, artist("a1"), artist("a2"))
	exportDir := filepath.Join(h.dir, "out")

	out, err := h.run("data", "export", exportDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Snapshot written to")

	matches, err := filepath.Glob(filepath.Join(exportDir, "export-*"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	target := newHarness(t)
	out, err = target.run("data", "import", matches[0])
	require.NoError(t, err)
	assert.Contains(t, out, "Import")
	assert.Equal(t, 2, target.store.Len())
}

func TestSyncPointRoundTrip(t *testing.T) {
	h := newHarness(t, artist("a1"))

	out, err := h.run("sync", "sync-point", "before deploy")
	require.NoError(t, err)
	assert.Contains(t, out, "Sync point written to")

	matches, err := filepath.Glob(filepath.Join(h.dir, "sync-points", "before_deploy-*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	_, err = h.run("sync", "validate-sync-point", matches[0])
	require.NoError(t, err)

	h.store.PutOne(context.Background(), artist("a2"))
	_, err = h.run("sync", "validate-sync-point", matches[0])
	require.Error(t, err)
	assert.True(t, IsFailures(err))
}

func TestFailedRunsStillPrintTable(t *testing.T) {
	tests := []struct {
		name  string
		args  func(h *harness) []string
		title string
	}{
		{
			name:  "import without manifest",
			args:  func(h *harness) []string { return []string{"data", "import", t.TempDir()} },
			title: "Import",
		},
		{
			name:  "unknown migration",
			args:  func(h *harness) []string { return []string{"migrate", "run", "no-such-migration"} },
			title: "Migration no-such-migration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, artist("a1"))

			out, err := h.run(tt.args(h)...)

			require.Error(t, err)
			assert.False(t, IsFailures(err))
			assert.Contains(t, out, tt.title)
			assert.Contains(t, out, "Completed")
			assert.Contains(t, out, "Errors")
			assert.Contains(t, out, "Error:")
			assert.NotContains(t, out, "Usage:")
		})
	}
}
