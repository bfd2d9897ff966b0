package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tattoo-datasync/application/ports"
	"tattoo-datasync/domain/records"
	"tattoo-datasync/infrastructure/archive"
	"tattoo-datasync/pkg/errors"
	"tattoo-datasync/pkg/report"
	"tattoo-datasync/pkg/utils"

	"go.uber.org/zap"
)

const (
	// SnapshotVersion is written to every manifest.
	SnapshotVersion = "1.0.0"

	ManifestFile  = "manifest.json"
	DocumentsFile = "documents.json"

	// BackupPrefix is the blob key prefix for backup archives.
	BackupPrefix = "backups/"

	snapshotDirPrefix = "export-"
	archiveSuffix     = ".tar.gz"

	serviceRecordStore = "dynamodb"
	serviceSearchIndex = "opensearch"
)

// Manifest describes a snapshot bundle.
type Manifest struct {
	Timestamp string         `json:"timestamp"`
	Version   string         `json:"version"`
	Services  []string       `json:"services"`
	Stats     map[string]int `json:"stats"`
}

// Includes reports whether the bundle holds data from service.
func (m *Manifest) Includes(service string) bool {
	for _, s := range m.Services {
		if s == service {
			return true
		}
	}
	return false
}

func (m *Manifest) Counts() map[string]int { return m.Stats }
func (m *Manifest) Failures() int          { return 0 }

func (m *Manifest) Rows() []report.Row {
	rows := make([]report.Row, 0, len(m.Stats))
	for _, key := range []string{"artists", "studios", "styles", "total", "documents"} {
		if n, ok := m.Stats[key]; ok {
			rows = append(rows, report.Row{Label: key, Value: n})
		}
	}
	return rows
}

// BackupResult describes an uploaded backup.
type BackupResult struct {
	Key      string    `json:"key"`
	Manifest *Manifest `json:"manifest"`
}

// ExporterConfig tunes the exporter.
type ExporterConfig struct {
	// MaxDocuments caps the single search request used to dump the index.
	MaxDocuments int
	// TempDir hosts backup and restore scratch directories; empty means the
	// OS default.
	TempDir string
}

// Exporter writes and reads snapshot bundles and moves them through blob
// storage.
type Exporter struct {
	store  ports.RecordStore
	index  ports.SearchIndex
	blobs  ports.BlobStore
	cfg    ExporterConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewExporter creates an exporter. blobs may be nil when backups are not
// used.
func NewExporter(store ports.RecordStore, index ports.SearchIndex, blobs ports.BlobStore, cfg ExporterConfig, logger *zap.Logger) *Exporter {
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = 10000
	}
	return &Exporter{
		store:  store,
		index:  index,
		blobs:  blobs,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SnapshotDir returns a fresh bundle directory name under parent.
func (e *Exporter) SnapshotDir(parent string) string {
	return filepath.Join(parent, snapshotDirPrefix+utils.CompactTimestamp(e.now()))
}

// ExportAll writes a bundle into destDir. A failing record store scan aborts
// the export; a failing index dump is logged and left out of the manifest.
func (e *Exporter) ExportAll(ctx context.Context, destDir string) (*Manifest, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	recs, err := e.store.ScanAll(ctx, ports.ScanFilter{})
	if err != nil {
		return nil, errors.Wrap(err, "export record store")
	}

	manifest := &Manifest{
		Timestamp: e.now().UTC().Format(time.RFC3339),
		Version:   SnapshotVersion,
		Services:  []string{serviceRecordStore},
		Stats:     make(map[string]int, len(records.AllTypes)+2),
	}

	grouped := records.GroupByType(recs)
	for _, t := range records.AllTypes {
		group := grouped[t]
		if group == nil {
			group = []*records.Record{}
		}
		if err := writeJSON(filepath.Join(destDir, t.FileName()), group); err != nil {
			return nil, err
		}
		manifest.Stats[statKey(t.FileName())] = len(group)
		e.logger.Info("Exported records",
			zap.String("type", string(t)),
			zap.Int("count", len(group)),
		)
	}
	manifest.Stats["total"] = len(recs)

	docs, err := e.index.Search(ctx, nil, e.cfg.MaxDocuments)
	if err != nil {
		e.logger.Error("Search index export failed; bundle will not include documents", zap.Error(err))
	} else {
		if len(docs) >= e.cfg.MaxDocuments {
			e.logger.Warn("Document export hit the size cap; bundle may be incomplete",
				zap.Int("cap", e.cfg.MaxDocuments),
			)
		}
		if err := writeJSON(filepath.Join(destDir, DocumentsFile), docs); err != nil {
			return nil, err
		}
		manifest.Services = append(manifest.Services, serviceSearchIndex)
		manifest.Stats[statKey(DocumentsFile)] = len(docs)
	}

	if err := writeJSON(filepath.Join(destDir, ManifestFile), manifest); err != nil {
		return nil, err
	}

	e.logger.Info("Export completed",
		zap.String("dir", destDir),
		zap.Int("records", len(recs)),
		zap.Strings("services", manifest.Services),
	)
	return manifest, nil
}

// ReadManifest loads the manifest of the bundle in dir.
func ReadManifest(dir string) (*Manifest, error) {
	var m Manifest
	if err := readJSON(filepath.Join(dir, ManifestFile), &m); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewManifestMissingError(dir)
		}
		return nil, errors.NewValidationError("invalid manifest").WithCause(err)
	}
	return &m, nil
}

// ImportAll loads the bundle in srcDir into both stores. Missing type files
// are skipped; per-chunk and per-document failures are counted.
func (e *Exporter) ImportAll(ctx context.Context, srcDir string) (*ImportStats, error) {
	manifest, err := ReadManifest(srcDir)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Importing snapshot",
		zap.String("dir", srcDir),
		zap.String("timestamp", manifest.Timestamp),
		zap.String("version", manifest.Version),
	)

	stats := &ImportStats{}
	for _, t := range records.AllTypes {
		path := filepath.Join(srcDir, t.FileName())
		var recs []*records.Record
		if err := readJSON(path, &recs); err != nil {
			if os.IsNotExist(err) {
				e.logger.Warn("Type file missing from snapshot; skipping", zap.String("file", t.FileName()))
				stats.SkippedFiles++
				continue
			}
			return stats, errors.NewValidationError("invalid snapshot file " + t.FileName()).WithCause(err)
		}

		res, err := e.store.BatchWrite(ctx, recs, ports.BatchPut)
		stats.Imported += res.Succeeded
		stats.Failed += res.Failed
		if err != nil {
			return stats, errors.Wrapf(err, "import %s", t.FileName())
		}
		e.logger.Info("Imported records",
			zap.String("type", string(t)),
			zap.Int("succeeded", res.Succeeded),
			zap.Int("failed", res.Failed),
		)
	}

	var docs []*records.Document
	if err := readJSON(filepath.Join(srcDir, DocumentsFile), &docs); err != nil {
		if os.IsNotExist(err) {
			e.logger.Info("Snapshot has no documents file; index left untouched")
			return stats, nil
		}
		return stats, errors.NewValidationError("invalid snapshot file " + DocumentsFile).WithCause(err)
	}

	if err := e.index.EnsureIndex(ctx); err != nil {
		e.logger.Warn("Could not ensure search index exists", zap.Error(err))
	}
	for _, d := range docs {
		if err := e.index.PutDocument(ctx, d.ID, d); err != nil {
			e.logger.Error("Failed to index document", zap.String("id", d.ID), zap.Error(err))
			stats.DocumentsFailed++
			continue
		}
		stats.Documents++
	}
	if err := e.index.Refresh(ctx); err != nil {
		e.logger.Warn("Index refresh failed after import", zap.Error(err))
	}
	return stats, nil
}

// Backup exports both stores and uploads the archived bundle as
// backups/<name>.tar.gz. Bucket setup failures abort the backup.
func (e *Exporter) Backup(ctx context.Context, name string) (*BackupResult, error) {
	if e.blobs == nil {
		return nil, errors.NewUnavailableError("blob storage")
	}
	name = strings.TrimSuffix(strings.TrimPrefix(name, BackupPrefix), archiveSuffix)
	if name == "" {
		name = "backup-" + utils.CompactTimestamp(e.now())
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, errors.NewValidationError(fmt.Sprintf("invalid backup name %q", name))
	}
	if err := e.blobs.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp(e.cfg.TempDir, "datasync-backup-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	snapshot := e.SnapshotDir(scratch)
	manifest, err := e.ExportAll(ctx, snapshot)
	if err != nil {
		return nil, err
	}

	archivePath := filepath.Join(scratch, name+archiveSuffix)
	if err := archive.PackFile(snapshot, archivePath); err != nil {
		return nil, errors.NewInternalError("failed to archive snapshot").WithCause(err)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	key := BackupKey(name)
	if err := e.blobs.Put(ctx, key, f); err != nil {
		return nil, err
	}

	e.logger.Info("Backup uploaded", zap.String("key", key))
	return &BackupResult{Key: key, Manifest: manifest}, nil
}

// Restore downloads a backup, extracts it into a scratch directory and
// imports it. The scratch directory is always removed.
func (e *Exporter) Restore(ctx context.Context, key string) (*ImportStats, error) {
	if e.blobs == nil {
		return nil, errors.NewUnavailableError("blob storage")
	}
	key = BackupKey(key)

	scratch, err := os.MkdirTemp(e.cfg.TempDir, "datasync-restore-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	body, err := e.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	if err := archive.Unpack(body, scratch); err != nil {
		return nil, errors.NewValidationError("backup archive is unreadable").WithCause(err)
	}

	snapshot, err := locateSnapshot(scratch)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Restoring backup", zap.String("key", key), zap.String("snapshot", filepath.Base(snapshot)))
	return e.ImportAll(ctx, snapshot)
}

// ListBackups returns stored backups, newest first.
func (e *Exporter) ListBackups(ctx context.Context) ([]ports.BlobObject, error) {
	if e.blobs == nil {
		return nil, errors.NewUnavailableError("blob storage")
	}
	objs, err := e.blobs.List(ctx, BackupPrefix)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(objs, func(i, j int) bool { return objs[i].LastModified.After(objs[j].LastModified) })
	return objs, nil
}

// BackupKey expands a bare backup name into its blob key.
func BackupKey(name string) string {
	if !strings.HasPrefix(name, BackupPrefix) {
		name = BackupPrefix + name
	}
	if !strings.HasSuffix(name, archiveSuffix) {
		name += archiveSuffix
	}
	return name
}

// locateSnapshot finds the bundle directory inside an extracted archive:
// an export-* directory first, then any directory holding a manifest.
func locateSnapshot(root string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(root, snapshotDirPrefix+"*"))
	if err != nil {
		return "", err
	}
	sort.Strings(matches)
	for _, m := range matches {
		if _, err := os.Stat(filepath.Join(m, ManifestFile)); err == nil {
			return m, nil
		}
	}

	found := ""
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || found != "" {
			return err
		}
		if !d.IsDir() && d.Name() == ManifestFile {
			found = filepath.Dir(path)
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return "", walkErr
	}
	if found == "" {
		return "", errors.NewManifestMissingError(root)
	}
	return found, nil
}

func statKey(fileName string) string {
	return strings.TrimSuffix(fileName, filepath.Ext(fileName))
}

func writeJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func readJSON(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
