package services

import (
	"bytes"
	"context"
	"sort"
	"time"

	"tattoo-datasync/application/ports"
	"tattoo-datasync/domain/migrations"
	"tattoo-datasync/domain/records"
	"tattoo-datasync/pkg/errors"
	"tattoo-datasync/pkg/report"

	"go.uber.org/zap"
)

// MigrationResult is one entry of a RunAll.
type MigrationResult struct {
	Name    string          `json:"name"`
	Version string          `json:"version"`
	Stats   *MigrationStats `json:"stats,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// MigrationBatch aggregates a RunAll.
type MigrationBatch struct {
	Results []MigrationResult `json:"results"`
	Total   MigrationStats    `json:"total"`
	Errors  int               `json:"errors"`
}

func (b *MigrationBatch) Counts() map[string]int {
	c := b.Total.Counts()
	c["errors"] = b.Errors
	return c
}

func (b *MigrationBatch) Failures() int { return b.Total.Failed + b.Errors }

func (b *MigrationBatch) Rows() []report.Row {
	rows := b.Total.Rows()
	return append(rows, report.Row{Label: "Migrations aborted", Value: b.Errors, Failure: true})
}

// VersionReport is the distribution of migration stamps across the store.
type VersionReport struct {
	Total       int            `json:"total"`
	Unversioned int            `json:"unversioned"`
	Versions    map[string]int `json:"versions"`
	// Unknown lists stamps that match no registered migration.
	Unknown []string `json:"unknown,omitempty"`
}

func (v *VersionReport) Counts() map[string]int {
	c := map[string]int{"total": v.Total, "unversioned": v.Unversioned}
	for ver, n := range v.Versions {
		c["v"+ver] = n
	}
	return c
}

// Failures counts records carrying a stamp no migration explains.
func (v *VersionReport) Failures() int {
	n := 0
	for _, ver := range v.Unknown {
		n += v.Versions[ver]
	}
	return n
}

func (v *VersionReport) Rows() []report.Row {
	versions := make([]string, 0, len(v.Versions))
	for ver := range v.Versions {
		versions = append(versions, ver)
	}
	sort.Strings(versions)

	rows := []report.Row{{Label: "Records", Value: v.Total}, {Label: "Unversioned", Value: v.Unversioned}}
	for _, ver := range versions {
		rows = append(rows, report.Row{Label: "Version " + ver, Value: v.Versions[ver], Failure: v.isUnknown(ver)})
	}
	return rows
}

func (v *VersionReport) isUnknown(ver string) bool {
	for _, u := range v.Unknown {
		if u == ver {
			return true
		}
	}
	return false
}

// MigrationRunner applies catalog migrations to the record store and keeps
// the search index in step for searchable records.
type MigrationRunner struct {
	catalog *migrations.Catalog
	store   ports.RecordStore
	index   ports.SearchIndex
	logger  *zap.Logger
	now     func() time.Time
}

// NewMigrationRunner creates a runner over catalog.
func NewMigrationRunner(catalog *migrations.Catalog, store ports.RecordStore, index ports.SearchIndex, logger *zap.Logger) *MigrationRunner {
	return &MigrationRunner{
		catalog: catalog,
		store:   store,
		index:   index,
		logger:  logger,
		now:     time.Now,
	}
}

// Register adds a migration to the catalog.
func (m *MigrationRunner) Register(def migrations.Migration) error {
	if err := m.catalog.Register(def); err != nil {
		return errors.NewValidationError(err.Error())
	}
	return nil
}

// List returns the catalog in registration order.
func (m *MigrationRunner) List() []migrations.Migration {
	return m.catalog.List()
}

// Run applies the named migration. Per-record failures are counted; an
// unknown name or a failed scan is returned as an error.
func (m *MigrationRunner) Run(ctx context.Context, name string) (*MigrationStats, error) {
	def, ok := m.catalog.Get(name)
	if !ok {
		return nil, errors.NewUnknownMigrationError(name)
	}

	recs, err := m.store.ScanAll(ctx, ports.ScanFilter{Types: def.AppliesTo})
	if err != nil {
		return nil, errors.Wrapf(err, "migration %s", name)
	}

	logger := m.logger.With(zap.String("migration", def.Name), zap.String("version", def.Version))
	logger.Info("Running migration", zap.Int("records", len(recs)))

	stats := &MigrationStats{}
	indexed := false
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Migrated++

		if r.MigrationVersion == def.Version {
			stats.Skipped++
			continue
		}

		changed, migrated, err := applyTransform(r, def.Transform)
		if err != nil {
			logger.Warn("Transform failed", zap.String("pk", r.PK), zap.Error(err))
			stats.Failed++
			continue
		}
		if !changed {
			stats.Skipped++
			continue
		}

		migrated.MigrationVersion = def.Version
		wroteDoc, err := m.write(ctx, migrated)
		indexed = indexed || wroteDoc
		if err != nil {
			logger.Warn("Failed to write migrated record", zap.String("pk", r.PK), zap.Error(err))
			stats.Failed++
			continue
		}
		stats.Transformed++
	}

	m.refresh(ctx, indexed)
	logger.Info("Migration finished",
		zap.Int("migrated", stats.Migrated),
		zap.Int("transformed", stats.Transformed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// RunAll runs every migration in catalog order, continuing past failures.
func (m *MigrationRunner) RunAll(ctx context.Context) (*MigrationBatch, error) {
	batch := &MigrationBatch{}
	for _, def := range m.catalog.List() {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		res := MigrationResult{Name: def.Name, Version: def.Version}
		stats, err := m.Run(ctx, def.Name)
		if stats != nil {
			res.Stats = stats
			batch.Total.add(stats)
		}
		if err != nil {
			m.logger.Error("Migration aborted", zap.String("migration", def.Name), zap.Error(err))
			res.Error = err.Error()
			batch.Errors++
		}
		batch.Results = append(batch.Results, res)
	}
	return batch, nil
}

// Rollback strips the migration's version stamp from every record carrying
// it, applying the registered inverse first when there is one. Without an
// inverse, field values the migration added stay in place.
func (m *MigrationRunner) Rollback(ctx context.Context, name string) (*MigrationStats, error) {
	def, ok := m.catalog.Get(name)
	if !ok {
		return nil, errors.NewUnknownMigrationError(name)
	}

	recs, err := m.store.ScanAll(ctx, ports.ScanFilter{Types: def.AppliesTo, MigrationVersion: def.Version})
	if err != nil {
		return nil, errors.Wrapf(err, "rollback %s", name)
	}

	logger := m.logger.With(zap.String("migration", def.Name), zap.String("version", def.Version))
	if !def.HasInverse() {
		logger.Warn("Migration has no inverse; rollback only removes the version stamp")
	}

	stats := &MigrationStats{}
	indexed := false
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Migrated++

		reverted := r.Clone()
		if def.HasInverse() {
			if err := def.Inverse(reverted); err != nil {
				logger.Warn("Inverse transform failed", zap.String("pk", r.PK), zap.Error(err))
				stats.Failed++
				continue
			}
		}
		reverted.MigrationVersion = ""

		wroteDoc, err := m.write(ctx, reverted)
		indexed = indexed || wroteDoc
		if err != nil {
			logger.Warn("Failed to write rolled back record", zap.String("pk", r.PK), zap.Error(err))
			stats.Failed++
			continue
		}
		stats.Transformed++
	}

	m.refresh(ctx, indexed)
	logger.Info("Rollback finished",
		zap.Int("examined", stats.Migrated),
		zap.Int("reverted", stats.Transformed),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// Validate reports how migration stamps are distributed across the store.
func (m *MigrationRunner) Validate(ctx context.Context) (*VersionReport, error) {
	recs, err := m.store.ScanAll(ctx, ports.ScanFilter{})
	if err != nil {
		return nil, errors.Wrap(err, "validate migrations")
	}

	known := make(map[string]bool)
	for _, def := range m.catalog.List() {
		known[def.Version] = true
	}

	rep := &VersionReport{Total: len(recs), Versions: make(map[string]int)}
	for _, r := range recs {
		if r.MigrationVersion == "" {
			rep.Unversioned++
			continue
		}
		rep.Versions[r.MigrationVersion]++
	}
	for ver := range rep.Versions {
		if !known[ver] {
			rep.Unknown = append(rep.Unknown, ver)
		}
	}
	sort.Strings(rep.Unknown)
	return rep, nil
}

// write stamps updatedAt and writes r to the store, then mirrors it to the
// index when its type is searchable. It reports whether the index was
// written.
func (m *MigrationRunner) write(ctx context.Context, r *records.Record) (bool, error) {
	now := m.now().UTC().Format(time.RFC3339)
	r.UpdatedAt = now
	r.DeriveKeys()

	var doc *records.Document
	if r.EntityType.Searchable() {
		fp, err := records.Fingerprint(r)
		if err != nil {
			return false, err
		}
		r.SyncFingerprint = fp
		r.LastSynced = now
		doc = records.ToDocument(r)
	}

	if err := m.store.PutOne(ctx, r); err != nil {
		return false, err
	}
	if doc == nil {
		return false, nil
	}
	if err := m.index.PutDocument(ctx, r.ID, doc); err != nil {
		return false, err
	}
	return true, nil
}

func (m *MigrationRunner) refresh(ctx context.Context, indexed bool) {
	if !indexed {
		return
	}
	if err := m.index.Refresh(ctx); err != nil {
		m.logger.Warn("Index refresh failed", zap.Error(err))
	}
}

// applyTransform runs fn on a copy of r and reports whether the canonical
// JSON changed.
func applyTransform(r *records.Record, fn migrations.TransformFunc) (bool, *records.Record, error) {
	before, err := records.CanonicalJSON(r)
	if err != nil {
		return false, nil, err
	}
	migrated := r.Clone()
	if err := fn(migrated); err != nil {
		return false, nil, err
	}
	after, err := records.CanonicalJSON(migrated)
	if err != nil {
		return false, nil, err
	}
	return !bytes.Equal(before, after), migrated, nil
}
