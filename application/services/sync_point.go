package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"tattoo-datasync/application/ports"
	"tattoo-datasync/domain/records"
	"tattoo-datasync/pkg/errors"
	"tattoo-datasync/pkg/report"
	"tattoo-datasync/pkg/utils"

	"go.uber.org/zap"
)

// SyncPoint records the counts and a state hash of both stores at a moment.
type SyncPoint struct {
	Name             string `json:"name"`
	Timestamp        string `json:"timestamp"`
	RecordStoreCount int    `json:"recordStoreCount"`
	SearchIndexCount int    `json:"searchIndexCount"`
	StateHash        string `json:"stateHash"`
}

// SyncPointCheck compares a saved sync point with the live stores.
type SyncPointCheck struct {
	Saved       *SyncPoint `json:"saved"`
	Current     *SyncPoint `json:"current"`
	CountsMatch bool       `json:"countsMatch"`
	HashMatch   bool       `json:"hashMatch"`
}

// Valid reports whether nothing diverged since the point was taken.
func (c *SyncPointCheck) Valid() bool {
	return c.CountsMatch && c.HashMatch
}

func (c *SyncPointCheck) Counts() map[string]int {
	return map[string]int{
		"savedRecordStore":   c.Saved.RecordStoreCount,
		"currentRecordStore": c.Current.RecordStoreCount,
		"savedSearchIndex":   c.Saved.SearchIndexCount,
		"currentSearchIndex": c.Current.SearchIndexCount,
	}
}

func (c *SyncPointCheck) Failures() int {
	if c.Valid() {
		return 0
	}
	return 1
}

func (c *SyncPointCheck) Rows() []report.Row {
	return []report.Row{
		{Label: "Record store (saved)", Value: c.Saved.RecordStoreCount},
		{Label: "Record store (now)", Value: c.Current.RecordStoreCount, Failure: c.Saved.RecordStoreCount != c.Current.RecordStoreCount},
		{Label: "Search index (saved)", Value: c.Saved.SearchIndexCount},
		{Label: "Search index (now)", Value: c.Current.SearchIndexCount, Failure: c.Saved.SearchIndexCount != c.Current.SearchIndexCount},
		{Label: "State hash changed", Value: boolToInt(!c.HashMatch), Failure: true},
	}
}

// SyncPointResult is a created sync point and where it was written.
type SyncPointResult struct {
	Point *SyncPoint `json:"point"`
	Path  string     `json:"path"`
}

func (r *SyncPointResult) Counts() map[string]int {
	return map[string]int{"recordStore": r.Point.RecordStoreCount, "searchIndex": r.Point.SearchIndexCount}
}

func (r *SyncPointResult) Failures() int { return 0 }

func (r *SyncPointResult) Rows() []report.Row {
	return []report.Row{
		{Label: "Record store", Value: r.Point.RecordStoreCount},
		{Label: "Search index", Value: r.Point.SearchIndexCount},
	}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// CreateSyncPoint captures both stores and writes the point as JSON into the
// sync point directory.
func (s *Synchronizer) CreateSyncPoint(ctx context.Context, name string) (*SyncPointResult, error) {
	if name == "" {
		return nil, errors.NewValidationError("sync point name is required")
	}
	point, err := s.capture(ctx, name)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.cfg.SyncPointDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sync point directory: %w", err)
	}
	fileName := fmt.Sprintf("%s-%s.json", unsafeNameChars.ReplaceAllString(name, "_"), utils.CompactTimestamp(s.now()))
	path := filepath.Join(s.cfg.SyncPointDir, fileName)
	if err := writeJSON(path, point); err != nil {
		return nil, err
	}

	s.logger.Info("Sync point created",
		zap.String("name", name),
		zap.String("path", path),
		zap.String("stateHash", point.StateHash),
	)
	return &SyncPointResult{Point: point, Path: path}, nil
}

// ValidateSyncPoint re-captures both stores and compares them with the
// point saved at path.
func (s *Synchronizer) ValidateSyncPoint(ctx context.Context, path string) (*SyncPointCheck, error) {
	var saved SyncPoint
	if err := readJSON(path, &saved); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("sync point " + path)
		}
		return nil, errors.NewValidationError("invalid sync point file").WithCause(err)
	}

	current, err := s.capture(ctx, saved.Name)
	if err != nil {
		return nil, err
	}

	check := &SyncPointCheck{
		Saved:       &saved,
		Current:     current,
		CountsMatch: saved.RecordStoreCount == current.RecordStoreCount && saved.SearchIndexCount == current.SearchIndexCount,
		HashMatch:   saved.StateHash == current.StateHash,
	}
	if !check.Valid() {
		s.logger.Warn("Sync point diverged",
			zap.String("name", saved.Name),
			zap.Bool("countsMatch", check.CountsMatch),
			zap.Bool("hashMatch", check.HashMatch),
		)
	}
	return check, nil
}

// capture counts every record store item and every indexed document and
// hashes their fingerprints. Store records are keyed by partition key.
func (s *Synchronizer) capture(ctx context.Context, name string) (*SyncPoint, error) {
	state, err := s.readState(ctx, ports.ScanFilter{})
	if err != nil {
		return nil, err
	}
	indexCount, err := s.index.Count(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "count search index")
	}

	storeFPs := make(map[string]string, len(state.records))
	for _, r := range state.records {
		fp, err := records.Fingerprint(r)
		if err != nil {
			return nil, err
		}
		storeFPs[r.PK] = fp
	}
	indexFPs := make(map[string]string, len(state.documents))
	for _, d := range state.documents {
		fp, err := records.DocumentFingerprint(d)
		if err != nil {
			return nil, err
		}
		indexFPs[d.ID] = fp
	}

	return &SyncPoint{
		Name:             name,
		Timestamp:        s.now().UTC().Format(time.RFC3339),
		RecordStoreCount: len(state.records),
		SearchIndexCount: int(indexCount),
		StateHash:        records.StateHash(storeFPs, indexFPs),
	}, nil
}

// ConflictReport is the audit file written by WriteReport.
type ConflictReport struct {
	GeneratedAt string           `json:"generatedAt"`
	Summary     *ConflictSummary `json:"summary"`
	Conflicts   []Conflict       `json:"conflicts"`
}

// WriteReport writes conflicts to path as a JSON audit report.
func (s *Synchronizer) WriteReport(path string, conflicts []Conflict) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if conflicts == nil {
		conflicts = []Conflict{}
	}
	return writeJSON(path, &ConflictReport{
		GeneratedAt: s.now().UTC().Format(time.RFC3339),
		Summary:     SummarizeConflicts(conflicts),
		Conflicts:   conflicts,
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
