package services

import "tattoo-datasync/pkg/report"

// RunStats is implemented by every run result so the CLI, the admin API
// and run reporters can treat them alike.
type RunStats interface {
	Counts() map[string]int
	Failures() int
	Rows() []report.Row
}

// SyncStats tallies one direction of a synchronization run.
type SyncStats struct {
	Processed int `json:"processed"`
	Synced    int `json:"synced"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (s *SyncStats) Counts() map[string]int {
	return map[string]int{"processed": s.Processed, "synced": s.Synced, "skipped": s.Skipped, "failed": s.Failed}
}

func (s *SyncStats) Failures() int { return s.Failed }

func (s *SyncStats) Rows() []report.Row {
	return []report.Row{
		{Label: "Processed", Value: s.Processed},
		{Label: "Synced", Value: s.Synced},
		{Label: "Skipped (unchanged)", Value: s.Skipped},
		{Label: "Failed", Value: s.Failed, Failure: true},
	}
}

// MigrationStats tallies a migration or rollback run. Migrated counts every
// record examined.
type MigrationStats struct {
	Migrated    int `json:"migrated"`
	Transformed int `json:"transformed"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
}

func (s *MigrationStats) Counts() map[string]int {
	return map[string]int{"migrated": s.Migrated, "transformed": s.Transformed, "skipped": s.Skipped, "failed": s.Failed}
}

func (s *MigrationStats) Failures() int { return s.Failed }

func (s *MigrationStats) Rows() []report.Row {
	return []report.Row{
		{Label: "Examined", Value: s.Migrated},
		{Label: "Transformed", Value: s.Transformed},
		{Label: "Skipped", Value: s.Skipped},
		{Label: "Failed", Value: s.Failed, Failure: true},
	}
}

func (s *MigrationStats) add(o *MigrationStats) {
	s.Migrated += o.Migrated
	s.Transformed += o.Transformed
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

// ImportStats tallies an import. SkippedFiles counts type files absent from
// the snapshot.
type ImportStats struct {
	Imported        int `json:"imported"`
	Failed          int `json:"failed"`
	SkippedFiles    int `json:"skippedFiles"`
	Documents       int `json:"documents"`
	DocumentsFailed int `json:"documentsFailed"`
}

func (s *ImportStats) Counts() map[string]int {
	return map[string]int{
		"imported":        s.Imported,
		"failed":          s.Failed,
		"skippedFiles":    s.SkippedFiles,
		"documents":       s.Documents,
		"documentsFailed": s.DocumentsFailed,
	}
}

func (s *ImportStats) Failures() int { return s.Failed + s.DocumentsFailed }

func (s *ImportStats) Rows() []report.Row {
	return []report.Row{
		{Label: "Records imported", Value: s.Imported},
		{Label: "Records failed", Value: s.Failed, Failure: true},
		{Label: "Type files missing", Value: s.SkippedFiles},
		{Label: "Documents indexed", Value: s.Documents},
		{Label: "Documents failed", Value: s.DocumentsFailed, Failure: true},
	}
}

// ResolveStats tallies a conflict resolution run.
type ResolveStats struct {
	Processed int `json:"processed"`
	ToIndex   int `json:"toIndex"`
	ToStore   int `json:"toStore"`
	Deleted   int `json:"deleted"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (s *ResolveStats) Counts() map[string]int {
	return map[string]int{
		"processed": s.Processed,
		"toIndex":   s.ToIndex,
		"toStore":   s.ToStore,
		"deleted":   s.Deleted,
		"skipped":   s.Skipped,
		"failed":    s.Failed,
	}
}

func (s *ResolveStats) Failures() int { return s.Failed }

func (s *ResolveStats) Rows() []report.Row {
	return []report.Row{
		{Label: "Conflicts", Value: s.Processed},
		{Label: "Copied to index", Value: s.ToIndex},
		{Label: "Copied to store", Value: s.ToStore},
		{Label: "Deleted", Value: s.Deleted},
		{Label: "Already consistent", Value: s.Skipped},
		{Label: "Failed", Value: s.Failed, Failure: true},
	}
}

// ConflictSummary counts detected conflicts by kind.
type ConflictSummary struct {
	Total  int                  `json:"total"`
	ByKind map[ConflictKind]int `json:"byKind"`
}

// SummarizeConflicts groups conflicts by kind.
func SummarizeConflicts(conflicts []Conflict) *ConflictSummary {
	s := &ConflictSummary{Total: len(conflicts), ByKind: make(map[ConflictKind]int, 3)}
	for _, c := range conflicts {
		s.ByKind[c.Kind]++
	}
	return s
}

func (s *ConflictSummary) Counts() map[string]int {
	out := map[string]int{"total": s.Total}
	for k, n := range s.ByKind {
		out[string(k)] = n
	}
	return out
}

// Failures is zero: detecting conflicts is a successful outcome.
func (s *ConflictSummary) Failures() int { return 0 }

func (s *ConflictSummary) Rows() []report.Row {
	return []report.Row{
		{Label: "Conflicts", Value: s.Total},
		{Label: string(ConflictDataMismatch), Value: s.ByKind[ConflictDataMismatch]},
		{Label: string(ConflictMissingInIndex), Value: s.ByKind[ConflictMissingInIndex]},
		{Label: string(ConflictMissingInStore), Value: s.ByKind[ConflictMissingInStore]},
	}
}
