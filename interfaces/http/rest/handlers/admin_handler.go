package handlers

import (
	"context"
	"net/http"
	"time"

	"tattoo-datasync/application/services"
	"tattoo-datasync/domain/records"
	"tattoo-datasync/pkg/common"
	"tattoo-datasync/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AdminHandler exposes data sync runs over HTTP.
type AdminHandler struct {
	exporter   *services.Exporter
	migrations *services.MigrationRunner
	sync       *services.Synchronizer
	resolver   *services.ConflictResolver
	guard      *services.RunGuard
	errHandler *errors.ErrorHandler
	logger     *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	exporter *services.Exporter,
	migrations *services.MigrationRunner,
	sync *services.Synchronizer,
	resolver *services.ConflictResolver,
	guard *services.RunGuard,
	errorHandler *errors.ErrorHandler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		exporter:   exporter,
		migrations: migrations,
		sync:       sync,
		resolver:   resolver,
		guard:      guard,
		errHandler: errorHandler,
		logger:     logger,
	}
}

// RunResponse is the body returned for every run.
type RunResponse struct {
	Operation string         `json:"operation"`
	Counts    map[string]int `json:"counts"`
	Failures  int            `json:"failures"`
}

// ConflictsResponse is returned by GET /conflicts.
type ConflictsResponse struct {
	Summary   *services.ConflictSummary `json:"summary"`
	Conflicts []services.Conflict       `json:"conflicts"`
}

// ResolveResponse is returned by POST /conflicts/resolve.
type ResolveResponse struct {
	RunResponse
	Strategy  services.Strategy `json:"strategy"`
	Conflicts int               `json:"conflicts"`
}

// MigrationInfo describes a registered migration.
type MigrationInfo struct {
	Name        string               `json:"name"`
	Version     string               `json:"version"`
	Description string               `json:"description"`
	AppliesTo   []records.EntityType `json:"appliesTo,omitempty"`
	HasInverse  bool                 `json:"hasInverse"`
}

// SyncStoreToIndex handles POST /sync/store-to-index
func (h *AdminHandler) SyncStoreToIndex(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "sync:store-to-index", func(ctx context.Context) (services.RunStats, error) {
		return asStats(h.sync.SyncStoreToIndex(ctx))
	})
}

// SyncIndexToStore handles POST /sync/index-to-store
func (h *AdminHandler) SyncIndexToStore(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "sync:index-to-store", func(ctx context.Context) (services.RunStats, error) {
		return asStats(h.sync.SyncIndexToStore(ctx))
	})
}

// DetectConflicts handles GET /conflicts
func (h *AdminHandler) DetectConflicts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var (
		conflicts []services.Conflict
		runID     string
	)
	_, err := h.guard.Read(r.Context(), "sync:detect", func(ctx context.Context) (services.RunStats, error) {
		runID, _ = common.GetRunID(ctx)
		found, err := h.sync.DetectConflicts(ctx)
		if err != nil {
			return nil, err
		}
		conflicts = found
		return services.SummarizeConflicts(found), nil
	})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}
	if conflicts == nil {
		conflicts = []services.Conflict{}
	}
	common.RespondWithMeta(w, http.StatusOK, ConflictsResponse{
		Summary:   services.SummarizeConflicts(conflicts),
		Conflicts: conflicts,
	}, runMeta(r, start, runID))
}

// ResolveConflicts handles POST /conflicts/resolve?strategy=
func (h *AdminHandler) ResolveConflicts(w http.ResponseWriter, r *http.Request) {
	strategy, err := services.ParseStrategy(r.URL.Query().Get("strategy"))
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}
	h.logRequest(r, "sync:resolve")

	start := time.Now()
	var (
		detected int
		runID    string
	)
	stats, err := h.guard.Run(r.Context(), "sync:resolve", func(ctx context.Context) (services.RunStats, error) {
		runID, _ = common.GetRunID(ctx)
		conflicts, res, err := h.resolver.Reconcile(ctx, h.sync, strategy)
		detected = len(conflicts)
		return asStats(res, err)
	})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}
	common.RespondWithMeta(w, http.StatusOK, ResolveResponse{
		RunResponse: toRunResponse("sync:resolve", stats),
		Strategy:    strategy,
		Conflicts:   detected,
	}, runMeta(r, start, runID))
}

// ListMigrations handles GET /migrations
func (h *AdminHandler) ListMigrations(w http.ResponseWriter, r *http.Request) {
	defs := h.migrations.List()
	out := make([]MigrationInfo, 0, len(defs))
	for _, m := range defs {
		out = append(out, MigrationInfo{
			Name:        m.Name,
			Version:     m.Version,
			Description: m.Description,
			AppliesTo:   m.AppliesTo,
			HasInverse:  m.HasInverse(),
		})
	}
	common.RespondJSON(w, http.StatusOK, out)
}

// RunMigration handles POST /migrations/{name}/run
func (h *AdminHandler) RunMigration(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h.run(w, r, "migrate:"+name, func(ctx context.Context) (services.RunStats, error) {
		return asStats(h.migrations.Run(ctx, name))
	})
}

// RollbackMigration handles POST /migrations/{name}/rollback
func (h *AdminHandler) RollbackMigration(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h.run(w, r, "rollback:"+name, func(ctx context.Context) (services.RunStats, error) {
		return asStats(h.migrations.Rollback(ctx, name))
	})
}

// ValidateMigrations handles GET /migrations/validate
func (h *AdminHandler) ValidateMigrations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var (
		report *services.VersionReport
		runID  string
	)
	_, err := h.guard.Read(r.Context(), "migrate:validate", func(ctx context.Context) (services.RunStats, error) {
		runID, _ = common.GetRunID(ctx)
		rep, err := h.migrations.Validate(ctx)
		report = rep
		return asStats(rep, err)
	})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}
	common.RespondWithMeta(w, http.StatusOK, report, runMeta(r, start, runID))
}

// ListBackups handles GET /backups
func (h *AdminHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.exporter.ListBackups(r.Context())
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, backups)
}

func (h *AdminHandler) run(w http.ResponseWriter, r *http.Request, operation string, fn services.RunFunc) {
	h.logRequest(r, operation)

	start := time.Now()
	var runID string
	stats, err := h.guard.Run(r.Context(), operation, func(ctx context.Context) (services.RunStats, error) {
		runID, _ = common.GetRunID(ctx)
		return fn(ctx)
	})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}
	common.RespondWithMeta(w, http.StatusOK, toRunResponse(operation, stats), runMeta(r, start, runID))
}

func (h *AdminHandler) logRequest(r *http.Request, operation string) {
	subject, _ := common.GetSubject(r.Context())
	h.logger.Info("Admin run requested",
		zap.String("operation", operation),
		zap.String("subject", subject),
		zap.String("request_id", common.ExtractRequestID(r)),
	)
}

func runMeta(r *http.Request, start time.Time, runID string) *common.MetaInfo {
	meta := common.RunMeta(r, start)
	meta.RunID = runID
	return meta
}

func toRunResponse(operation string, stats services.RunStats) RunResponse {
	resp := RunResponse{Operation: operation, Counts: map[string]int{}}
	if stats != nil {
		resp.Counts = stats.Counts()
		resp.Failures = stats.Failures()
	}
	return resp
}

func asStats[S any, P interface {
	*S
	services.RunStats
}](p P, err error) (services.RunStats, error) {
	if p == nil {
		return nil, err
	}
	return p, err
}
