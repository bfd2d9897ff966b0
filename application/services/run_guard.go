package services

import (
	"context"
	"time"

	"tattoo-datasync/application/ports"
	"tattoo-datasync/pkg/common"
	"tattoo-datasync/pkg/observability"

	"go.uber.org/zap"
)

// LockResource is the single lock shared by every mutating run.
const LockResource = "datasync"

// RunFunc is one data sync operation.
type RunFunc func(ctx context.Context) (RunStats, error)

// RunGuard wraps operations with a run id, an optional exclusive lock,
// tracing and run reporting.
type RunGuard struct {
	locker   ports.RunLocker
	reporter ports.RunReporter
	tracer   *observability.Tracer
	logger   *zap.Logger
}

// NewRunGuard creates a guard. locker and reporter may be nil.
func NewRunGuard(locker ports.RunLocker, reporter ports.RunReporter, tracer *observability.Tracer, logger *zap.Logger) *RunGuard {
	return &RunGuard{
		locker:   locker,
		reporter: reporter,
		tracer:   tracer,
		logger:   logger,
	}
}

// Run executes a mutating operation, holding the run lock when one is
// configured.
func (g *RunGuard) Run(ctx context.Context, operation string, fn RunFunc) (RunStats, error) {
	return g.execute(ctx, operation, true, fn)
}

// Read executes a read-only operation without taking the lock.
func (g *RunGuard) Read(ctx context.Context, operation string, fn RunFunc) (RunStats, error) {
	return g.execute(ctx, operation, false, fn)
}

func (g *RunGuard) execute(ctx context.Context, operation string, exclusive bool, fn RunFunc) (RunStats, error) {
	ctx, runID := common.StartRun(ctx)
	started := time.Now()
	logger := g.logger.With(zap.String("runId", runID), zap.String("operation", operation))

	if exclusive && g.locker != nil {
		release, err := g.locker.Acquire(ctx, LockResource)
		if err != nil {
			logger.Warn("Run lock not acquired", zap.Error(err))
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("Failed to release run lock", zap.Error(err))
			}
		}()
	}

	ctx, seg := g.tracer.StartSegment(ctx, operation)
	g.tracer.AddAnnotation(ctx, "runId", runID)

	logger.Info("Run started")
	stats, err := fn(ctx)

	if seg != nil {
		if stats != nil {
			seg.AddMetadata("counts", stats.Counts())
		}
		seg.Close(err)
	}

	rep := ports.RunReport{
		RunID:     runID,
		Operation: operation,
		StartedAt: started.UTC(),
		Duration:  time.Since(started),
	}
	if stats != nil {
		rep.Counts = stats.Counts()
		rep.Failed = stats.Failures()
	}
	if err != nil {
		rep.Err = err.Error()
	}
	if g.reporter != nil {
		g.reporter.ReportRun(context.WithoutCancel(ctx), rep)
	}

	if err != nil {
		logger.Error("Run failed", zap.Duration("duration", rep.Duration), zap.Error(err))
	} else {
		logger.Info("Run completed",
			zap.Duration("duration", rep.Duration),
			zap.Int("failed", rep.Failed),
		)
	}
	return stats, err
}
