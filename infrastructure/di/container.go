package di

import (
	"tattoo-datasync/application/services"
	"tattoo-datasync/infrastructure/config"
	"tattoo-datasync/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	Tracer       *observability.Tracer
	Collector    *observability.Collector
	Exporter     *services.Exporter
	Synchronizer *services.Synchronizer
	Resolver     *services.ConflictResolver
	Migrations   *services.MigrationRunner
	Guard        *services.RunGuard
}

// Shutdown flushes the logger.
func (c *Container) Shutdown() {
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}
