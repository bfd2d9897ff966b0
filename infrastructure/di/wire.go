//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"tattoo-datasync/infrastructure/config"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideTracer,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideS3Client,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideRecordStore,
	ProvideSearchIndex,
	ProvideBlobStore,
	ProvideRunLocker,
	ProvideCollector,
	ProvideMetrics,
	ProvideRunPublisher,
	ProvideRunReporter,
	ProvideMigrationCatalog,
	ProvideExporter,
	ProvideSynchronizer,
	ProvideConflictResolver,
	ProvideMigrationRunner,
	ProvideRunGuard,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
