package di

import (
	"context"
	"fmt"

	"tattoo-datasync/application/ports"
	"tattoo-datasync/application/services"
	"tattoo-datasync/domain/migrations"
	"tattoo-datasync/infrastructure/config"
	"tattoo-datasync/infrastructure/messaging/eventbridge"
	"tattoo-datasync/infrastructure/persistence/dynamodb"
	"tattoo-datasync/infrastructure/search/opensearch"
	s3store "tattoo-datasync/infrastructure/storage/s3"
	"tattoo-datasync/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "tattoo-datasync"

// ProvideLogger creates the process logger. Production gets JSON output,
// everything else the console encoder. Both write to stderr.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("environment", cfg.Environment)), nil
}

// ProvideTracer creates the X-Ray tracer.
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer(serviceName, cfg.EnableTracing)
}

// ProvideAWSConfig creates AWS configuration. Outside production the SDK
// uses static credentials so LocalStack accepts the requests.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config, tracer *observability.Tracer) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.UsesLocalEndpoints() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	tracer.InstrumentAWS(&awsCfg)
	return awsCfg, nil
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.UsesLocalEndpoints() && cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	})
}

// ProvideS3Client creates an S3 client. LocalStack needs path-style
// addressing.
func ProvideS3Client(awsCfg aws.Config, cfg *config.Config) *awss3.Client {
	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.UsesLocalEndpoints() && cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideRecordStore creates the DynamoDB record store
func ProvideRecordStore(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.RecordStore {
	return dynamodb.NewRecordStore(client, cfg.DynamoDBTable, logger)
}

// ProvideSearchIndex creates the OpenSearch client
func ProvideSearchIndex(cfg *config.Config, logger *zap.Logger) ports.SearchIndex {
	return opensearch.NewClient(opensearch.Config{
		Endpoint:  cfg.OpenSearchEndpoint,
		Index:     cfg.OpenSearchIndex,
		Timeout:   cfg.SearchRequestTimeout,
		RateLimit: cfg.SearchRateLimit,
		RateBurst: cfg.SearchRateBurst,
		Tracing:   cfg.EnableTracing,
	}, logger)
}

// ProvideBlobStore creates the S3 backup store
func ProvideBlobStore(client *awss3.Client, cfg *config.Config, logger *zap.Logger) ports.BlobStore {
	return s3store.NewBlobStore(client, cfg.BackupBucket, cfg.AWSRegion, logger)
}

// ProvideRunLocker returns the DynamoDB run lock, or nil when
// RUN_LOCK_ENABLED is off.
func ProvideRunLocker(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.RunLocker {
	if !cfg.RunLockEnabled {
		return nil
	}
	return dynamodb.NewRunLock(client, cfg.DynamoDBTable, dynamodb.DefaultLockDuration, logger)
}

// ProvideCollector creates the Prometheus collector
func ProvideCollector() *observability.Collector {
	return observability.NewCollector("datasync")
}

// ProvideMetrics creates the CloudWatch run reporter. Without
// ENABLE_METRICS it has no client and reports nothing.
func ProvideMetrics(client *awscloudwatch.Client, cfg *config.Config, logger *zap.Logger) *observability.Metrics {
	var api observability.CloudWatchAPI
	if cfg.EnableMetrics {
		api = client
	}
	return observability.NewMetrics(cfg.MetricsNamespace, api, logger)
}

// ProvideRunPublisher creates the EventBridge run publisher, or nil when
// ENABLE_EVENTS is off.
func ProvideRunPublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) *eventbridge.RunPublisher {
	if !cfg.EnableEvents {
		return nil
	}
	return eventbridge.NewRunPublisher(client, cfg.EventBusName, logger)
}

// ProvideRunReporter fans run reports out to every enabled reporter
func ProvideRunReporter(collector *observability.Collector, metrics *observability.Metrics, publisher *eventbridge.RunPublisher) ports.RunReporter {
	reporters := observability.MultiReporter{collector, metrics}
	if publisher != nil {
		reporters = append(reporters, publisher)
	}
	return reporters
}

// ProvideMigrationCatalog returns the built-in migrations
func ProvideMigrationCatalog() *migrations.Catalog {
	return migrations.DefaultCatalog()
}

// ProvideExporter creates the snapshot exporter
func ProvideExporter(store ports.RecordStore, index ports.SearchIndex, blobs ports.BlobStore, cfg *config.Config, logger *zap.Logger) *services.Exporter {
	return services.NewExporter(store, index, blobs, services.ExporterConfig{
		MaxDocuments: cfg.MaxIndexDocuments,
	}, logger)
}

// ProvideSynchronizer creates the synchronizer
func ProvideSynchronizer(store ports.RecordStore, index ports.SearchIndex, cfg *config.Config, logger *zap.Logger) *services.Synchronizer {
	return services.NewSynchronizer(store, index, services.SynchronizerConfig{
		MaxDocuments: cfg.MaxIndexDocuments,
		SyncPointDir: cfg.SyncPointDir,
	}, logger)
}

// ProvideConflictResolver creates the conflict resolver
func ProvideConflictResolver(store ports.RecordStore, index ports.SearchIndex, logger *zap.Logger) *services.ConflictResolver {
	return services.NewConflictResolver(store, index, logger)
}

// ProvideMigrationRunner creates the migration runner
func ProvideMigrationRunner(catalog *migrations.Catalog, store ports.RecordStore, index ports.SearchIndex, logger *zap.Logger) *services.MigrationRunner {
	return services.NewMigrationRunner(catalog, store, index, logger)
}

// ProvideRunGuard creates the run guard
func ProvideRunGuard(locker ports.RunLocker, reporter ports.RunReporter, tracer *observability.Tracer, logger *zap.Logger) *services.RunGuard {
	return services.NewRunGuard(locker, reporter, tracer, logger)
}
