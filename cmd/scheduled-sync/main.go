package main

import (
	"context"
	"log"

	"tattoo-datasync/application/services"
	"tattoo-datasync/infrastructure/config"
	"tattoo-datasync/infrastructure/di"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

var container *di.Container

func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	container, err = di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
}

// Result is returned to the scheduler and lands in the invocation log.
type Result struct {
	Sync      map[string]int `json:"sync"`
	Conflicts map[string]int `json:"conflicts"`
}

// Handler runs a store-to-index sync followed by conflict detection.
func Handler(ctx context.Context, event events.CloudWatchEvent) (*Result, error) {
	logger := container.Logger.With(zap.String("eventId", event.ID), zap.String("source", event.Source))
	return runScheduled(ctx, container.Guard, container.Synchronizer, logger)
}

func runScheduled(ctx context.Context, guard *services.RunGuard, sync *services.Synchronizer, logger *zap.Logger) (*Result, error) {
	synced, err := guard.Run(ctx, "scheduled:store-to-index", func(ctx context.Context) (services.RunStats, error) {
		stats, err := sync.SyncStoreToIndex(ctx)
		if stats == nil {
			return nil, err
		}
		return stats, err
	})
	if err != nil {
		return nil, err
	}

	detected, err := guard.Read(ctx, "scheduled:detect", func(ctx context.Context) (services.RunStats, error) {
		conflicts, err := sync.DetectConflicts(ctx)
		if err != nil {
			return nil, err
		}
		return services.SummarizeConflicts(conflicts), nil
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Sync: synced.Counts(), Conflicts: detected.Counts()}
	if total := result.Conflicts["total"]; total > 0 {
		logger.Warn("Scheduled sync left conflicts", zap.Int("conflicts", total))
	}
	return result, nil
}

func main() {
	lambda.Start(Handler)
}
