package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"tattoo-datasync/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

const (
	// Source identifies the data sync tool on the event bus.
	Source = "tattoo-directory.datasync"

	// DetailTypeRunCompleted is emitted once per finished run.
	DetailTypeRunCompleted = "datasync.run.completed"
)

// EventBridgeAPI is the subset of the EventBridge client used here.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

var _ EventBridgeAPI = (*eventbridge.Client)(nil)

// RunPublisher announces finished runs on an EventBridge bus.
type RunPublisher struct {
	client       EventBridgeAPI
	eventBusName string
	logger       *zap.Logger
}

var _ ports.RunReporter = (*RunPublisher)(nil)

// NewRunPublisher creates a publisher for the named bus.
func NewRunPublisher(client EventBridgeAPI, eventBusName string, logger *zap.Logger) *RunPublisher {
	return &RunPublisher{
		client:       client,
		eventBusName: eventBusName,
		logger:       logger,
	}
}

// ReportRun publishes the report. Failures are logged, never returned.
func (p *RunPublisher) ReportRun(ctx context.Context, report ports.RunReport) {
	if err := p.Publish(ctx, report); err != nil {
		p.logger.Warn("Failed to publish run event",
			zap.String("runId", report.RunID),
			zap.String("operation", report.Operation),
			zap.Error(err),
		)
	}
}

// Publish sends one run-completed event.
func (p *RunPublisher) Publish(ctx context.Context, report ports.RunReport) error {
	detail, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}

	entry := types.PutEventsRequestEntry{
		EventBusName: aws.String(p.eventBusName),
		Source:       aws.String(Source),
		DetailType:   aws.String(DetailTypeRunCompleted),
		Detail:       aws.String(string(detail)),
		Time:         aws.Time(report.StartedAt.Add(report.Duration)),
		Resources:    []string{fmt.Sprintf("datasync:run/%s", report.RunID)},
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("failed to publish run event to EventBridge: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for _, e := range result.Entries {
			if e.ErrorCode != nil {
				return fmt.Errorf("run event rejected: %s: %s", aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
		return fmt.Errorf("%d run events failed to publish", result.FailedEntryCount)
	}

	p.logger.Debug("Run event published",
		zap.String("runId", report.RunID),
		zap.String("eventBus", p.eventBusName),
	)
	return nil
}
