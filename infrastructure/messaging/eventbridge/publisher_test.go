package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tattoo-datasync/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBus struct {
	inputs []*eventbridge.PutEventsInput
	output *eventbridge.PutEventsOutput
	err    error
}

func (f *fakeBus) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	if f.output != nil {
		return f.output, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

func sampleReport() ports.RunReport {
	return ports.RunReport{
		RunID:     "run-1",
		Operation: "sync.store-to-index",
		StartedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Duration:  2 * time.Second,
		Counts:    map[string]int{"processed": 3, "synced": 2, "skipped": 1},
	}
}

func TestRunPublisher_Publish(t *testing.T) {
	bus := &fakeBus{}
	p := NewRunPublisher(bus, "datasync-bus", zap.NewNop())

	require.NoError(t, p.Publish(context.Background(), sampleReport()))

	require.Len(t, bus.inputs, 1)
	entry := bus.inputs[0].Entries[0]
	assert.Equal(t, "datasync-bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, Source, aws.ToString(entry.Source))
	assert.Equal(t, DetailTypeRunCompleted, aws.ToString(entry.DetailType))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 2, 0, time.UTC), aws.ToTime(entry.Time))

	var detail ports.RunReport
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.Equal(t, "run-1", detail.RunID)
	assert.Equal(t, 2, detail.Counts["synced"])
}

func TestRunPublisher_FailedEntries(t *testing.T) {
	bus := &fakeBus{output: &eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries:          []types.PutEventsResultEntry{{ErrorCode: aws.String("ThrottlingException"), ErrorMessage: aws.String("slow down")}},
	}}
	p := NewRunPublisher(bus, "datasync-bus", zap.NewNop())

	err := p.Publish(context.Background(), sampleReport())

	assert.ErrorContains(t, err, "ThrottlingException")
}

func TestRunPublisher_ReportRunSwallowsErrors(t *testing.T) {
	bus := &fakeBus{err: errors.New("network down")}
	p := NewRunPublisher(bus, "datasync-bus", zap.NewNop())

	assert.NotPanics(t, func() { p.ReportRun(context.Background(), sampleReport()) })
	assert.Len(t, bus.inputs, 1)
}
