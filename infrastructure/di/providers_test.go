package di

import (
	"testing"

	"tattoo-datasync/infrastructure/config"
	"tattoo-datasync/infrastructure/messaging/eventbridge"
	"tattoo-datasync/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfigFile("")
	require.NoError(t, err)
	return cfg
}

func TestProvideLogger(t *testing.T) {
	cfg := testConfig(t)

	cfg.LogLevel = "debug"
	logger, err := ProvideLogger(cfg)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	cfg.LogLevel = "chatty"
	_, err = ProvideLogger(cfg)
	assert.Error(t, err)
}

func TestProvideRunLocker_DisabledByDefault(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunLockEnabled = false

	assert.Nil(t, ProvideRunLocker(nil, cfg, zap.NewNop()))
}

func TestProvideRunReporter(t *testing.T) {
	collector := observability.NewCollector("datasync")
	metrics := observability.NewMetrics("ns", nil, zap.NewNop())

	reporter := ProvideRunReporter(collector, metrics, nil)
	assert.Len(t, reporter.(observability.MultiReporter), 2)

	publisher := eventbridge.NewRunPublisher(awseventbridge.NewFromConfig(aws.Config{Region: "us-east-1"}), "bus", zap.NewNop())
	reporter = ProvideRunReporter(collector, metrics, publisher)
	assert.Len(t, reporter.(observability.MultiReporter), 3)
}

func TestProvideRunPublisher_RespectsFlag(t *testing.T) {
	cfg := testConfig(t)
	client := awseventbridge.NewFromConfig(aws.Config{Region: "us-east-1"})

	cfg.EnableEvents = false
	assert.Nil(t, ProvideRunPublisher(client, cfg, zap.NewNop()))

	cfg.EnableEvents = true
	cfg.EventBusName = "datasync"
	assert.NotNil(t, ProvideRunPublisher(client, cfg, zap.NewNop()))
}
