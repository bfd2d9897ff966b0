package observability

import (
	"context"
	"net/http"
	"sort"
	"time"

	"tattoo-datasync/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CloudWatchAPI is the subset of the CloudWatch client used for run metrics.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ CloudWatchAPI = (*cloudwatch.Client)(nil)

// Collector holds the Prometheus metrics served on /metrics.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Runs        *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	Records     *prometheus.CounterVec
}

// NewCollector creates a collector on its own registry.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Finished data sync runs by operation and status",
			},
			[]string{"operation", "status"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Data sync run duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
			},
			[]string{"operation"},
		),
		Records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Records handled by data sync runs by outcome",
			},
			[]string{"operation", "outcome"},
		),
	}

	c.registry.MustRegister(c.HTTPRequests, c.HTTPDuration, c.Runs, c.RunDuration, c.Records)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ReportRun records a finished run.
func (c *Collector) ReportRun(_ context.Context, report ports.RunReport) {
	c.Runs.WithLabelValues(report.Operation, runStatus(report)).Inc()
	c.RunDuration.WithLabelValues(report.Operation).Observe(report.Duration.Seconds())
	for outcome, n := range report.Counts {
		c.Records.WithLabelValues(report.Operation, outcome).Add(float64(n))
	}
}

// Metrics publishes run summaries to CloudWatch.
type Metrics struct {
	namespace string
	client    CloudWatchAPI
	logger    *zap.Logger
}

// NewMetrics creates a CloudWatch publisher. A nil client disables it.
func NewMetrics(namespace string, client CloudWatchAPI, logger *zap.Logger) *Metrics {
	return &Metrics{
		namespace: namespace,
		client:    client,
		logger:    logger,
	}
}

// ReportRun sends one datum per counter plus the run duration.
func (m *Metrics) ReportRun(ctx context.Context, report ports.RunReport) {
	if m.client == nil {
		return
	}

	now := time.Now()
	opDim := types.Dimension{Name: aws.String("Operation"), Value: aws.String(report.Operation)}

	data := []types.MetricDatum{
		{
			MetricName: aws.String("RunDuration"),
			Dimensions: []types.Dimension{opDim, {Name: aws.String("Status"), Value: aws.String(runStatus(report))}},
			Value:      aws.Float64(float64(report.Duration.Milliseconds())),
			Unit:       types.StandardUnitMilliseconds,
			Timestamp:  aws.Time(now),
		},
	}

	outcomes := make([]string, 0, len(report.Counts))
	for outcome := range report.Counts {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	for _, outcome := range outcomes {
		data = append(data, types.MetricDatum{
			MetricName: aws.String("Records"),
			Dimensions: []types.Dimension{opDim, {Name: aws.String("Outcome"), Value: aws.String(outcome)}},
			Value:      aws.Float64(float64(report.Counts[outcome])),
			Unit:       types.StandardUnitCount,
			Timestamp:  aws.Time(now),
		})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.Warn("Failed to send metrics", zap.String("operation", report.Operation), zap.Error(err))
	}
}

// MultiReporter fans a report out to several reporters.
type MultiReporter []ports.RunReporter

// ReportRun forwards to every non-nil reporter.
func (m MultiReporter) ReportRun(ctx context.Context, report ports.RunReport) {
	for _, r := range m {
		if r != nil {
			r.ReportRun(ctx, report)
		}
	}
}

func runStatus(report ports.RunReport) string {
	switch {
	case report.Err != "":
		return "error"
	case report.Failed > 0:
		return "partial"
	default:
		return "success"
	}
}
