// Package metrics publishes control-plane and kernel telemetry to
// CloudWatch, gated to the production environment exactly as the teacher's
// client gates it.
package metrics

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	namespace                = "SYMBIONT/Kernel"
	httpStatusServerError    = 500
	cloudwatchTimeoutSeconds = 5
)

// Client wraps a CloudWatch client for custom metrics.
type Client struct {
	client      *cloudwatch.Client
	enabled     bool
	environment string
}

// NewClient creates a new CloudWatch metrics client. Only enabled in
// production, matching the teacher's gating.
func NewClient(ctx context.Context, environment string) (*Client, error) {
	if environment != "production" {
		log.Printf("CloudWatch metrics: disabled (environment=%s)", environment)
		return &Client{enabled: false, environment: environment}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Printf("failed to load AWS config for CloudWatch: %v", err)
		return &Client{enabled: false}, nil
	}

	client := cloudwatch.NewFromConfig(cfg)
	log.Printf("CloudWatch metrics: enabled (namespace=%s)", namespace)

	return &Client{client: client, enabled: true, environment: environment}, nil
}

// RecordAPIRequest records a control-plane API request metric.
func (m *Client) RecordAPIRequest(endpoint string, statusCode int, duration time.Duration) {
	if !m.enabled {
		return
	}

	go func() {
		ctx := context.Background()
		metricName := "APIRequests"
		if statusCode >= httpStatusServerError {
			metricName = "APIErrors"
		}

		dimensions := []types.Dimension{
			{Name: aws.String("Endpoint"), Value: aws.String(endpoint)},
			{Name: aws.String("Environment"), Value: aws.String(m.environment)},
		}

		if err := m.putMetric(ctx, metricName, 1, types.StandardUnitCount, dimensions); err != nil {
			log.Printf("failed to record %s metric: %v", metricName, err)
		}

		latencyMs := float64(duration.Milliseconds())
		if err := m.putMetric(ctx, "APILatency", latencyMs, types.StandardUnitMilliseconds, dimensions); err != nil {
			log.Printf("failed to record APILatency metric: %v", err)
		}
	}()
}

// RecordKernelStats publishes one control-plane-tick snapshot of the
// kernel's header counters for a region instance.
func (m *Client) RecordKernelStats(instanceID string, liveNodes, freeCount int32, telemetryOps uint64, eventsEmitted int) {
	if !m.enabled {
		return
	}

	go func() {
		ctx := context.Background()
		dimensions := []types.Dimension{
			{Name: aws.String("InstanceID"), Value: aws.String(instanceID)},
			{Name: aws.String("Environment"), Value: aws.String(m.environment)},
		}

		metrics := []struct {
			name  string
			value float64
			unit  types.StandardUnit
		}{
			{"LiveNodes", float64(liveNodes), types.StandardUnitCount},
			{"FreeCount", float64(freeCount), types.StandardUnitCount},
			{"TelemetryOps", float64(telemetryOps), types.StandardUnitCount},
			{"EventsEmitted", float64(eventsEmitted), types.StandardUnitCount},
		}
		for _, mv := range metrics {
			if err := m.putMetric(ctx, mv.name, mv.value, mv.unit, dimensions); err != nil {
				log.Printf("failed to record %s metric: %v", mv.name, err)
			}
		}
	}()
}

// RecordKernelEvent records a surfaced or fatal header-level error code
// (spec.md §7) as a count metric, one dimension per recovery tier.
func (m *Client) RecordKernelEvent(instanceID, code, tier string) {
	if !m.enabled {
		return
	}

	go func() {
		ctx := context.Background()
		dimensions := []types.Dimension{
			{Name: aws.String("InstanceID"), Value: aws.String(instanceID)},
			{Name: aws.String("Code"), Value: aws.String(code)},
			{Name: aws.String("Tier"), Value: aws.String(tier)},
			{Name: aws.String("Environment"), Value: aws.String(m.environment)},
		}
		if err := m.putMetric(ctx, "KernelEvents", 1, types.StandardUnitCount, dimensions); err != nil {
			log.Printf("failed to record KernelEvents metric: %v", err)
		}
	}()
}

// putMetric sends a metric to CloudWatch.
func (m *Client) putMetric(
	_ context.Context,
	metricName string,
	value float64,
	unit types.StandardUnit,
	dimensions []types.Dimension,
) error {
	if !m.enabled || m.client == nil {
		return nil
	}

	timeout := time.Duration(cloudwatchTimeoutSeconds) * time.Second
	cwCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := m.client.PutMetricData(cwCtx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(metricName),
				Value:      aws.Float64(value),
				Unit:       unit,
				Timestamp:  aws.Time(time.Now()),
				Dimensions: dimensions,
			},
		},
	})

	return err
}
