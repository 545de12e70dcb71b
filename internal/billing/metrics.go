package billing

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"proofwork/internal/types"
)

// Metric names and dimensions emitted by the reconciler.
const (
	MetricReconcileOutcome = "EntitlementReconcileOutcome"
	MetricReconcileFailure = "EntitlementReconcileFailure"
	DimOutcome             = "Outcome"
	DimEventKind           = "EventKind"
)

// ReconcileMetrics records reconciliation outcomes for monitoring. An
// unresolved-correlation count above zero means checkout stopped echoing the
// user id.
type ReconcileMetrics interface {
	RecordOutcome(ctx context.Context, outcome types.ReconcileOutcome, kind types.EventKind)
	RecordFailure(ctx context.Context, kind types.EventKind)
}

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

func (NoopMetrics) RecordOutcome(context.Context, types.ReconcileOutcome, types.EventKind) {}
func (NoopMetrics) RecordFailure(context.Context, types.EventKind) {}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ ReconcileMetrics = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics emits one Count datum per reconciliation.
//
//	EntitlementReconcileOutcome  Dims {Outcome, EventKind}
//	EntitlementReconcileFailure  Dims {EventKind}
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics publishes to namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchMetrics) RecordOutcome(ctx context.Context, outcome types.ReconcileOutcome, kind types.EventKind) {
	m.put(ctx, MetricReconcileOutcome, []cwtypes.Dimension{
		{Name: aws.String(DimOutcome), Value: aws.String(string(outcome))},
		{Name: aws.String(DimEventKind), Value: aws.String(string(kind))},
	})
}

func (m *CloudWatchMetrics) RecordFailure(ctx context.Context, kind types.EventKind) {
	m.put(ctx, MetricReconcileFailure, []cwtypes.Dimension{
		{Name: aws.String(DimEventKind), Value: aws.String(string(kind))},
	})
}

func (m *CloudWatchMetrics) put(ctx context.Context, name string, dims []cwtypes.Dimension) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
		},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record reconcile metric", "metric", name, "error", err)
	}
}
