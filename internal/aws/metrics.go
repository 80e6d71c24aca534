package aws

import (
	"context"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// Metric names emitted by the API.
const (
	MetricVisitsRecorded = "VisitsRecorded"
	MetricTreatsAwarded  = "TreatsAwarded"
	MetricTokensRedeemed = "TokensRedeemed"
)

// Metrics emits custom CloudWatch counters. Emission is best-effort: a
// failed put is logged and dropped, never surfaced to the request path.
type Metrics struct {
	client    CloudWatchAPI
	namespace string
	log       *zap.Logger
}

// NewMetrics returns a Metrics emitter bound to a namespace.
func NewMetrics(client CloudWatchAPI, namespace string, log *zap.Logger) *Metrics {
	return &Metrics{client: client, namespace: namespace, log: log}
}

// Count adds 1 to the named metric, dimensioned by scope when non-empty.
func (m *Metrics) Count(ctx context.Context, name, scope string) {
	if m == nil || m.client == nil {
		return
	}
	datum := cwtypes.MetricDatum{
		MetricName: sdkaws.String(name),
		Value:      sdkaws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
	}
	if scope != "" {
		datum.Dimensions = []cwtypes.Dimension{
			{Name: sdkaws.String("Scope"), Value: sdkaws.String(scope)},
		}
	}
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		m.log.Warn("put metric failed", zap.String("metric", name), zap.Error(err))
	}
}
