package aws

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/picklr-io/vpnpilot/internal/metrics"
)

// CloudWatchAPI is the subset of the CloudWatch client used for metrics.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// maxDatumsPerCall is the PutMetricData batch limit.
const maxDatumsPerCall = 1000

// MetricPublisher sends data points to CloudWatch, one call per namespace batch.
type MetricPublisher struct {
	client CloudWatchAPI
}

var _ metrics.Publisher = (*MetricPublisher)(nil)

func NewMetricPublisher(client CloudWatchAPI) *MetricPublisher {
	return &MetricPublisher{client: client}
}

func (m *MetricPublisher) Publish(ctx context.Context, data []metrics.Datum) error {
	byNamespace := map[string][]cwtypes.MetricDatum{}
	var order []string
	for _, d := range data {
		if _, ok := byNamespace[d.Namespace]; !ok {
			order = append(order, d.Namespace)
		}
		byNamespace[d.Namespace] = append(byNamespace[d.Namespace], toDatum(d))
	}

	var errs []error
	for _, ns := range order {
		batch := byNamespace[ns]
		for len(batch) > 0 {
			n := min(len(batch), maxDatumsPerCall)
			_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
				Namespace:  aws.String(ns),
				MetricData: batch[:n],
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to put metric data in %s: %w", ns, err))
			}
			batch = batch[n:]
		}
	}
	return errors.Join(errs...)
}

func toDatum(d metrics.Datum) cwtypes.MetricDatum {
	names := make([]string, 0, len(d.Dimensions))
	for k := range d.Dimensions {
		names = append(names, k)
	}
	sort.Strings(names)

	dims := make([]cwtypes.Dimension, 0, len(names))
	for _, k := range names {
		dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(d.Dimensions[k])})
	}

	out := cwtypes.MetricDatum{
		MetricName: aws.String(d.Name),
		Value:      aws.Float64(d.Value),
		Unit:       cwtypes.StandardUnit(d.Unit),
		Dimensions: dims,
	}
	if !d.Timestamp.IsZero() {
		out.Timestamp = aws.Time(d.Timestamp)
	}
	return out
}
