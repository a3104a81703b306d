package aws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklr-io/vpnpilot/internal/metrics"
	"github.com/picklr-io/vpnpilot/internal/notify"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestTopicSink_PublishesAlert(t *testing.T) {
	fake := &fakeSNS{}
	n := notify.NewNotifier(NewTopicSink(fake, "arn:aws:sns:us-east-1:111111111111:vpn-alerts"), "production", nil)

	n.Alert(context.Background(), notify.SeverityCritical, "Failed to auto-close VPN production")

	require.Len(t, fake.inputs, 1)
	in := fake.inputs[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:111111111111:vpn-alerts", aws.ToString(in.TopicArn))
	assert.Equal(t, "CRITICAL: VPN automation (production)", aws.ToString(in.Subject))
	assert.Contains(t, aws.ToString(in.Message), "[PRODUCTION] Failed to auto-close")
	assert.Equal(t, "critical", aws.ToString(in.MessageAttributes["severity"].StringValue))
	assert.Equal(t, notify.AlertChannel, aws.ToString(in.MessageAttributes["channel"].StringValue))
}

func TestTopicSink_ReturnsPublishError(t *testing.T) {
	sink := NewTopicSink(&fakeSNS{err: errors.New("AuthorizationError")}, "arn:topic")
	err := sink.Send(context.Background(), notify.Message{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arn:topic")
}

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
}

func (f *fakeCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestMetricPublisher_GroupsByNamespace(t *testing.T) {
	fake := &fakeCloudWatch{}
	ts := time.Date(2026, 6, 2, 3, 0, 0, 0, time.UTC)
	dims := map[string]string{"Region": "us-east-1", "Environment": "staging"}

	err := NewMetricPublisher(fake).Publish(context.Background(), []metrics.Datum{
		{Namespace: metrics.NamespaceAutomation, Name: metrics.IdleDisassociations, Value: 1, Unit: metrics.UnitCount, Dimensions: dims, Timestamp: ts},
		{Namespace: metrics.NamespaceCost, Name: metrics.CostSavingsPerHour, Value: 0.1, Unit: metrics.UnitNone, Dimensions: dims, Timestamp: ts},
		{Namespace: metrics.NamespaceAutomation, Name: metrics.ActiveConnections, Value: 0, Unit: metrics.UnitCount, Dimensions: dims},
	})
	require.NoError(t, err)

	require.Len(t, fake.inputs, 2)
	assert.Equal(t, metrics.NamespaceAutomation, aws.ToString(fake.inputs[0].Namespace))
	require.Len(t, fake.inputs[0].MetricData, 2)
	assert.Equal(t, metrics.NamespaceCost, aws.ToString(fake.inputs[1].Namespace))

	d := fake.inputs[0].MetricData[0]
	assert.Equal(t, metrics.IdleDisassociations, aws.ToString(d.MetricName))
	assert.Equal(t, cwtypes.StandardUnitCount, d.Unit)
	assert.Equal(t, ts, aws.ToTime(d.Timestamp))
	require.Len(t, d.Dimensions, 2)
	assert.Equal(t, "Environment", aws.ToString(d.Dimensions[0].Name))
	assert.Nil(t, fake.inputs[0].MetricData[1].Timestamp)
}

func TestMetricPublisher_ServesRecorder(t *testing.T) {
	fake := &fakeCloudWatch{}
	r := metrics.NewRecorder(NewMetricPublisher(fake), "production", "eu-west-1", nil)

	r.Cost(context.Background(), metrics.CumulativeSavings, 4.2)

	require.Len(t, fake.inputs, 1)
	assert.Equal(t, metrics.NamespaceCost, aws.ToString(fake.inputs[0].Namespace))
	assert.Equal(t, 4.2, aws.ToFloat64(fake.inputs[0].MetricData[0].Value))
}

type fakeSecrets struct {
	value string
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.value == "" {
		return &secretsmanager.GetSecretValueOutput{}, nil
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(f.value)}, nil
}

func TestSecretReader(t *testing.T) {
	ctx := context.Background()

	raw, err := NewSecretReader(&fakeSecrets{value: "plain-key"}).Secret(ctx, "vpn/peer", "")
	require.NoError(t, err)
	assert.Equal(t, "plain-key", raw)

	body, _ := json.Marshal(map[string]string{"apiKey": "json-key"})
	v, err := NewSecretReader(&fakeSecrets{value: string(body)}).Secret(ctx, "vpn/peer", "apiKey")
	require.NoError(t, err)
	assert.Equal(t, "json-key", v)

	_, err = NewSecretReader(&fakeSecrets{value: string(body)}).Secret(ctx, "vpn/peer", "missing")
	assert.Error(t, err)

	_, err = NewSecretReader(&fakeSecrets{}).Secret(ctx, "vpn/peer", "")
	assert.Error(t, err)
}

type fakeSTS struct{}

func (fakeSTS) GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return &sts.GetCallerIdentityOutput{Account: aws.String("222222222222")}, nil
}

func TestAccountID(t *testing.T) {
	id, err := AccountID(context.Background(), fakeSTS{})
	require.NoError(t, err)
	assert.Equal(t, "222222222222", id)
}
