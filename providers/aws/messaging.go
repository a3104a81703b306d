package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/picklr-io/vpnpilot/internal/notify"
)

// SNSAPI is the subset of the SNS client used for alerts.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

const maxSubjectLen = 100

// TopicSink publishes notifications to an SNS topic.
type TopicSink struct {
	client   SNSAPI
	topicARN string
}

var _ notify.Sink = (*TopicSink)(nil)

func NewTopicSink(client SNSAPI, topicARN string) *TopicSink {
	return &TopicSink{client: client, topicARN: topicARN}
}

func (t *TopicSink) Send(ctx context.Context, msg notify.Message) error {
	attrs := map[string]snstypes.MessageAttributeValue{
		"channel": {DataType: aws.String("String"), StringValue: aws.String(msg.Channel)},
	}
	if msg.Environment != "" {
		attrs["environment"] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(msg.Environment)}
	}
	if msg.Severity != "" {
		attrs["severity"] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(string(msg.Severity))}
	}

	_, err := t.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(t.topicARN),
		Subject:           aws.String(subject(msg)),
		Message:           aws.String(msg.Text),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", t.topicARN, err)
	}
	return nil
}

func subject(msg notify.Message) string {
	s := "VPN automation"
	if msg.Environment != "" {
		s += " (" + msg.Environment + ")"
	}
	if msg.Severity != "" {
		s = strings.ToUpper(string(msg.Severity)) + ": " + s
	}
	if len(s) > maxSubjectLen {
		s = s[:maxSubjectLen]
	}
	return s
}
