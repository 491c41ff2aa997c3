// Package sns publishes task completion messages to an Amazon SNS topic.
package sns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/phrazzld/genflow/internal/notify"
)

// PublishAPI is the part of the SNS client the publisher uses.
type PublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher implements notify.Publisher for one topic.
type Publisher struct {
	client   PublishAPI
	topicARN string
	logger   *slog.Logger
}

var _ notify.Publisher = (*Publisher)(nil)

// New loads the default AWS credential chain and creates a Publisher.
func New(ctx context.Context, topicARN, region string, logger *slog.Logger) (*Publisher, error) {
	if topicARN == "" {
		return nil, errors.New("sns topic arn is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewWithClient(sns.NewFromConfig(cfg), topicARN, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client PublishAPI, topicARN string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:   client,
		topicARN: topicARN,
		logger:   logger.With(slog.String("component", "sns_publisher")),
	}
}

// Publish implements notify.Publisher. Attributes are sent as String
// message attributes so subscriptions can filter on them.
func (p *Publisher) Publish(ctx context.Context, msg notify.Message) error {
	attrs := make(map[string]types.MessageAttributeValue, len(msg.Attributes))
	for k, v := range msg.Attributes {
		if v == "" {
			continue
		}
		attrs[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(p.topicARN),
		Message:           aws.String(string(msg.Body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topicARN, err)
	}

	p.logger.Debug("published completion message", slog.String("message_id", aws.ToString(out.MessageId)))
	return nil
}
