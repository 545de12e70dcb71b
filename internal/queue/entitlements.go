// Package queue provides the SQS producer that announces entitlement changes
// to downstream workers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"proofwork/internal/config"
	"proofwork/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// EntitlementPublisher implements types.EntitlementPublisher on an SQS queue.
// With no queue URL configured it logs and drops messages, which keeps local
// runs free of AWS.
type EntitlementPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewEntitlementPublisher creates a publisher for awsCfg.EntitlementQueueURL.
func NewEntitlementPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *EntitlementPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntitlementPublisher{
		client:   client,
		queueURL: awsCfg.EntitlementQueueURL,
		logger:   logger,
	}
}

// Enabled reports whether messages are actually sent.
func (p *EntitlementPublisher) Enabled() bool {
	return p.client != nil && p.queueURL != ""
}

// PublishEntitlementChanged serializes msg and sends it to the queue. Message
// attributes carry the tiers so consumers can filter without decoding.
func (p *EntitlementPublisher) PublishEntitlementChanged(ctx context.Context, msg types.EntitlementChangedMessage) error {
	if !p.Enabled() {
		p.logger.DebugContext(ctx, "entitlement queue not configured; message dropped",
			"user_id", msg.UserID,
			"tier", string(msg.Tier),
		)
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal EntitlementChangedMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"event_name":    stringAttr(msg.EventName),
			"tier":          stringAttr(string(msg.Tier)),
			"previous_tier": stringAttr(string(msg.PreviousTier)),
		},
	}

	out, err := p.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("queue: failed to send EntitlementChangedMessage to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "entitlement change published",
		"queue_url", p.queueURL,
		"message_id", msg.MessageID,
		"sqs_message_id", aws.ToString(out.MessageId),
		"user_id", msg.UserID,
		"previous_tier", string(msg.PreviousTier),
		"tier", string(msg.Tier),
		"test_mode", msg.TestMode,
	)
	return nil
}

// SQS rejects empty string attribute values.
func stringAttr(v string) sqsTypes.MessageAttributeValue {
	if v == "" {
		v = "-"
	}
	return sqsTypes.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}
