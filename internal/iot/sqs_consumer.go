// Package iot consumes detector messages that AWS IoT rules forward to SQS.
package iot

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const retryDelay = 5 * time.Second

// API is the subset of *sqs.Client the consumer calls.
type API interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Handler processes one message body. A nil error acknowledges the message.
type Handler interface {
	HandleEvent(ctx context.Context, body string) error
}

type SQSConsumer struct {
	sqsClient API
	queueURL  string
	handler   Handler
	clock     clockwork.Clock
	logger    *zerolog.Logger
}

func NewSQSConsumer(client API, queueURL string, handler Handler, clock clockwork.Clock, logger *zerolog.Logger) *SQSConsumer {
	return &SQSConsumer{
		sqsClient: client,
		queueURL:  queueURL,
		handler:   handler,
		clock:     clock,
		logger:    logger,
	}
}

// Start long-polls the queue until ctx is cancelled. Messages that fail to
// process are left on the queue and come back after the visibility timeout.
func (c *SQSConsumer) Start(ctx context.Context) {
	c.logger.Info().Str("queue", c.queueURL).Msg("sqs consumer listening")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("sqs consumer stopped")
			return
		default:
		}

		result, err := c.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   60,
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Warn().Err(err).Dur("retry_in", retryDelay).Msg("receiving sqs messages failed")
			select {
			case <-c.clock.After(retryDelay):
			case <-ctx.Done():
			}
			continue
		}

		for _, message := range result.Messages {
			c.process(ctx, message.MessageId, message.Body, message.ReceiptHandle)
		}
	}
}

func (c *SQSConsumer) process(ctx context.Context, id, body, receiptHandle *string) {
	if body == nil {
		c.logger.Warn().Str("message_id", aws.ToString(id)).Msg("empty sqs message body; deleting")
		c.deleteMessage(ctx, receiptHandle)
		return
	}
	if err := c.handler.HandleEvent(ctx, *body); err != nil {
		c.logger.Warn().Err(err).Str("message_id", aws.ToString(id)).
			Msg("processing sqs message failed; it will be redelivered")
		return
	}
	c.deleteMessage(ctx, receiptHandle)
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		c.logger.Warn().Msg("sqs message has no receipt handle; cannot delete")
		return
	}
	_, err := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("deleting sqs message failed")
	}
}
