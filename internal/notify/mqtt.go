package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/rs/zerolog"

	"parkaro/internal/domain"
)

// PublishAPI is the subset of *iotdataplane.Client used here.
type PublishAPI interface {
	Publish(ctx context.Context, params *iotdataplane.PublishInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error)
}

type publishJob struct {
	topic   string
	payload []byte
	retain  bool
}

// MQTTPublisher forwards notifications to station displays through the AWS
// IoT data plane. Publishing happens on the Run goroutine so callers never
// wait on the network.
type MQTTPublisher struct {
	client PublishAPI
	prefix string
	logger *zerolog.Logger
	queue  chan publishJob
}

func NewMQTTPublisher(client PublishAPI, topicPrefix string, logger *zerolog.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		prefix: topicPrefix,
		logger: logger,
		queue:  make(chan publishJob, 128),
	}
}

// Topic returns where n is published and whether the message is retained.
// The topic is empty for notifications displays do not subscribe to.
func (p *MQTTPublisher) Topic(n domain.Notification) (string, bool) {
	switch n.Type {
	case domain.NotificationSlotAssigned:
		return fmt.Sprintf("%s/slots/%d/assigned", p.prefix, n.Slot), false
	case domain.NotificationCheckedOut:
		return fmt.Sprintf("%s/slots/%d/released", p.prefix, n.Slot), false
	case domain.NotificationChargingComplete:
		return fmt.Sprintf("%s/charging/%d/complete", p.prefix, n.SessionID), false
	case domain.NotificationOccupancy:
		// Retained so a display that reconnects gets the latest counts at once.
		return p.prefix + "/occupancy", true
	}
	return "", false
}

func (p *MQTTPublisher) Notify(_ context.Context, n domain.Notification) {
	topic, retain := p.Topic(n)
	if topic == "" {
		return
	}
	payload, err := json.Marshal(n)
	if err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Msg("marshalling mqtt payload failed")
		return
	}
	select {
	case p.queue <- publishJob{topic: topic, payload: payload, retain: retain}:
	default:
		p.logger.Warn().Str("topic", topic).Msg("mqtt queue full, dropping notification")
	}
}

// Run publishes queued notifications until ctx is cancelled.
func (p *MQTTPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			p.publish(ctx, job)
		}
	}
}

func (p *MQTTPublisher) publish(ctx context.Context, job publishJob) {
	_, err := p.client.Publish(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(job.topic),
		Qos:     1,
		Retain:  job.retain,
		Payload: job.payload,
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("topic", job.topic).Msg("mqtt publish failed")
		return
	}
	p.logger.Debug().Str("topic", job.topic).Msg("mqtt notification published")
}
