package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// WatermillPublisher publishes events through any watermill publisher
type WatermillPublisher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

func NewWatermillPublisher(publisher message.Publisher, logger *slog.Logger) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		logger:    logger,
	}
}

// NewKafkaPublisher connects to the given brokers
func NewKafkaPublisher(brokers []string, logger *slog.Logger) (*WatermillPublisher, error) {
	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	return NewWatermillPublisher(publisher, logger), nil
}

// NewGoChannelPubSub returns an in-process pub/sub. Subscribers must be
// attached before publishing; unsubscribed messages are dropped.
func NewGoChannelPubSub(logger *slog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, watermill.NewSlogLogger(logger))
}

// NewInProcessPublisher publishes onto a go channel drained by a consumer
// that logs every event on topic. It stands in for a broker in single node
// deployments; closing the publisher stops the consumer.
func NewInProcessPublisher(ctx context.Context, topic string, logger *slog.Logger) (*WatermillPublisher, error) {
	pubSub := NewGoChannelPubSub(logger)

	messages, err := pubSub.Subscribe(ctx, topic)
	if err != nil {
		pubSub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	go func() {
		for msg := range messages {
			var data map[string]interface{}
			event, err := DecodeEvent(msg, &data)
			if err != nil {
				logger.Error("Dropping undecodable event", "error", err, "message_id", msg.UUID)
				msg.Ack()
				continue
			}
			logger.Info("Event delivered in process",
				"event_id", event.ID,
				"type", event.Type,
				"topic", topic,
				"user_id", data["user_id"],
				"notification_type", data["type"])
			msg.Ack()
		}
	}()

	return NewWatermillPublisher(pubSub, logger), nil
}

func (p *WatermillPublisher) Publish(ctx context.Context, topic string, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", event.Type)
	msg.Metadata.Set("source", event.Source)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", event.Type, topic, err)
	}

	p.logger.Debug("Event published", "event_id", event.ID, "type", event.Type, "topic", topic)
	return nil
}

func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}

// DecodeEvent unmarshals a message payload produced by WatermillPublisher
func DecodeEvent(msg *message.Message, data interface{}) (*Event, error) {
	event := &Event{Data: data}
	if err := json.Unmarshal(msg.Payload, event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return event, nil
}
