package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/kafka"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/registry"
	"github.com/angelmondragon/marketcore-backend/pkg/pubsub"
)

// outboundMessage is the broker-neutral form of one outbox row.
type outboundMessage struct {
	Topic      string
	Key        string
	Data       []byte
	Attributes map[string]string
}

type transport interface {
	Name() string
	Ping(context.Context) error
	Publish(context.Context, outboundMessage) error
	Close() error
}

type pubsubTransport struct {
	client *pubsub.Client

	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
}

func newPubSubTransport(client *pubsub.Client) *pubsubTransport {
	return &pubsubTransport{client: client, publishers: map[string]*gcppubsub.Publisher{}}
}

func (t *pubsubTransport) Name() string { return config.OutboxTransportPubSub }

func (t *pubsubTransport) Ping(ctx context.Context) error { return t.client.Ping(ctx) }

func (t *pubsubTransport) publisher(topic string) *gcppubsub.Publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.publishers[topic]; ok {
		return p
	}
	p := t.client.Publisher(topic)
	if p != nil {
		t.publishers[topic] = p
	}
	return p
}

func (t *pubsubTransport) Publish(ctx context.Context, msg outboundMessage) error {
	p := t.publisher(msg.Topic)
	if p == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", msg.Topic))
	}
	result := p.Publish(ctx, &gcppubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: msg.Key,
	})
	if result == nil {
		return errors.New("publish result is nil")
	}
	if _, err := result.Get(ctx); err != nil {
		// a failed ordered publish pauses the key until resumed
		if msg.Key != "" {
			p.ResumePublish(msg.Key)
		}
		return err
	}
	return nil
}

func (t *pubsubTransport) Close() error {
	t.mu.Lock()
	for _, p := range t.publishers {
		p.Stop()
	}
	t.publishers = map[string]*gcppubsub.Publisher{}
	t.mu.Unlock()
	return t.client.Close()
}

type kafkaTransport struct {
	producer *kafka.Producer
}

func (t *kafkaTransport) Name() string { return config.OutboxTransportKafka }

func (t *kafkaTransport) Ping(ctx context.Context) error { return t.producer.Ping(ctx) }

func (t *kafkaTransport) Publish(ctx context.Context, msg outboundMessage) error {
	return t.producer.Publish(ctx, msg.Topic, []byte(msg.Key), msg.Data, msg.Attributes)
}

func (t *kafkaTransport) Close() error { return t.producer.Close() }
