package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// NewLocalPubSub builds the in-process bus. It is both the dispatcher's
// publisher and the router's subscriber. Publish returns only once every
// subscriber acked, so a single publisher sees strict ordering and at most
// one message in flight.
func NewLocalPubSub(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            1024,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
}

// ExchangeConfig describes the AMQP exchange events are forwarded to.
type ExchangeConfig struct {
	URL     string
	Name    string
	Durable bool
}

// PublisherProvider builds AMQP publishers for the forwarding sink.
type PublisherProvider struct {
	logger watermill.LoggerAdapter
}

func NewPublisherProvider(logger watermill.LoggerAdapter) *PublisherProvider {
	return &PublisherProvider{logger: logger}
}

// Build returns a publisher whose topic is used as the routing key on a
// single topic exchange.
func (pp *PublisherProvider) Build(ex ExchangeConfig) (message.Publisher, error) {
	if ex.URL == "" {
		return nil, fmt.Errorf("amqp publisher: empty url")
	}

	cfg := amqp.NewDurablePubSubConfig(ex.URL, nil)
	cfg.Exchange = amqp.ExchangeConfig{
		GenerateName: func(string) string { return ex.Name },
		Type:         "topic",
		Durable:      ex.Durable,
	}
	cfg.Publish.GenerateRoutingKey = func(topic string) string { return topic }

	pub, err := amqp.NewPublisher(cfg, pp.logger)
	if err != nil {
		return nil, fmt.Errorf("amqp publisher: %w", err)
	}
	return pub, nil
}
