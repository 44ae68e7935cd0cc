package messaging

import (
	"context"

	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"github.com/rs/zerolog"
)

// Template is the main Pub/Sub integration component, combining publishing
// to topics and consuming from subscriptions over a single shared message
// converter. Replacing the converter is visible to both paths.
type Template struct {
	publisher  *PublisherTemplate
	subscriber *SubscriberTemplate
	converter  *converterShare
}

// NewTemplate wires a publisher and subscriber template around the given
// factories.
func NewTemplate(publisherFactory PublisherFactory, subscriberFactory SubscriberFactory, logger zerolog.Logger) (*Template, error) {
	converter := newConverterShare(JSONMessageConverter{})
	publisher, err := newPublisherTemplate(publisherFactory, converter, logger)
	if err != nil {
		return nil, err
	}
	subscriber, err := newSubscriberTemplate(subscriberFactory, converter, logger)
	if err != nil {
		return nil, err
	}
	return &Template{
		publisher:  publisher,
		subscriber: subscriber,
		converter:  converter,
	}, nil
}

// Publisher returns the underlying publisher template.
func (t *Template) Publisher() *PublisherTemplate { return t.publisher }

// Subscriber returns the underlying subscriber template.
func (t *Template) Subscriber() *SubscriberTemplate { return t.subscriber }

// MessageConverter returns the shared converter.
func (t *Template) MessageConverter() MessageConverter { return t.converter.Get() }

// SetMessageConverter replaces the shared converter for both the publish and
// subscribe paths.
func (t *Template) SetMessageConverter(c MessageConverter) {
	t.publisher.SetMessageConverter(c)
}

func (t *Template) Publish(ctx context.Context, topic string, msg *pubsubpb.PubsubMessage) *Future[string] {
	return t.publisher.Publish(ctx, topic, msg)
}

func (t *Template) PublishPayload(ctx context.Context, topic string, payload any, headers map[string]string) *Future[string] {
	return t.publisher.PublishPayload(ctx, topic, payload, headers)
}

func (t *Template) Subscribe(ctx context.Context, subscription string, handler func(context.Context, *ReceivedMessage)) (*SubscriptionHandle, error) {
	return t.subscriber.Subscribe(ctx, subscription, handler)
}

func (t *Template) Pull(ctx context.Context, subscription string, maxMessages int, returnImmediately bool) ([]*AckableMessage, error) {
	return t.subscriber.Pull(ctx, subscription, maxMessages, returnImmediately)
}

func (t *Template) PullAsync(ctx context.Context, subscription string, maxMessages int, returnImmediately bool) *Future[[]*AckableMessage] {
	return t.subscriber.PullAsync(ctx, subscription, maxMessages, returnImmediately)
}

func (t *Template) PullAndAck(ctx context.Context, subscription string, maxMessages int, returnImmediately bool) ([]*pubsubpb.PubsubMessage, error) {
	return t.subscriber.PullAndAck(ctx, subscription, maxMessages, returnImmediately)
}

func (t *Template) PullAndAckAsync(ctx context.Context, subscription string, maxMessages int, returnImmediately bool) *Future[[]*pubsubpb.PubsubMessage] {
	return t.subscriber.PullAndAckAsync(ctx, subscription, maxMessages, returnImmediately)
}

func (t *Template) PullNext(ctx context.Context, subscription string) (*pubsubpb.PubsubMessage, error) {
	return t.subscriber.PullNext(ctx, subscription)
}

func (t *Template) PullNextAsync(ctx context.Context, subscription string) *Future[*pubsubpb.PubsubMessage] {
	return t.subscriber.PullNextAsync(ctx, subscription)
}

func (t *Template) Ack(ctx context.Context, msgs []*AckableMessage) *Future[struct{}] {
	return t.subscriber.Ack(ctx, msgs)
}

func (t *Template) Nack(ctx context.Context, msgs []*AckableMessage) *Future[struct{}] {
	return t.subscriber.Nack(ctx, msgs)
}

func (t *Template) ModifyAckDeadline(ctx context.Context, msgs []*AckableMessage, seconds int) *Future[struct{}] {
	return t.subscriber.ModifyAckDeadline(ctx, msgs, seconds)
}
