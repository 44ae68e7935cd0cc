package messaging

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"github.com/rs/zerolog"
)

// PublisherTemplate publishes envelopes and converted payloads to topics
// through a PublisherFactory. All failures resolve the returned future; no
// retries are performed in this layer.
type PublisherTemplate struct {
	factory   PublisherFactory
	converter *converterShare
	logger    zerolog.Logger
}

// NewPublisherTemplate creates a publisher template with the default JSON
// message converter.
func NewPublisherTemplate(factory PublisherFactory, logger zerolog.Logger) (*PublisherTemplate, error) {
	return newPublisherTemplate(factory, newConverterShare(JSONMessageConverter{}), logger)
}

func newPublisherTemplate(factory PublisherFactory, converter *converterShare, logger zerolog.Logger) (*PublisherTemplate, error) {
	if factory == nil {
		return nil, fmt.Errorf("publisher factory cannot be nil")
	}
	return &PublisherTemplate{
		factory:   factory,
		converter: converter,
		logger:    logger.With().Str("component", "PublisherTemplate").Logger(),
	}, nil
}

// MessageConverter returns the converter used by PublishPayload.
func (t *PublisherTemplate) MessageConverter() MessageConverter { return t.converter.Get() }

// SetMessageConverter replaces the converter. Replacement is last-write-wins
// with respect to in-flight conversions.
func (t *PublisherTemplate) SetMessageConverter(c MessageConverter) {
	if c == nil {
		t.logger.Warn().Msg("Ignoring nil message converter.")
		return
	}
	t.converter.Set(c)
}

// Publish sends a pre-built envelope to topic. The future resolves to the
// server-assigned message ID, or to a *PublishError if the client rejects
// the topic or transport fails.
func (t *PublisherTemplate) Publish(ctx context.Context, topic string, msg *pubsubpb.PubsubMessage) *Future[string] {
	pub, err := t.factory.Publisher(topic)
	if err != nil {
		return resolvedFuture("", &PublishError{Topic: topic, Err: err})
	}
	res := pub.Publish(ctx, msg)
	return goFuture(func() (string, error) {
		id, err := res.Get(ctx)
		if err != nil {
			t.logger.Error().Err(err).Str("topic_id", topic).Msg("Publish failed.")
			return "", &PublishError{Topic: topic, Err: err}
		}
		return id, nil
	})
}

// PublishPayload converts payload with the configured converter and
// publishes the result. headers may be nil. A conversion failure resolves
// the future with the *ConversionError.
func (t *PublisherTemplate) PublishPayload(ctx context.Context, topic string, payload any, headers map[string]string) *Future[string] {
	msg, err := t.converter.Get().ToMessage(payload, headers)
	if err != nil {
		return resolvedFuture("", err)
	}
	return t.Publish(ctx, topic, msg)
}
