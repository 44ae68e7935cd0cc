package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/pubsub"
	subapi "cloud.google.com/go/pubsub/apiv1"
	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"github.com/rs/zerolog"
)

// GooglePublisherFactory creates publishers backed by an injected
// *pubsub.Client. Publishers are cached per topic so batching state inside
// the SDK topic object is reused across calls.
type GooglePublisherFactory struct {
	client *pubsub.Client
	logger zerolog.Logger

	mu         sync.RWMutex
	publishers map[string]*topicPublisher
}

// NewGooglePublisherFactory wraps an existing Pub/Sub client. The factory
// does not close the injected client.
func NewGooglePublisherFactory(client *pubsub.Client, logger zerolog.Logger) (*GooglePublisherFactory, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil for publisher factory")
	}
	return &GooglePublisherFactory{
		client:     client,
		logger:     logger.With().Str("component", "GooglePublisherFactory").Logger(),
		publishers: make(map[string]*topicPublisher),
	}, nil
}

// Publisher returns the cached publisher for topic, creating it on first use.
func (f *GooglePublisherFactory) Publisher(topic string) (Publisher, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	f.mu.RLock()
	p, ok := f.publishers[topic]
	f.mu.RUnlock()
	if ok {
		return p, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok = f.publishers[topic]; ok {
		return p, nil
	}
	p = &topicPublisher{topic: f.client.Topic(topic)}
	f.publishers[topic] = p
	f.logger.Debug().Str("topic_id", topic).Msg("Created publisher for topic.")
	return p, nil
}

// Stop flushes and stops every cached topic publisher. Call it once no more
// publishes are expected.
func (f *GooglePublisherFactory) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.publishers {
		p.topic.Stop()
	}
}

type topicPublisher struct {
	topic *pubsub.Topic
}

func (p *topicPublisher) Publish(ctx context.Context, msg *pubsubpb.PubsubMessage) PublishResult {
	return p.topic.Publish(ctx, &pubsub.Message{
		Data:        msg.GetData(),
		Attributes:  msg.GetAttributes(),
		OrderingKey: msg.GetOrderingKey(),
	})
}

// GoogleSubscriberFactory hands out streaming and unary pull clients backed
// by injected SDK clients. It does not close them.
type GoogleSubscriberFactory struct {
	client     *pubsub.Client
	pullClient *subapi.SubscriberClient
	projectID  string
	settings   ReceiveSettings
	logger     zerolog.Logger
}

// ReceiveSettings bounds the streaming client's outstanding work. Zero values
// leave the SDK defaults in place.
type ReceiveSettings struct {
	MaxOutstandingMessages int
	NumGoroutines          int
}

// NewGoogleSubscriberFactory wraps existing clients. pullClient may be nil
// when only streaming subscriptions are used; pull operations then fail.
func NewGoogleSubscriberFactory(client *pubsub.Client, pullClient *subapi.SubscriberClient, projectID string, settings ReceiveSettings, logger zerolog.Logger) (*GoogleSubscriberFactory, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil for subscriber factory")
	}
	if projectID == "" {
		return nil, fmt.Errorf("project ID cannot be empty for subscriber factory")
	}
	return &GoogleSubscriberFactory{
		client:     client,
		pullClient: pullClient,
		projectID:  projectID,
		settings:   settings,
		logger:     logger.With().Str("component", "GoogleSubscriberFactory").Logger(),
	}, nil
}

func (f *GoogleSubscriberFactory) StreamingPuller(subscription string) (StreamingPuller, error) {
	if subscription == "" {
		return nil, fmt.Errorf("subscription cannot be empty")
	}
	sub := f.client.Subscription(subscription)
	if f.settings.MaxOutstandingMessages > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = f.settings.MaxOutstandingMessages
	}
	if f.settings.NumGoroutines > 0 {
		sub.ReceiveSettings.NumGoroutines = f.settings.NumGoroutines
	}
	return sub, nil
}

func (f *GoogleSubscriberFactory) PullClient() (PullClient, error) {
	if f.pullClient == nil {
		return nil, fmt.Errorf("no pull client configured for subscriber factory")
	}
	return f.pullClient, nil
}

func (f *GoogleSubscriberFactory) SubscriptionName(subscription string) string {
	if strings.HasPrefix(subscription, "projects/") {
		return subscription
	}
	return fmt.Sprintf("projects/%s/subscriptions/%s", f.projectID, subscription)
}
