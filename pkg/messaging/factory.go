package messaging

import (
	"context"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"github.com/googleapis/gax-go/v2"
)

// PublishResult resolves to the server-assigned message ID of a published
// message. *pubsub.PublishResult satisfies it.
type PublishResult interface {
	Get(ctx context.Context) (string, error)
}

// Publisher publishes messages to a single topic.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsubpb.PubsubMessage) PublishResult
}

// PublisherFactory returns a ready-to-use Publisher for a topic. Client
// construction, credentials and channel management are the factory's
// responsibility.
type PublisherFactory interface {
	Publisher(topic string) (Publisher, error)
}

// StreamingPuller delivers messages to a handler until its context is
// cancelled. *pubsub.Subscription satisfies it; the handler's concurrency
// model is owned by the underlying client.
type StreamingPuller interface {
	Receive(ctx context.Context, f func(ctx context.Context, msg *pubsub.Message)) error
}

// PullClient is the unary pull and acknowledgement surface of the subscriber
// API. *apiv1.SubscriberClient satisfies it.
type PullClient interface {
	Pull(ctx context.Context, req *pubsubpb.PullRequest, opts ...gax.CallOption) (*pubsubpb.PullResponse, error)
	Acknowledge(ctx context.Context, req *pubsubpb.AcknowledgeRequest, opts ...gax.CallOption) error
	ModifyAckDeadline(ctx context.Context, req *pubsubpb.ModifyAckDeadlineRequest, opts ...gax.CallOption) error
}

// SubscriberFactory returns the clients a SubscriberTemplate consumes.
type SubscriberFactory interface {
	// StreamingPuller returns a streaming client bound to the subscription.
	StreamingPuller(subscription string) (StreamingPuller, error)
	// PullClient returns the unary pull/ack client.
	PullClient() (PullClient, error)
	// SubscriptionName expands a short subscription ID to its full resource
	// name. Already-qualified names are returned unchanged.
	SubscriptionName(subscription string) string
}
