package messaging

import (
	"context"
	"sync"
	"testing"

	"cloud.google.com/go/pubsub"
	subapi "cloud.google.com/go/pubsub/apiv1"
	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// =============================================================================
//  Fakes
// =============================================================================

type fakePublishResult struct {
	id  string
	err error
}

func (r fakePublishResult) Get(_ context.Context) (string, error) { return r.id, r.err }

type fakePublisher struct {
	mu        sync.Mutex
	published []*pubsubpb.PubsubMessage
	result    fakePublishResult
}

func (p *fakePublisher) Publish(_ context.Context, msg *pubsubpb.PubsubMessage) PublishResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, msg)
	return p.result
}

type fakePublisherFactory struct {
	publisher *fakePublisher
	err       error

	mu     sync.Mutex
	topics []string
}

func (f *fakePublisherFactory) Publisher(topic string) (Publisher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	if f.err != nil {
		return nil, f.err
	}
	return f.publisher, nil
}

type fakePullClient struct {
	mu sync.Mutex

	pullResponse *pubsubpb.PullResponse
	pullErr      error
	pullRequests []*pubsubpb.PullRequest

	ackErr      error
	ackRequests []*pubsubpb.AcknowledgeRequest

	modAckErr      error
	modAckRequests []*pubsubpb.ModifyAckDeadlineRequest
}

func (c *fakePullClient) Pull(_ context.Context, req *pubsubpb.PullRequest, _ ...gax.CallOption) (*pubsubpb.PullResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pullRequests = append(c.pullRequests, req)
	if c.pullErr != nil {
		return nil, c.pullErr
	}
	if c.pullResponse == nil {
		return &pubsubpb.PullResponse{}, nil
	}
	return c.pullResponse, nil
}

func (c *fakePullClient) Acknowledge(_ context.Context, req *pubsubpb.AcknowledgeRequest, _ ...gax.CallOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ackRequests = append(c.ackRequests, req)
	return c.ackErr
}

func (c *fakePullClient) ModifyAckDeadline(_ context.Context, req *pubsubpb.ModifyAckDeadlineRequest, _ ...gax.CallOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modAckRequests = append(c.modAckRequests, req)
	return c.modAckErr
}

type fakeSubscriberFactory struct {
	pullClient PullClient
	puller     StreamingPuller
	pullErr    error
	pullerErr  error
	projectID  string
}

func (f *fakeSubscriberFactory) StreamingPuller(_ string) (StreamingPuller, error) {
	if f.pullerErr != nil {
		return nil, f.pullerErr
	}
	return f.puller, nil
}

func (f *fakeSubscriberFactory) PullClient() (PullClient, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return f.pullClient, nil
}

func (f *fakeSubscriberFactory) SubscriptionName(subscription string) string {
	return "projects/" + f.projectID + "/subscriptions/" + subscription
}

type fakeStreamingPuller struct {
	receiveErr error
}

func (p *fakeStreamingPuller) Receive(ctx context.Context, _ func(context.Context, *pubsub.Message)) error {
	if p.receiveErr != nil {
		return p.receiveErr
	}
	<-ctx.Done()
	return ctx.Err()
}

// =============================================================================
//  pstest server setup
// =============================================================================

// setupTestPubsub starts an in-process fake Pub/Sub server, creates a topic
// and subscription on it and returns connected SDK clients. Using
// option.WithEndpoint lets each client manage its own connection, which
// avoids racing on a shared one during cleanup.
func setupTestPubsub(t *testing.T, projectID, topicID, subID string) (*pubsub.Client, *subapi.SubscriberClient) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	opts := []option.ClientOption{
		option.WithEndpoint(srv.Addr),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		option.WithoutAuthentication(),
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	require.NoError(t, err)

	topic, err := client.CreateTopic(ctx, topicID)
	require.NoError(t, err)
	_, err = client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	pullClient, err := subapi.NewSubscriberClient(ctx, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pullClient.Close())
		require.NoError(t, client.Close())
		require.NoError(t, srv.Close())
	})

	return client, pullClient
}
