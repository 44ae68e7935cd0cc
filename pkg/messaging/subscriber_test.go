package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSubscriberTemplate(t *testing.T, factory SubscriberFactory) *SubscriberTemplate {
	t.Helper()
	template, err := NewSubscriberTemplate(factory, zerolog.Nop())
	require.NoError(t, err)
	return template
}

func pullResponse(ackIDs ...string) *pubsubpb.PullResponse {
	resp := &pubsubpb.PullResponse{}
	for _, ackID := range ackIDs {
		resp.ReceivedMessages = append(resp.ReceivedMessages, &pubsubpb.ReceivedMessage{
			AckId:   ackID,
			Message: &pubsubpb.PubsubMessage{MessageId: "msg-" + ackID, Data: []byte(`{"name":"n","count":1}`)},
		})
	}
	return resp
}

func TestNewSubscriberTemplateRequiresFactory(t *testing.T) {
	_, err := NewSubscriberTemplate(nil, zerolog.Nop())
	require.Error(t, err)
}

func TestPullWrapsReceivedMessages(t *testing.T) {
	client := &fakePullClient{pullResponse: pullResponse("a1", "a2")}
	factory := &fakeSubscriberFactory{pullClient: client, projectID: "test-project"}
	template := newTestSubscriberTemplate(t, factory)

	msgs, err := template.Pull(context.Background(), "garden-sub", 10, false)

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a1", msgs[0].AckID())
	assert.Equal(t, "projects/test-project/subscriptions/garden-sub", msgs[0].Subscription())
	assert.Equal(t, "msg-a1", msgs[0].Message.GetMessageId())

	require.Len(t, client.pullRequests, 1)
	req := client.pullRequests[0]
	assert.Equal(t, int32(10), req.GetMaxMessages())
	assert.False(t, req.GetReturnImmediately())
	assert.Equal(t, "projects/test-project/subscriptions/garden-sub", req.GetSubscription())
}

func TestPullReturnImmediatelyEmptyIsNotAnError(t *testing.T) {
	client := &fakePullClient{pullResponse: &pubsubpb.PullResponse{}}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	msgs, err := template.Pull(context.Background(), "quiet-sub", 5, true)

	require.NoError(t, err)
	assert.Empty(t, msgs)
	require.Len(t, client.pullRequests, 1)
	assert.True(t, client.pullRequests[0].GetReturnImmediately())
}

func TestPullSurfacesClientError(t *testing.T) {
	cause := errors.New("subscription not found")
	client := &fakePullClient{pullErr: cause}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	_, err := template.Pull(context.Background(), "missing", 5, false)
	assert.ErrorIs(t, err, cause)
}

func TestPullAsyncResolvesFuture(t *testing.T) {
	client := &fakePullClient{pullResponse: pullResponse("a1")}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	msgs, err := template.PullAsync(context.Background(), "garden-sub", 1, true).Get(context.Background())

	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestAckGroupsBySubscription(t *testing.T) {
	client := &fakePullClient{}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	msgs := []*AckableMessage{
		{ackID: "a1", subscription: "projects/p/subscriptions/s1", t: template},
		{ackID: "a2", subscription: "projects/p/subscriptions/s2", t: template},
		{ackID: "a3", subscription: "projects/p/subscriptions/s1", t: template},
	}
	_, err := template.Ack(context.Background(), msgs).Get(context.Background())
	require.NoError(t, err)

	require.Len(t, client.ackRequests, 2)
	byName := map[string][]string{}
	for _, req := range client.ackRequests {
		byName[req.GetSubscription()] = req.GetAckIds()
	}
	assert.ElementsMatch(t, []string{"a1", "a3"}, byName["projects/p/subscriptions/s1"])
	assert.ElementsMatch(t, []string{"a2"}, byName["projects/p/subscriptions/s2"])
}

func TestAckEmptyCollectionMakesNoCall(t *testing.T) {
	client := &fakePullClient{}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	_, err := template.Ack(context.Background(), nil).Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, client.ackRequests)

	_, err = template.Nack(context.Background(), []*AckableMessage{}).Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, client.modAckRequests)
}

func TestAckFailureFailsWholeBatch(t *testing.T) {
	cause := errors.New("deadline exceeded")
	client := &fakePullClient{ackErr: cause}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	msgs := []*AckableMessage{{ackID: "a1", subscription: "projects/p/subscriptions/s1", t: template}}
	_, err := template.Ack(context.Background(), msgs).Get(context.Background())
	assert.ErrorIs(t, err, cause)
}

func TestNackUsesZeroDeadline(t *testing.T) {
	client := &fakePullClient{}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	msgs := []*AckableMessage{{ackID: "a1", subscription: "projects/p/subscriptions/s1", t: template}}
	_, err := template.Nack(context.Background(), msgs).Get(context.Background())
	require.NoError(t, err)

	require.Len(t, client.modAckRequests, 1)
	req := client.modAckRequests[0]
	assert.Equal(t, int32(0), req.GetAckDeadlineSeconds())
	assert.Equal(t, []string{"a1"}, req.GetAckIds())
}

func TestModifyAckDeadlinePassesSeconds(t *testing.T) {
	client := &fakePullClient{}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	msgs := []*AckableMessage{{ackID: "a1", subscription: "projects/p/subscriptions/s1", t: template}}
	_, err := template.ModifyAckDeadline(context.Background(), msgs, 45).Get(context.Background())
	require.NoError(t, err)

	require.Len(t, client.modAckRequests, 1)
	assert.Equal(t, int32(45), client.modAckRequests[0].GetAckDeadlineSeconds())
}

func TestAckableMessageDelegatesToTemplate(t *testing.T) {
	client := &fakePullClient{pullResponse: pullResponse("a1")}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	msgs, err := template.Pull(context.Background(), "garden-sub", 1, true)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	_, err = msgs[0].Ack(context.Background()).Get(context.Background())
	require.NoError(t, err)
	require.Len(t, client.ackRequests, 1)
	assert.Equal(t, []string{"a1"}, client.ackRequests[0].GetAckIds())

	_, err = msgs[0].ModifyAckDeadline(context.Background(), 30).Get(context.Background())
	require.NoError(t, err)
	require.Len(t, client.modAckRequests, 1)
}

func TestPullAndAckAcknowledgesEverything(t *testing.T) {
	client := &fakePullClient{pullResponse: pullResponse("a1", "a2")}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	envelopes, err := template.PullAndAck(context.Background(), "garden-sub", 10, true)

	require.NoError(t, err)
	require.Len(t, envelopes, 2)
	assert.Equal(t, "msg-a1", envelopes[0].GetMessageId())
	require.Len(t, client.ackRequests, 1)
	assert.ElementsMatch(t, []string{"a1", "a2"}, client.ackRequests[0].GetAckIds())
}

func TestPullAndAckEmptyPullSkipsAck(t *testing.T) {
	client := &fakePullClient{}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	envelopes, err := template.PullAndAck(context.Background(), "quiet-sub", 10, true)

	require.NoError(t, err)
	assert.Empty(t, envelopes)
	assert.Empty(t, client.ackRequests)
}

func TestPullNextAcksAndReturnsMessage(t *testing.T) {
	client := &fakePullClient{pullResponse: pullResponse("a1")}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	msg, err := template.PullNext(context.Background(), "garden-sub")

	require.NoError(t, err)
	assert.Equal(t, "msg-a1", msg.GetMessageId())
	require.Len(t, client.pullRequests, 1)
	assert.Equal(t, int32(1), client.pullRequests[0].GetMaxMessages())
	require.Len(t, client.ackRequests, 1)
}

func TestPullNextEmptyReturnsErrEmptyResult(t *testing.T) {
	client := &fakePullClient{}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	_, err := template.PullNext(context.Background(), "quiet-sub")
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestPullNextAsyncResolvesErrEmptyResult(t *testing.T) {
	client := &fakePullClient{}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	_, err := template.PullNextAsync(context.Background(), "quiet-sub").Get(context.Background())
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestPullAndConvertDecodesPayloads(t *testing.T) {
	client := &fakePullClient{pullResponse: pullResponse("a1", "a2")}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	converted, err := PullAndConvert[testPayload](context.Background(), template, "garden-sub", 10, true)

	require.NoError(t, err)
	require.Len(t, converted, 2)
	assert.Equal(t, testPayload{Name: "n", Count: 1}, converted[0].Payload)
	assert.Equal(t, "a1", converted[0].AckID())
}

func TestPullAndConvertFailsWholeCallOnBadPayload(t *testing.T) {
	resp := pullResponse("a1")
	resp.ReceivedMessages = append(resp.ReceivedMessages, &pubsubpb.ReceivedMessage{
		AckId:   "a-bad",
		Message: &pubsubpb.PubsubMessage{MessageId: "msg-bad", Data: []byte("not json")},
	})
	client := &fakePullClient{pullResponse: resp}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	_, err := PullAndConvert[testPayload](context.Background(), template, "garden-sub", 10, true)

	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Empty(t, client.ackRequests, "failed conversions must leave messages unacknowledged")
}

func TestPullAndConvertAsyncResolvesFuture(t *testing.T) {
	client := &fakePullClient{pullResponse: pullResponse("a1")}
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{pullClient: client, projectID: "p"})

	converted, err := PullAndConvertAsync[testPayload](context.Background(), template, "garden-sub", 1, true).Get(context.Background())

	require.NoError(t, err)
	require.Len(t, converted, 1)
	assert.Equal(t, testPayload{Name: "n", Count: 1}, converted[0].Payload)
}

func TestSubscribeRequiresHandler(t *testing.T) {
	template := newTestSubscriberTemplate(t, &fakeSubscriberFactory{projectID: "p"})

	_, err := template.Subscribe(context.Background(), "garden-sub", nil)
	require.Error(t, err)
}

func TestSubscribeStopClosesHandle(t *testing.T) {
	factory := &fakeSubscriberFactory{puller: &fakeStreamingPuller{}, projectID: "p"}
	template := newTestSubscriberTemplate(t, factory)

	handle, err := template.Subscribe(context.Background(), "garden-sub", func(context.Context, *ReceivedMessage) {})
	require.NoError(t, err)
	assert.NoError(t, handle.Err())

	handle.Stop()
	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop in time")
	}
	assert.NoError(t, handle.Err(), "a cancellation stop is not an error")
}

func TestSubscribeSurfacesTerminalReceiveError(t *testing.T) {
	cause := errors.New("stream broken")
	factory := &fakeSubscriberFactory{puller: &fakeStreamingPuller{receiveErr: cause}, projectID: "p"}
	template := newTestSubscriberTemplate(t, factory)

	handle, err := template.Subscribe(context.Background(), "garden-sub", func(context.Context, *ReceivedMessage) {})
	require.NoError(t, err)

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop in time")
	}
	assert.ErrorIs(t, handle.Err(), cause)
}
