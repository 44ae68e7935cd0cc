package messaging

import (
	"context"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// AckableMessage pairs a pulled message with its ack token and the
// subscription it came from. A well-behaved caller resolves every handle
// exactly once with Ack or Nack; this layer does not enforce that, and an
// unresolved handle redelivers once its ack deadline expires.
type AckableMessage struct {
	// Message is the received envelope. Treat it as read-only.
	Message *pubsubpb.PubsubMessage

	ackID        string
	subscription string
	t            *SubscriberTemplate
}

// AckID returns the delivery token for this message.
func (m *AckableMessage) AckID() string { return m.ackID }

// Subscription returns the full resource name of the source subscription.
func (m *AckableMessage) Subscription() string { return m.subscription }

// Ack acknowledges this message.
func (m *AckableMessage) Ack(ctx context.Context) *Future[struct{}] {
	return m.t.Ack(ctx, []*AckableMessage{m})
}

// Nack signals that redelivery should occur sooner.
func (m *AckableMessage) Nack(ctx context.Context) *Future[struct{}] {
	return m.t.Nack(ctx, []*AckableMessage{m})
}

// ModifyAckDeadline extends or shortens this message's redelivery deadline.
func (m *AckableMessage) ModifyAckDeadline(ctx context.Context, seconds int) *Future[struct{}] {
	return m.t.ModifyAckDeadline(ctx, []*AckableMessage{m}, seconds)
}

// ConvertedMessage decorates an AckableMessage with its decoded payload.
type ConvertedMessage[T any] struct {
	*AckableMessage
	Payload T
}

// ReceivedMessage is handed to streaming subscribe handlers. Ack and Nack
// delegate to the streaming client's lease management and must be called
// before the handler returns control of the message.
type ReceivedMessage struct {
	// Message is the received envelope. Treat it as read-only.
	Message *pubsubpb.PubsubMessage

	ack  func()
	nack func()
}

func newReceivedMessage(msg *pubsub.Message) *ReceivedMessage {
	return &ReceivedMessage{
		Message: &pubsubpb.PubsubMessage{
			Data:        msg.Data,
			Attributes:  msg.Attributes,
			MessageId:   msg.ID,
			OrderingKey: msg.OrderingKey,
			PublishTime: timestamppb.New(msg.PublishTime),
		},
		ack:  msg.Ack,
		nack: msg.Nack,
	}
}

func (m *ReceivedMessage) Ack()  { m.ack() }
func (m *ReceivedMessage) Nack() { m.nack() }

// ConvertedReceivedMessage decorates a ReceivedMessage with its decoded
// payload.
type ConvertedReceivedMessage[T any] struct {
	*ReceivedMessage
	Payload T
}
