package messaging

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SubscriberTemplate consumes messages from subscriptions through a
// SubscriberFactory, either by streaming them to a handler or by synchronous
// pulls. Acknowledgement batching is the only work it does itself; delivery,
// leasing and redelivery are owned by the underlying clients.
type SubscriberTemplate struct {
	factory   SubscriberFactory
	converter *converterShare
	logger    zerolog.Logger
}

// NewSubscriberTemplate creates a subscriber template with the default JSON
// message converter.
func NewSubscriberTemplate(factory SubscriberFactory, logger zerolog.Logger) (*SubscriberTemplate, error) {
	return newSubscriberTemplate(factory, newConverterShare(JSONMessageConverter{}), logger)
}

func newSubscriberTemplate(factory SubscriberFactory, converter *converterShare, logger zerolog.Logger) (*SubscriberTemplate, error) {
	if factory == nil {
		return nil, fmt.Errorf("subscriber factory cannot be nil")
	}
	return &SubscriberTemplate{
		factory:   factory,
		converter: converter,
		logger:    logger.With().Str("component", "SubscriberTemplate").Logger(),
	}, nil
}

// MessageConverter returns the converter used by the convert variants.
func (t *SubscriberTemplate) MessageConverter() MessageConverter { return t.converter.Get() }

// SetMessageConverter replaces the converter. Replacement is last-write-wins
// with respect to in-flight conversions.
func (t *SubscriberTemplate) SetMessageConverter(c MessageConverter) {
	if c == nil {
		t.logger.Warn().Msg("Ignoring nil message converter.")
		return
	}
	t.converter.Set(c)
}

// SubscriptionHandle controls a streaming flow started by Subscribe.
type SubscriptionHandle struct {
	subscription string
	cancel       context.CancelFunc
	done         chan struct{}
	err          error
}

// Subscription returns the subscription this handle was started on.
func (h *SubscriptionHandle) Subscription() string { return h.subscription }

// Stop asks the underlying client to shut the flow down. Done is closed once
// the client has drained.
func (h *SubscriptionHandle) Stop() { h.cancel() }

// Done returns a channel closed when the flow has fully stopped.
func (h *SubscriptionHandle) Done() <-chan struct{} { return h.done }

// Err reports the terminal receive error, if any. It returns nil while the
// flow is still running.
func (h *SubscriptionHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Subscribe registers handler to be invoked once per received message. The
// handler runs on goroutines managed by the underlying client; this layer
// does not serialize invocations. The returned handle stops the flow.
func (t *SubscriberTemplate) Subscribe(ctx context.Context, subscription string, handler func(context.Context, *ReceivedMessage)) (*SubscriptionHandle, error) {
	if handler == nil {
		return nil, fmt.Errorf("message handler cannot be nil")
	}
	puller, err := t.factory.StreamingPuller(subscription)
	if err != nil {
		return nil, fmt.Errorf("create streaming puller for %s: %w", subscription, err)
	}

	recvCtx, cancel := context.WithCancel(ctx)
	h := &SubscriptionHandle{
		subscription: subscription,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		err := puller.Receive(recvCtx, func(mctx context.Context, msg *pubsub.Message) {
			handler(mctx, newReceivedMessage(msg))
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Error().Err(err).Str("subscription_id", subscription).Msg("Streaming receive exited with error.")
			h.err = err
		}
	}()
	t.logger.Info().Str("subscription_id", subscription).Msg("Subscribed to subscription.")
	return h, nil
}

// SubscribeAndConvert registers handler for messages whose payloads decode
// into T. A message the converter cannot decode is nacked for redelivery and
// the flow continues; the subscription is never aborted by a bad payload.
func SubscribeAndConvert[T any](ctx context.Context, t *SubscriberTemplate, subscription string, handler func(context.Context, *ConvertedReceivedMessage[T])) (*SubscriptionHandle, error) {
	if handler == nil {
		return nil, fmt.Errorf("message handler cannot be nil")
	}
	return t.Subscribe(ctx, subscription, func(mctx context.Context, m *ReceivedMessage) {
		var payload T
		if err := t.converter.Get().FromMessage(m.Message, &payload); err != nil {
			t.logger.Warn().Err(err).
				Str("subscription_id", subscription).
				Str("msg_id", m.Message.GetMessageId()).
				Msg("Failed to convert message payload, nacking.")
			m.Nack()
			return
		}
		handler(mctx, &ConvertedReceivedMessage[T]{ReceivedMessage: m, Payload: payload})
	})
}

// Pull synchronously pulls up to maxMessages from subscription. With
// returnImmediately it returns whatever is buffered, possibly nothing;
// otherwise it blocks up to the client's window. An empty result is an empty
// slice, not an error.
func (t *SubscriberTemplate) Pull(ctx context.Context, subscription string, maxMessages int, returnImmediately bool) ([]*AckableMessage, error) {
	client, err := t.factory.PullClient()
	if err != nil {
		return nil, err
	}
	name := t.factory.SubscriptionName(subscription)
	resp, err := client.Pull(ctx, &pubsubpb.PullRequest{
		Subscription: name,
		MaxMessages:  int32(maxMessages),
		// Deprecated upstream, but it is the only way to get a non-blocking
		// pull, which this operation's contract requires.
		ReturnImmediately: returnImmediately,
	})
	if err != nil {
		return nil, fmt.Errorf("pull from %s: %w", name, err)
	}

	received := resp.GetReceivedMessages()
	msgs := make([]*AckableMessage, 0, len(received))
	for _, rm := range received {
		msgs = append(msgs, &AckableMessage{
			Message:      rm.GetMessage(),
			ackID:        rm.GetAckId(),
			subscription: name,
			t:            t,
		})
	}
	t.logger.Debug().Str("subscription_id", subscription).Int("count", len(msgs)).Msg("Pulled messages.")
	return msgs, nil
}

// PullAsync is the non-blocking variant of Pull.
func (t *SubscriberTemplate) PullAsync(ctx context.Context, subscription string, maxMessages int, returnImmediately bool) *Future[[]*AckableMessage] {
	return goFuture(func() ([]*AckableMessage, error) {
		return t.Pull(ctx, subscription, maxMessages, returnImmediately)
	})
}

// PullAndConvert pulls messages and eagerly decodes every payload into T.
// A single undecodable message fails the whole call; the pulled messages are
// left unacknowledged and redeliver after their deadline.
func PullAndConvert[T any](ctx context.Context, t *SubscriberTemplate, subscription string, maxMessages int, returnImmediately bool) ([]*ConvertedMessage[T], error) {
	msgs, err := t.Pull(ctx, subscription, maxMessages, returnImmediately)
	if err != nil {
		return nil, err
	}
	converted := make([]*ConvertedMessage[T], 0, len(msgs))
	for _, m := range msgs {
		var payload T
		if err := t.converter.Get().FromMessage(m.Message, &payload); err != nil {
			return nil, fmt.Errorf("convert message %s: %w", m.Message.GetMessageId(), err)
		}
		converted = append(converted, &ConvertedMessage[T]{AckableMessage: m, Payload: payload})
	}
	return converted, nil
}

// PullAndConvertAsync is the non-blocking variant of PullAndConvert.
func PullAndConvertAsync[T any](ctx context.Context, t *SubscriberTemplate, subscription string, maxMessages int, returnImmediately bool) *Future[[]*ConvertedMessage[T]] {
	return goFuture(func() ([]*ConvertedMessage[T], error) {
		return PullAndConvert[T](ctx, t, subscription, maxMessages, returnImmediately)
	})
}

// PullAndAck pulls messages and immediately acknowledges all of them,
// returning the raw envelopes. Use it for fire-and-forget consumption where
// handle lifecycle tracking is unnecessary.
func (t *SubscriberTemplate) PullAndAck(ctx context.Context, subscription string, maxMessages int, returnImmediately bool) ([]*pubsubpb.PubsubMessage, error) {
	msgs, err := t.Pull(ctx, subscription, maxMessages, returnImmediately)
	if err != nil {
		return nil, err
	}
	if len(msgs) > 0 {
		if _, err := t.Ack(ctx, msgs).Get(ctx); err != nil {
			return nil, err
		}
	}
	envelopes := make([]*pubsubpb.PubsubMessage, 0, len(msgs))
	for _, m := range msgs {
		envelopes = append(envelopes, m.Message)
	}
	return envelopes, nil
}

// PullAndAckAsync is the non-blocking variant of PullAndAck.
func (t *SubscriberTemplate) PullAndAckAsync(ctx context.Context, subscription string, maxMessages int, returnImmediately bool) *Future[[]*pubsubpb.PubsubMessage] {
	return goFuture(func() ([]*pubsubpb.PubsubMessage, error) {
		return t.PullAndAck(ctx, subscription, maxMessages, returnImmediately)
	})
}

// PullNext pulls exactly one message, blocking up to the client's window,
// acknowledges it and returns its envelope. It returns ErrEmptyResult when
// no message was available.
func (t *SubscriberTemplate) PullNext(ctx context.Context, subscription string) (*pubsubpb.PubsubMessage, error) {
	msgs, err := t.Pull(ctx, subscription, 1, false)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrEmptyResult
	}
	if _, err := msgs[0].Ack(ctx).Get(ctx); err != nil {
		return nil, err
	}
	return msgs[0].Message, nil
}

// PullNextAsync is the non-blocking variant of PullNext.
func (t *SubscriberTemplate) PullNextAsync(ctx context.Context, subscription string) *Future[*pubsubpb.PubsubMessage] {
	return goFuture(func() (*pubsubpb.PubsubMessage, error) {
		return t.PullNext(ctx, subscription)
	})
}

// Ack acknowledges the given messages, issuing one request per distinct
// source subscription. A failure of any request fails the whole future; no
// partial retry is attempted. An empty input resolves immediately without a
// network call.
func (t *SubscriberTemplate) Ack(ctx context.Context, msgs []*AckableMessage) *Future[struct{}] {
	return t.forEachSubscription(ctx, msgs, func(gctx context.Context, client PullClient, subscription string, ackIDs []string) error {
		return client.Acknowledge(gctx, &pubsubpb.AcknowledgeRequest{
			Subscription: subscription,
			AckIds:       ackIDs,
		})
	})
}

// Nack signals that the given messages should redeliver sooner. Pub/Sub has
// no dedicated nack operation; setting the ack deadline to zero is how the
// protocol expresses it.
func (t *SubscriberTemplate) Nack(ctx context.Context, msgs []*AckableMessage) *Future[struct{}] {
	return t.ModifyAckDeadline(ctx, msgs, 0)
}

// ModifyAckDeadline extends or shortens the redelivery deadline for the
// given messages, one request per distinct source subscription.
func (t *SubscriberTemplate) ModifyAckDeadline(ctx context.Context, msgs []*AckableMessage, seconds int) *Future[struct{}] {
	return t.forEachSubscription(ctx, msgs, func(gctx context.Context, client PullClient, subscription string, ackIDs []string) error {
		return client.ModifyAckDeadline(gctx, &pubsubpb.ModifyAckDeadlineRequest{
			Subscription:       subscription,
			AckIds:             ackIDs,
			AckDeadlineSeconds: int32(seconds),
		})
	})
}

func (t *SubscriberTemplate) forEachSubscription(ctx context.Context, msgs []*AckableMessage, fn func(context.Context, PullClient, string, []string) error) *Future[struct{}] {
	if len(msgs) == 0 {
		return resolvedFuture(struct{}{}, nil)
	}
	client, err := t.factory.PullClient()
	if err != nil {
		return resolvedFuture(struct{}{}, err)
	}

	bySubscription := make(map[string][]string)
	for _, m := range msgs {
		bySubscription[m.subscription] = append(bySubscription[m.subscription], m.ackID)
	}

	return goFuture(func() (struct{}, error) {
		g, gctx := errgroup.WithContext(ctx)
		for subscription, ackIDs := range bySubscription {
			subscription, ackIDs := subscription, ackIDs
			g.Go(func() error {
				return fn(gctx, client, subscription, ackIDs)
			})
		}
		return struct{}{}, g.Wait()
	})
}
