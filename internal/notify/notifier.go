package notify

import (
	"context"
)

// Notifier defines the interface for publishing portal events.
type Notifier interface {
	NotifyBookingConfirmed(ctx context.Context, e BookingConfirmedEvent) error
	NotifyBookingCancelled(ctx context.Context, e BookingCancelledEvent) error
	NotifyRequestCreated(ctx context.Context, e RequestCreatedEvent) error
	NotifyRequestMessageAdded(ctx context.Context, e RequestMessageAddedEvent) error
}

// NoopNotifier is a no-op implementation used when messaging is disabled.
type NoopNotifier struct{}

func (NoopNotifier) NotifyBookingConfirmed(context.Context, BookingConfirmedEvent) error       { return nil }
func (NoopNotifier) NotifyBookingCancelled(context.Context, BookingCancelledEvent) error       { return nil }
func (NoopNotifier) NotifyRequestCreated(context.Context, RequestCreatedEvent) error           { return nil }
func (NoopNotifier) NotifyRequestMessageAdded(context.Context, RequestMessageAddedEvent) error { return nil }

// Publisher is satisfied by *mq.Publisher.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// AMQPNotifier publishes each event as JSON on a topic exchange.
type AMQPNotifier struct {
	pub Publisher
}

func NewAMQPNotifier(pub Publisher) *AMQPNotifier {
	return &AMQPNotifier{pub: pub}
}

func (n *AMQPNotifier) NotifyBookingConfirmed(ctx context.Context, e BookingConfirmedEvent) error {
	return n.pub.PublishJSON(ctx, KeyBookingConfirmed, e)
}

func (n *AMQPNotifier) NotifyBookingCancelled(ctx context.Context, e BookingCancelledEvent) error {
	return n.pub.PublishJSON(ctx, KeyBookingCancelled, e)
}

func (n *AMQPNotifier) NotifyRequestCreated(ctx context.Context, e RequestCreatedEvent) error {
	return n.pub.PublishJSON(ctx, KeyRequestCreated, e)
}

func (n *AMQPNotifier) NotifyRequestMessageAdded(ctx context.Context, e RequestMessageAddedEvent) error {
	// admins see every message in the console; only replies to someone else are worth a push
	if e.AuthorID == e.OwnerID {
		return nil
	}
	return n.pub.PublishJSON(ctx, KeyRequestMessageAdded, e)
}
