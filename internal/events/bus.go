// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/chillter/realtime/internal/metrics"
)

// Topic is the single topic all domain events are published on. Consumers
// switch on the kind metadata to decode the concrete payload.
const Topic = "chillter.domain"

// MetadataKind is the message metadata key carrying the event kind.
const MetadataKind = "kind"

// ErrUnknownKind is returned by Decode for a kind outside the closed set.
// Reaching it at runtime is a programming error: the kind set is closed and
// publishers can only construct the types defined in this package.
var ErrUnknownKind = errors.New("unknown domain event kind")

// Dispatcher is the in-process publish/subscribe bus for domain events.
// It wraps a Watermill GoChannel Pub/Sub: publishing never blocks on slow
// consumers beyond the channel buffer, and delivery is at-least-once within
// the process lifetime only.
type Dispatcher struct {
	pubsub *gochannel.GoChannel

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates an in-process dispatcher.
func NewDispatcher(logger watermill.LoggerAdapter) *Dispatcher {
	if logger == nil {
		logger = NewLoggerAdapter()
	}
	return &Dispatcher{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, logger),
	}
}

// Publish serializes the event and publishes it on Topic. Callers must only
// publish after the state change the event describes has been committed.
func (d *Dispatcher) Publish(ctx context.Context, ev DomainEvent) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return errors.New("dispatcher is closed")
	}
	d.mu.RUnlock()

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Kind(), err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	msg.Metadata.Set(MetadataKind, string(ev.Kind()))
	middleware.SetCorrelationID(uuid.New().String(), msg)
	// Consumers outlive the request that produced the event; only the
	// context values travel with the message, not its cancellation.
	msg.SetContext(context.WithoutCancel(ctx))

	if err := d.pubsub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind(), err)
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Kind())).Inc()
	return nil
}

// Subscriber exposes the underlying subscriber for router wiring.
func (d *Dispatcher) Subscriber() message.Subscriber {
	return d.pubsub
}

// Close shuts the bus down. Pending messages in the channel buffer are lost:
// domain state was already committed, so only best-effort notifications drop.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.pubsub.Close()
}

// Decode unmarshals a published payload back into its concrete event type.
func Decode(kind Kind, payload []byte) (DomainEvent, error) {
	var (
		ev  DomainEvent
		err error
	)

	switch kind {
	case KindFriendRequest:
		ev, err = unmarshal[FriendRequest](payload)
	case KindFriendRequestAccepted:
		ev, err = unmarshal[FriendRequestAccepted](payload)
	case KindParticipantInvited:
		ev, err = unmarshal[ParticipantInvited](payload)
	case KindParticipationChanged:
		ev, err = unmarshal[ParticipationChanged](payload)
	case KindCarAdded:
		ev, err = unmarshal[CarAdded](payload)
	case KindCarRemoved:
		ev, err = unmarshal[CarRemoved](payload)
	case KindCarPassengerJoined:
		ev, err = unmarshal[CarPassengerJoined](payload)
	case KindCarPassengerLeft:
		ev, err = unmarshal[CarPassengerLeft](payload)
	case KindSpendingCreated:
		ev, err = unmarshal[SpendingCreated](payload)
	case KindSpendingRemoved:
		ev, err = unmarshal[SpendingRemoved](payload)
	case KindListItemCreated:
		ev, err = unmarshal[ListItemCreated](payload)
	case KindListItemRemoved:
		ev, err = unmarshal[ListItemRemoved](payload)
	case KindListItemTaken:
		ev, err = unmarshal[ListItemTaken](payload)
	case KindListItemReleased:
		ev, err = unmarshal[ListItemReleased](payload)
	case KindEventUpdated:
		ev, err = unmarshal[EventUpdated](payload)
	case KindEventCancelled:
		ev, err = unmarshal[EventCancelled](payload)
	case KindMessageCreated:
		ev, err = unmarshal[MessageCreated](payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if err != nil {
		return nil, fmt.Errorf("decode %s event: %w", kind, err)
	}
	return ev, nil
}

func unmarshal[T DomainEvent](payload []byte) (DomainEvent, error) {
	var ev T
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}
