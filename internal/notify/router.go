// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

package notify

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/chillter/realtime/internal/events"
	"github.com/chillter/realtime/internal/logging"
	"github.com/chillter/realtime/internal/metrics"
)

const handlerName = "notification-dispatch"

// NewRouter wires the dispatcher into a Watermill router consuming the
// domain event topic.
//
// There is no retry middleware and the handler never returns an error:
// a notification either goes out on the first attempt or is logged and
// dropped. Redelivering would duplicate pushes for recipients that were
// already reached, which is worse than a missed notification.
func NewRouter(dispatcher *Dispatcher, subscriber message.Subscriber, wmLogger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 15 * time.Second}, wmLogger)
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		middleware.CorrelationID,
		middleware.Recoverer,
	)

	router.AddNoPublisherHandler(handlerName, events.Topic, subscriber, handle(dispatcher))
	return router, nil
}

// handle decodes the message and dispatches it, swallowing every failure
// so the message is always acked.
func handle(dispatcher *Dispatcher) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		kind := events.Kind(msg.Metadata.Get(events.MetadataKind))

		ev, err := events.Decode(kind, msg.Payload)
		if err != nil {
			metrics.NotificationsFailed.WithLabelValues(string(kind), "decode").Inc()
			logging.Error().
				Err(err).
				Str("kind", string(kind)).
				Str("message_uuid", msg.UUID).
				Msg("undecodable domain event dropped")
			return nil
		}

		if err := dispatcher.Dispatch(msg.Context(), ev); err != nil {
			metrics.NotificationsFailed.WithLabelValues(string(kind), errorType(err)).Inc()
			logging.Error().
				Err(err).
				Str("kind", string(kind)).
				Str("message_uuid", msg.UUID).
				Msg("notification dispatch failed, dropped")
		}
		return nil
	}
}

// errorType buckets a dispatch failure for the failure counter.
func errorType(err error) string {
	if isProviderError(err) {
		return "provider"
	}
	return "lookup"
}
