// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

// Package notify translates domain events into push notifications.
//
// Every event kind has explicit recipient-selection and templating rules;
// the kind set is closed and handled exhaustively. Delivery is best effort:
// a failed lookup or provider call is logged and dropped, never retried, and
// never rolls back the domain action that produced the event.
package notify

import (
	"context"
	"errors"

	"github.com/chillter/realtime/internal/events"
	"github.com/chillter/realtime/internal/i18n"
	"github.com/chillter/realtime/internal/logging"
	"github.com/chillter/realtime/internal/metrics"
	"github.com/chillter/realtime/internal/push"
)

// Directory is the read side the pipeline resolves recipients through.
type Directory interface {
	// ParticipantsOf returns the user ids with an active participation
	// record for the event.
	ParticipantsOf(ctx context.Context, eventID int64) ([]int64, error)

	// NotificationAddressOf returns the user's registered push address, or
	// "" when the user has none.
	NotificationAddressOf(ctx context.Context, userID int64) (string, error)

	// DisplayNameOf returns the user's full display name.
	DisplayNameOf(ctx context.Context, userID int64) (string, error)

	// EventNameOf returns the event's display name.
	EventNameOf(ctx context.Context, eventID int64) (string, error)
}

// Pusher sends one notification to the provider.
type Pusher interface {
	Send(ctx context.Context, n *push.Notification) error
}

// Dispatcher computes recipients and localized content per domain event and
// hands the result to the push client.
type Dispatcher struct {
	directory Directory
	pusher    Pusher
	locales   []string
}

// NewDispatcher creates a dispatcher producing content for the given
// locales (defaults to the full supported set).
func NewDispatcher(directory Directory, pusher Pusher, locales []string) *Dispatcher {
	if len(locales) == 0 {
		locales = i18n.Locales
	}
	return &Dispatcher{directory: directory, pusher: pusher, locales: locales}
}

// Dispatch routes one decoded domain event through its kind-specific rule.
// The switch is exhaustive over the closed kind set; a kind reaching the
// default arm is a programming error.
func (d *Dispatcher) Dispatch(ctx context.Context, ev events.DomainEvent) error {
	switch e := ev.(type) {
	case events.FriendRequest:
		name, err := d.directory.DisplayNameOf(ctx, e.InviterID)
		if err != nil {
			return err
		}
		return d.sendToUser(ctx, e, e.InvitedID, i18n.FriendsRequest, name, "")

	case events.FriendRequestAccepted:
		name, err := d.directory.DisplayNameOf(ctx, e.AcceptorID)
		if err != nil {
			return err
		}
		return d.sendToUser(ctx, e, e.InviterID, i18n.FriendsAccept, name, "")

	case events.ParticipantInvited:
		name, eventName, err := d.names(ctx, e.InviterID, e.EventID)
		if err != nil {
			return err
		}
		return d.sendToUser(ctx, e, e.ParticipantID, i18n.EventInvitedBy, name, eventName)

	case events.ParticipationChanged:
		id, ok := participationMessage(e.Status)
		if !ok {
			// Unknown status values notify nobody; the status set is fixed
			// upstream.
			return nil
		}
		return d.sendToParticipants(ctx, e, e.EventID, []int64{e.ParticipantID}, id, e.ParticipantID)

	case events.CarAdded:
		return d.sendToParticipants(ctx, e, e.EventID, []int64{e.DriverID}, i18n.EventCarCreated, e.DriverID)

	case events.CarRemoved:
		return d.sendToParticipants(ctx, e, e.EventID, []int64{e.DriverID}, i18n.EventCarRemoved, e.DriverID)

	case events.CarPassengerJoined:
		name, eventName, err := d.names(ctx, e.PassengerID, e.EventID)
		if err != nil {
			return err
		}
		return d.sendToUser(ctx, e, e.DriverID, i18n.EventCarGetIn, name, eventName)

	case events.CarPassengerLeft:
		name, eventName, err := d.names(ctx, e.PassengerID, e.EventID)
		if err != nil {
			return err
		}
		return d.sendToUser(ctx, e, e.DriverID, i18n.EventCarGetOut, name, eventName)

	case events.SpendingCreated:
		return d.sendToParticipants(ctx, e, e.EventID, []int64{e.PayerID}, i18n.EventSpendingCreated, e.PayerID)

	case events.SpendingRemoved:
		return d.sendToParticipants(ctx, e, e.EventID, []int64{e.PayerID}, i18n.EventSpendingRemoved, e.PayerID)

	case events.ListItemCreated:
		return d.sendToParticipants(ctx, e, e.EventID, []int64{e.ActorID}, i18n.EventListCreated, e.ActorID)

	case events.ListItemRemoved:
		return d.sendToParticipants(ctx, e, e.EventID, []int64{e.ActorID}, i18n.EventListRemoved, e.ActorID)

	case events.ListItemTaken:
		return d.sendToParticipants(ctx, e, e.EventID, []int64{e.ActorID}, i18n.EventListSelected, e.ActorID)

	case events.ListItemReleased:
		return d.sendToParticipants(ctx, e, e.EventID, []int64{e.ActorID}, i18n.EventListLeaved, e.ActorID)

	case events.EventUpdated:
		return d.sendEventLifecycle(ctx, e, e.EventID, e.CreatorID, i18n.EventUpdated)

	case events.EventCancelled:
		return d.sendEventLifecycle(ctx, e, e.EventID, e.CreatorID, i18n.EventCancelled)

	case events.MessageCreated:
		name, err := d.directory.DisplayNameOf(ctx, e.AuthorID)
		if err != nil {
			return err
		}
		recipients, err := d.participantAddresses(ctx, e.EventID, e.ExcludedUserIDs)
		if err != nil {
			return err
		}
		return d.send(ctx, e, recipients, i18n.EventMessageCreated, i18n.Params{"%name%": name}, e.EventName)

	default:
		return errors.New("unhandled domain event kind: " + string(ev.Kind()))
	}
}

// sendToUser notifies a single user, if they have a registered address.
func (d *Dispatcher) sendToUser(ctx context.Context, ev events.DomainEvent, userID int64, messageID, name, heading string) error {
	address, err := d.directory.NotificationAddressOf(ctx, userID)
	if err != nil {
		return err
	}

	var recipients []string
	if address != "" {
		recipients = []string{address}
	}
	return d.send(ctx, ev, recipients, messageID, i18n.Params{"%name%": name}, heading)
}

// sendToParticipants notifies every event participant except the acting
// user, with the actor's display name and the event name as heading.
func (d *Dispatcher) sendToParticipants(ctx context.Context, ev events.DomainEvent, eventID int64, excluded []int64, messageID string, actorID int64) error {
	name, eventName, err := d.names(ctx, actorID, eventID)
	if err != nil {
		return err
	}
	recipients, err := d.participantAddresses(ctx, eventID, excluded)
	if err != nil {
		return err
	}
	return d.send(ctx, ev, recipients, messageID, i18n.Params{"%name%": name}, eventName)
}

// sendEventLifecycle notifies every participant except the event's creator.
// The event name fills both the body placeholder and the heading.
func (d *Dispatcher) sendEventLifecycle(ctx context.Context, ev events.DomainEvent, eventID, creatorID int64, messageID string) error {
	eventName, err := d.directory.EventNameOf(ctx, eventID)
	if err != nil {
		return err
	}
	recipients, err := d.participantAddresses(ctx, eventID, []int64{creatorID})
	if err != nil {
		return err
	}
	return d.send(ctx, ev, recipients, messageID, i18n.Params{"%name%": eventName}, eventName)
}

// send builds the localized notification and calls the push client. An empty
// recipient set is not an error: nothing goes out.
func (d *Dispatcher) send(ctx context.Context, ev events.DomainEvent, recipients []string, messageID string, params i18n.Params, heading string) error {
	recipients = dedupe(recipients)
	if len(recipients) == 0 {
		metrics.NotificationsSkipped.WithLabelValues(string(ev.Kind())).Inc()
		logging.Debug().Str("kind", string(ev.Kind())).Msg("no recipients, notification skipped")
		return nil
	}

	notification := push.NewNotification(recipients, d.contents(messageID, params, heading), ev.AuditData())
	if err := d.pusher.Send(ctx, notification); err != nil {
		return &deliveryError{err: err}
	}

	metrics.NotificationsSent.WithLabelValues(string(ev.Kind())).Inc()
	logging.Info().
		Str("kind", string(ev.Kind())).
		Int("recipients", len(recipients)).
		Msg("notification dispatched")
	return nil
}

// contents renders one content block per supported locale. Headings are
// uppercased after translation; bodies are not.
func (d *Dispatcher) contents(messageID string, params i18n.Params, heading string) []push.Content {
	contents := make([]push.Content, 0, len(d.locales))
	for _, locale := range d.locales {
		content := push.Content{
			LanguageCode: locale,
			Body:         i18n.Translate(locale, messageID, params),
		}
		if heading != "" {
			content.Heading = i18n.Heading(locale, heading, nil)
		}
		contents = append(contents, content)
	}
	return contents
}

// participantAddresses resolves "all other event participants": everyone
// with an active participation record, minus the excluded ids, filtered to
// users holding a registered notification address.
func (d *Dispatcher) participantAddresses(ctx context.Context, eventID int64, excluded []int64) ([]string, error) {
	participants, err := d.directory.ParticipantsOf(ctx, eventID)
	if err != nil {
		return nil, err
	}

	skip := make(map[int64]struct{}, len(excluded))
	for _, id := range excluded {
		skip[id] = struct{}{}
	}

	addresses := make([]string, 0, len(participants))
	for _, userID := range participants {
		if _, ok := skip[userID]; ok {
			continue
		}
		address, err := d.directory.NotificationAddressOf(ctx, userID)
		if err != nil {
			return nil, err
		}
		if address != "" {
			addresses = append(addresses, address)
		}
	}
	return addresses, nil
}

// names resolves an actor's display name and an event's name together.
func (d *Dispatcher) names(ctx context.Context, userID, eventID int64) (userName, eventName string, err error) {
	userName, err = d.directory.DisplayNameOf(ctx, userID)
	if err != nil {
		return "", "", err
	}
	eventName, err = d.directory.EventNameOf(ctx, eventID)
	if err != nil {
		return "", "", err
	}
	return userName, eventName, nil
}

// participationMessage maps an attendance status to its catalog identifier.
func participationMessage(status events.ParticipationStatus) (string, bool) {
	switch status {
	case events.StatusGoing:
		return i18n.EventParticipate, true
	case events.StatusMaybe:
		return i18n.EventMaybeParticipate, true
	case events.StatusDeclined:
		return i18n.EventNotParticipate, true
	default:
		return "", false
	}
}

// deliveryError marks a failure that happened at the provider call, as
// opposed to a recipient or name lookup.
type deliveryError struct {
	err error
}

func (e *deliveryError) Error() string { return "push delivery: " + e.err.Error() }

func (e *deliveryError) Unwrap() error { return e.err }

func isProviderError(err error) bool {
	var de *deliveryError
	return errors.As(err, &de)
}

func dedupe(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := addresses[:0]
	for _, a := range addresses {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
