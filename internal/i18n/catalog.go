// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

// Package i18n provides the fixed notification message catalog.
//
// The catalog covers every locale the application supports. An identifier
// without a catalog entry translates to itself, which is how raw strings
// (event names used as notification headings) pass through unchanged.
package i18n

import "strings"

// Locales lists the supported locales, in catalog order.
var Locales = []string{"en", "fr"}

// Translation identifiers used by the notification pipeline.
const (
	FriendsRequest        = "friends.request"
	FriendsAccept         = "friends.accept"
	EventInvitedBy        = "event.invited_by"
	EventParticipate      = "event.participate"
	EventMaybeParticipate = "event.maybe_participate"
	EventNotParticipate   = "event.does_not_participate"
	EventCarCreated       = "event.car.created"
	EventCarRemoved       = "event.car.removed"
	EventCarGetIn         = "event.car.get_in"
	EventCarGetOut        = "event.car.get_out"
	EventSpendingCreated  = "event.spending.created"
	EventSpendingRemoved  = "event.spending.removed"
	EventListCreated      = "event.list.created"
	EventListRemoved      = "event.list.removed"
	EventListSelected     = "event.list.selected"
	EventListLeaved       = "event.list.leaved"
	EventMessageCreated   = "event.message.created"
	EventUpdated          = "event.updated"
	EventCancelled        = "event.cancelled"
)

var catalog = map[string]map[string]string{
	"en": {
		FriendsRequest:        "%name% sent you a friend request",
		FriendsAccept:         "%name% accepted your friend request",
		EventInvitedBy:        "%name% invited you to join",
		EventParticipate:      "%name% is in",
		EventMaybeParticipate: "%name% might come",
		EventNotParticipate:   "%name% is not coming",
		EventCarCreated:       "%name% added a car",
		EventCarRemoved:       "%name% removed a car",
		EventCarGetIn:         "%name% got in your car",
		EventCarGetOut:        "%name% got out of your car",
		EventSpendingCreated:  "%name% added an expense",
		EventSpendingRemoved:  "%name% removed an expense",
		EventListCreated:      "%name% added an item to the list",
		EventListRemoved:      "%name% removed an item from the list",
		EventListSelected:     "%name% is bringing an item",
		EventListLeaved:       "%name% is no longer bringing an item",
		EventMessageCreated:   "%name% wrote a message",
		EventUpdated:          "%name% has been updated",
		EventCancelled:        "%name% has been cancelled",
	},
	"fr": {
		FriendsRequest:        "%name% vous a envoyé une demande d'ami",
		FriendsAccept:         "%name% a accepté votre demande d'ami",
		EventInvitedBy:        "%name% vous a invité à participer",
		EventParticipate:      "%name% participe",
		EventMaybeParticipate: "%name% participera peut-être",
		EventNotParticipate:   "%name% ne participe pas",
		EventCarCreated:       "%name% a ajouté une voiture",
		EventCarRemoved:       "%name% a supprimé une voiture",
		EventCarGetIn:         "%name% est monté dans votre voiture",
		EventCarGetOut:        "%name% est descendu de votre voiture",
		EventSpendingCreated:  "%name% a ajouté une dépense",
		EventSpendingRemoved:  "%name% a supprimé une dépense",
		EventListCreated:      "%name% a ajouté un élément à la liste",
		EventListRemoved:      "%name% a supprimé un élément de la liste",
		EventListSelected:     "%name% apporte un élément",
		EventListLeaved:       "%name% n'apporte plus d'élément",
		EventMessageCreated:   "%name% a écrit un message",
		EventUpdated:          "%name% a été modifié",
		EventCancelled:        "%name% a été annulé",
	},
}

// Params holds placeholder substitutions, e.g. {"%name%": "Jean Dupont"}.
type Params map[string]string

// Translate resolves id in the given locale and substitutes placeholders.
// Unknown locales fall back to English; unknown identifiers translate to
// themselves (after substitution), matching the translator the original
// backend relied on.
func Translate(locale, id string, params Params) string {
	messages, ok := catalog[locale]
	if !ok {
		messages = catalog["en"]
	}

	text, ok := messages[id]
	if !ok {
		text = id
	}

	for placeholder, value := range params {
		text = strings.ReplaceAll(text, placeholder, value)
	}
	return text
}

// Heading resolves id like Translate and uppercases the result. Notification
// headings are uppercased after translation; bodies are not.
func Heading(locale, id string, params Params) string {
	return strings.ToUpper(Translate(locale, id, params))
}
