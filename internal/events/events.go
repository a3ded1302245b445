// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

// Package events defines the closed set of domain events published after
// committed state changes, and the in-process dispatcher that carries them
// to the notification pipeline.
//
// A domain event describes something that already happened: publishers must
// only publish after the corresponding storage mutation is durably committed.
// Events are immutable after publication.
package events

import "strconv"

// Kind identifies a domain event type on the wire.
type Kind string

// The full, closed set of domain event kinds. The notification pipeline
// switches over these exhaustively; adding a kind means adding a case there.
const (
	KindFriendRequest          Kind = "friend.request"
	KindFriendRequestAccepted  Kind = "friend.request.accepted"
	KindParticipantInvited     Kind = "event.participant.invited"
	KindParticipationChanged   Kind = "event.participation.changed"
	KindCarAdded               Kind = "event.car.added"
	KindCarRemoved             Kind = "event.car.removed"
	KindCarPassengerJoined     Kind = "event.car.passenger.joined"
	KindCarPassengerLeft       Kind = "event.car.passenger.left"
	KindSpendingCreated        Kind = "event.spending.created"
	KindSpendingRemoved        Kind = "event.spending.removed"
	KindListItemCreated        Kind = "event.list.item.created"
	KindListItemRemoved        Kind = "event.list.item.removed"
	KindListItemTaken          Kind = "event.list.item.taken"
	KindListItemReleased       Kind = "event.list.item.released"
	KindEventUpdated           Kind = "event.updated"
	KindEventCancelled         Kind = "event.cancelled"
	KindMessageCreated         Kind = "event.message.created"
)

// ParticipationStatus is a participant's answer to an event invitation.
type ParticipationStatus int

const (
	// StatusDeclined means the participant will not attend.
	StatusDeclined ParticipationStatus = 0
	// StatusGoing means the participant will attend.
	StatusGoing ParticipationStatus = 1
	// StatusMaybe means the participant has not decided.
	StatusMaybe ParticipationStatus = 2
)

// DomainEvent is implemented by every event kind. AuditData returns a plain
// key-value rendering of the event, echoed opaquely into outbound push
// payloads for auditing.
type DomainEvent interface {
	Kind() Kind
	AuditData() map[string]any
}

// FriendRequest is published after a friend request has been stored.
type FriendRequest struct {
	InviterID int64 `json:"inviter_id"`
	InvitedID int64 `json:"invited_id"`
}

// Kind implements DomainEvent.
func (FriendRequest) Kind() Kind { return KindFriendRequest }

// AuditData implements DomainEvent.
func (e FriendRequest) AuditData() map[string]any {
	return auditData(e.Kind(), map[string]any{
		"inviter_id": e.InviterID,
		"invited_id": e.InvitedID,
	})
}

// FriendRequestAccepted is published after a friend request has been accepted.
type FriendRequestAccepted struct {
	InviterID  int64 `json:"inviter_id"`
	AcceptorID int64 `json:"acceptor_id"`
}

func (FriendRequestAccepted) Kind() Kind { return KindFriendRequestAccepted }

func (e FriendRequestAccepted) AuditData() map[string]any {
	return auditData(e.Kind(), map[string]any{
		"inviter_id":  e.InviterID,
		"acceptor_id": e.AcceptorID,
	})
}

// ParticipantInvited is published after a chiller has been added to an event.
type ParticipantInvited struct {
	EventID       int64 `json:"event_id"`
	ParticipantID int64 `json:"participant_id"`
	InviterID     int64 `json:"inviter_id"`
}

func (ParticipantInvited) Kind() Kind { return KindParticipantInvited }

func (e ParticipantInvited) AuditData() map[string]any {
	return auditData(e.Kind(), map[string]any{
		"event_id":       e.EventID,
		"participant_id": e.ParticipantID,
		"inviter_id":     e.InviterID,
	})
}

// ParticipationChanged is published after a participant changed their
// attendance status.
type ParticipationChanged struct {
	EventID       int64               `json:"event_id"`
	ParticipantID int64               `json:"participant_id"`
	Status        ParticipationStatus `json:"status"`
}

func (ParticipationChanged) Kind() Kind { return KindParticipationChanged }

func (e ParticipationChanged) AuditData() map[string]any {
	return auditData(e.Kind(), map[string]any{
		"event_id":       e.EventID,
		"participant_id": e.ParticipantID,
		"status":         int(e.Status),
	})
}

// CarAdded is published after a driver registered a car for an event.
type CarAdded struct {
	EventID  int64 `json:"event_id"`
	DriverID int64 `json:"driver_id"`
}

func (CarAdded) Kind() Kind { return KindCarAdded }

func (e CarAdded) AuditData() map[string]any {
	return auditData(e.Kind(), map[string]any{
		"event_id":  e.EventID,
		"driver_id": e.DriverID,
	})
}

// CarRemoved is published after a driver removed their car from an event.
type CarRemoved struct {
	EventID  int64 `json:"event_id"`
	DriverID int64 `json:"driver_id"`
}

func (CarRemoved) Kind() Kind { return KindCarRemoved }

func (e CarRemoved) AuditData() map[string]any {
	return auditData(e.Kind(), map[string]any{
		"event_id":  e.EventID,
		"driver_id": e.DriverID,
	})
}

// CarPassengerJoined is published after a passenger took a seat in a car.
type CarPassengerJoined struct {
	EventID     int64 `json:"event_id"`
	CarID       int64 `json:"car_id"`
	DriverID    int64 `json:"driver_id"`
	PassengerID int64 `json:"passenger_id"`
}

func (CarPassengerJoined) Kind() Kind { return KindCarPassengerJoined }

func (e CarPassengerJoined) AuditData() map[string]any {
	return auditData(e.Kind(), map[string]any{
		"event_id":     e.EventID,
		"car_id":       e.CarID,
		"driver_id":    e.DriverID,
		"passenger_id": e.PassengerID,
	})
}

// CarPassengerLeft is published after a passenger gave up a seat in a car.
type CarPassengerLeft struct {
	EventID     int64 `json:"event_id"`
	CarID       int64 `json:"car_id"`
	DriverID    int64 `json:"driver_id"`
	PassengerID int64 `json:"passenger_id"`
}

func (CarPassengerLeft) Kind() Kind { return KindCarPassengerLeft }

func (e CarPassengerLeft) AuditData() map[string]any {
	return auditData(e.Kind(), map[string]any{
		"event_id":     e.EventID,
		"car_id":       e.CarID,
		"driver_id":    e.DriverID,
		"passenger_id": e.PassengerID,
	})
}

// SpendingCreated is published after an expense has been recorded.
type SpendingCreated struct {
	EventID int64 `json:"event_id"`
	PayerID int64 `json:"payer_id"`
}

func (SpendingCreated) Kind() Kind { return KindSpendingCreated }

func (e SpendingCreated) AuditData() map[string]any {
	return auditData(e.Kind(), map[string]any{
		"event_id": e.EventID,
		"payer_id": e.PayerID,
	})
}

// SpendingRemoved is published after an expense has been deleted.
type SpendingRemoved struct {
	EventID int64 `json:"event_id"`
	PayerID int64 `json:"payer_id"`
}

func (SpendingRemoved) Kind() Kind { return KindSpendingRemoved }

func (e SpendingRemoved) AuditData() map[string]any {
	return auditData(e.Kind(), map[string]any{
		"event_id": e.EventID,
		"payer_id": e.PayerID,
	})
}

// ListItemCreated is published after an item was added to the event list.
type ListItemCreated struct {
	EventID int64 `json:"event_id"`
	ActorID int64 `json:"actor_id"`
}

func (ListItemCreated) Kind() Kind { return KindListItemCreated }

func (e ListItemCreated) AuditData() map[string]any {
	return auditData(e.Kind(), map[string]any{
		"event_id": e.EventID,
		"actor_id": e.ActorID,
	})
}

// ListItemRemoved is published after an item was removed from the event list.
type ListItemRemoved struct {
	EventID int64 `json:"event_id"`
	ActorID int64 `json:"actor_id"`
}

func (ListItemRemoved) Kind() Kind { return KindListItemRemoved }

func (e ListItemRemoved) AuditData() map[string]any {
	return auditData(e.Kind(), map[string]any{
		"event_id": e.EventID,
		"actor_id": e.ActorID,
	})
}

// ListItemTaken is published after a participant claimed a list item.
type ListItemTaken struct {
	EventID int64 `json:"event_id"`
	ActorID int64 `json:"actor_id"`
}

func (ListItemTaken) Kind() Kind { return KindListItemTaken }

func (e ListItemTaken) AuditData() map[string]any {
	return auditData(e.Kind(), map[string]any{
		"event_id": e.EventID,
		"actor_id": e.ActorID,
	})
}

// ListItemReleased is published after a participant released a claimed item.
type ListItemReleased struct {
	EventID int64 `json:"event_id"`
	ActorID int64 `json:"actor_id"`
}

func (ListItemReleased) Kind() Kind { return KindListItemReleased }

func (e ListItemReleased) AuditData() map[string]any {
	return auditData(e.Kind(), map[string]any{
		"event_id": e.EventID,
		"actor_id": e.ActorID,
	})
}

// EventUpdated is published after an event's details changed.
type EventUpdated struct {
	EventID   int64 `json:"event_id"`
	CreatorID int64 `json:"creator_id"`
}

func (EventUpdated) Kind() Kind { return KindEventUpdated }

func (e EventUpdated) AuditData() map[string]any {
	return auditData(e.Kind(), map[string]any{
		"event_id":   e.EventID,
		"creator_id": e.CreatorID,
	})
}

// EventCancelled is published after an event has been cancelled.
type EventCancelled struct {
	EventID   int64 `json:"event_id"`
	CreatorID int64 `json:"creator_id"`
}

func (EventCancelled) Kind() Kind { return KindEventCancelled }

func (e EventCancelled) AuditData() map[string]any {
	return auditData(e.Kind(), map[string]any{
		"event_id":   e.EventID,
		"creator_id": e.CreatorID,
	})
}

// MessageCreated is published after a chat message has been persisted.
// ExcludedUserIDs carries the user ids registered in the chat room at send
// time: they saw the message live and must not also receive a push.
type MessageCreated struct {
	EventID         int64   `json:"event_id"`
	EventName       string  `json:"event_name"`
	AuthorID        int64   `json:"author_id"`
	ExcludedUserIDs []int64 `json:"excluded_user_ids"`
}

func (MessageCreated) Kind() Kind { return KindMessageCreated }

func (e MessageCreated) AuditData() map[string]any {
	excluded := make([]string, len(e.ExcludedUserIDs))
	for i, id := range e.ExcludedUserIDs {
		excluded[i] = strconv.FormatInt(id, 10)
	}
	return auditData(e.Kind(), map[string]any{
		"event_id":          e.EventID,
		"event_name":        e.EventName,
		"author_id":         e.AuthorID,
		"excluded_user_ids": excluded,
	})
}

func auditData(kind Kind, fields map[string]any) map[string]any {
	data := make(map[string]any, len(fields)+1)
	data["event"] = string(kind)
	for k, v := range fields {
		data[k] = v
	}
	return data
}
