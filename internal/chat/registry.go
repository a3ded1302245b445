// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

package chat

import (
	"sort"
	"sync"

	"github.com/chillter/realtime/internal/logging"
	"github.com/chillter/realtime/internal/metrics"
)

// Registry tracks, per event id, which authenticated users currently hold a
// live chat connection. It is pure in-memory bookkeeping guarded by one
// mutex; join, leave and broadcast are linearizable with respect to each
// other.
type Registry struct {
	mu    sync.RWMutex
	rooms map[int64]map[int64]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[int64]map[int64]*Client)}
}

// Join registers the connection under the event's room, keyed by user id.
// Last write wins: a second connection for the same user replaces the first
// in the room, orphaning it. The orphan stays open but is no longer reachable
// by broadcast; it removes itself by identity when its own close fires.
func (r *Registry) Join(eventID, userID int64, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[eventID]
	if !ok {
		room = make(map[int64]*Client)
		r.rooms[eventID] = room
	}

	if prev, ok := room[userID]; ok && prev != c {
		logging.Warn().
			Int64("event_id", eventID).
			Int64("user_id", userID).
			Uint64("replaced_connection", prev.id).
			Msg("user rejoined chat, previous connection orphaned")
	}
	room[userID] = c

	r.updateGauges()
	logging.Info().
		Int64("event_id", eventID).
		Int64("user_id", userID).
		Int("room_size", len(room)).
		Msg("chat connection joined room")
}

// Leave removes the connection from every room that references it, matching
// by connection identity rather than user id so an orphaned connection never
// evicts its replacement. No-op if the connection is not registered.
func (r *Registry) Leave(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for eventID, room := range r.rooms {
		for userID, registered := range room {
			if registered == c {
				delete(room, userID)
				logging.Info().
					Int64("event_id", eventID).
					Int64("user_id", userID).
					Int("room_size", len(room)).
					Msg("chat connection left room")
			}
		}
		if len(room) == 0 {
			delete(r.rooms, eventID)
		}
	}

	r.updateGauges()
}

// Broadcast delivers payload to every registered connection in the event's
// room except exclude (pass nil to reach everyone). A connection whose send
// buffer is full is dropped from the room; failures to deliver to one
// connection never prevent delivery to the others.
func (r *Registry) Broadcast(eventID int64, payload []byte, exclude *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[eventID]
	if !ok {
		return
	}

	// Deterministic delivery order keeps interleavings reproducible in tests.
	clients := make([]*Client, 0, len(room))
	for _, c := range room {
		if c != exclude {
			clients = append(clients, c)
		}
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, c := range clients {
		if !c.enqueue(payload) {
			c.closeSend()
			r.removeLocked(c)
			logging.Warn().
				Int64("event_id", eventID).
				Int64("user_id", c.userID).
				Msg("chat connection too slow, dropped from room")
		}
	}
}

// MembersOf returns the sorted set of user ids currently joined to the
// event's room. Used as the notification-exclusion set for chat messages.
func (r *Registry) MembersOf(eventID int64) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[eventID]
	members := make([]int64, 0, len(room))
	for userID := range room {
		members = append(members, userID)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return members
}

// ConnectionCount returns the total number of registered connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, room := range r.rooms {
		total += len(room)
	}
	return total
}

// CloseAll drops every registered connection, closing their send channels.
// Called on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	closed := 0
	for eventID, room := range r.rooms {
		for userID, c := range room {
			c.closeSend()
			delete(room, userID)
			closed++
		}
		delete(r.rooms, eventID)
	}
	r.updateGauges()
	logging.Info().Int("connections_closed", closed).Msg("closed all chat connections")
}

// removeLocked deletes c from every room. Caller holds r.mu.
func (r *Registry) removeLocked(c *Client) {
	for eventID, room := range r.rooms {
		for userID, registered := range room {
			if registered == c {
				delete(room, userID)
			}
		}
		if len(room) == 0 {
			delete(r.rooms, eventID)
		}
	}
	r.updateGauges()
}

// updateGauges recomputes connection and room gauges. Caller holds r.mu.
func (r *Registry) updateGauges() {
	total := 0
	for _, room := range r.rooms {
		total += len(room)
	}
	metrics.ChatConnections.Set(float64(total))
	metrics.ChatRooms.Set(float64(len(r.rooms)))
}
