// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

// Package chat implements the per-event realtime chat: connection
// authentication, room membership, history replay and message relay.
//
// A connection moves through four states: connecting, authenticating,
// joined, closed. Authentication happens over the websocket handshake's
// subprotocol field, which carries "Bearer <token>" because websocket
// clients cannot set custom headers at handshake time. Every failure before
// the joined state terminates the connection silently: no payload ever
// reveals why.
package chat

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/chillter/realtime/internal/events"
	"github.com/chillter/realtime/internal/logging"
	"github.com/chillter/realtime/internal/metrics"
)

const bearerPrefix = "Bearer "

// Directory resolves chat credentials and identities. Implemented by the
// participant directory over the relational store.
type Directory interface {
	// ResolveUserByToken maps an opaque bearer token to a user id. Any error
	// terminates the connection.
	ResolveUserByToken(ctx context.Context, token string) (int64, error)

	// IsParticipant reports whether the user holds an active participation
	// record for the event.
	IsParticipant(ctx context.Context, userID, eventID int64) (bool, error)

	// ProfileOf returns the user's wire identity (names, resolved avatar URL).
	ProfileOf(ctx context.Context, userID int64) (UserRef, error)

	// EventNameOf returns the event's display name.
	EventNameOf(ctx context.Context, eventID int64) (string, error)
}

// StoredMessage is one persisted chat message joined with its author's
// profile, as replayed from the history store.
type StoredMessage struct {
	Author    UserRef
	CreatedAt time.Time
	Content   string
}

// HistoryStore persists chat messages. Persistence is the source of truth;
// the in-memory relay is best effort.
type HistoryStore interface {
	// Append durably stores a message and returns its creation timestamp.
	Append(ctx context.Context, eventID, authorID int64, content string) (time.Time, error)

	// HistoryOf returns the event's full message history, oldest first.
	HistoryOf(ctx context.Context, eventID int64) ([]StoredMessage, error)
}

// Publisher publishes domain events after their state change committed.
type Publisher interface {
	Publish(ctx context.Context, ev events.DomainEvent) error
}

// Config holds chat handler configuration.
type Config struct {
	// MessageRate and MessageBurst bound inbound messages per connection.
	// Frames over the limit are dropped with a warning, the session stays up.
	MessageRate  rate.Limit
	MessageBurst int

	// AllowedOrigins restricts browser connections. Requests without an
	// Origin header (mobile clients, scripts) are always allowed.
	AllowedOrigins []string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MessageRate:  rate.Limit(5),
		MessageBurst: 10,
	}
}

// Handler upgrades chat requests and drives each connection's lifecycle.
type Handler struct {
	registry  *Registry
	directory Directory
	history   HistoryStore
	publisher Publisher
	cfg       Config
	upgrader  websocket.Upgrader
}

// NewHandler creates the websocket chat handler.
func NewHandler(registry *Registry, directory Directory, history HistoryStore, publisher Publisher, cfg Config) *Handler {
	if cfg.MessageRate <= 0 {
		cfg.MessageRate = DefaultConfig().MessageRate
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = DefaultConfig().MessageBurst
	}

	h := &Handler{
		registry:  registry,
		directory: directory,
		history:   history,
		publisher: publisher,
		cfg:       cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

// checkOrigin admits requests without an Origin header (non-browser clients)
// and browser requests matching the configured origins.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("chat connection rejected: origin not allowed")
	return false
}

// ServeHTTP handles GET /events/{eventID}/chat.
//
// The upgrade is completed before credentials are checked so that every
// rejection looks identical on the wire: a connection that closes without a
// payload. The selected subprotocol is echoed back so browser clients
// complete their handshake.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	eventID, eventErr := strconv.ParseInt(chi.URLParam(r, "eventID"), 10, 64)
	token, protocol := bearerToken(r.Header)

	var responseHeader http.Header
	if protocol != "" {
		responseHeader = http.Header{"Sec-WebSocket-Protocol": {protocol}}
	}

	conn, err := h.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		logging.Debug().Err(err).Msg("chat upgrade failed")
		return
	}

	if eventErr != nil {
		h.reject(conn, "bad_target", "chat connection rejected: target event id is not numeric")
		return
	}
	if token == "" {
		h.reject(conn, "missing_credential", "chat connection rejected: no bearer credential")
		return
	}

	ctx := r.Context()

	userID, err := h.directory.ResolveUserByToken(ctx, token)
	if err != nil {
		h.reject(conn, "invalid_token", "chat connection rejected: token did not resolve")
		return
	}

	member, err := h.directory.IsParticipant(ctx, userID, eventID)
	if err != nil || !member {
		h.reject(conn, "not_participant", "chat connection rejected: user is not a participant")
		return
	}

	client := newClient(conn, userID, eventID, h.cfg.MessageRate, h.cfg.MessageBurst)
	logging.Info().
		Uint64("connection", client.id).
		Int64("user_id", userID).
		Int64("event_id", eventID).
		Msg("chat connection authenticated")

	h.registry.Join(eventID, userID, client)
	go client.writePump()

	if err := h.sendHistory(ctx, client); err != nil {
		logging.Error().Err(err).
			Uint64("connection", client.id).
			Int64("event_id", eventID).
			Msg("history replay failed, closing connection")
		h.teardown(client)
		return
	}

	h.readLoop(ctx, client)
}

// reject silently terminates a connection that never reached the joined
// state. Deliberately no close payload: the wire never reveals whether a
// credential was almost valid.
func (h *Handler) reject(conn *websocket.Conn, reason, msg string) {
	metrics.ChatAuthFailures.WithLabelValues(reason).Inc()
	logging.Warn().Str("reason", reason).Msg(msg)
	_ = conn.Close()
}

// teardown unwinds a joined connection.
func (h *Handler) teardown(c *Client) {
	h.registry.Leave(c)
	c.closeSend()
	_ = c.conn.Close()
}

// sendHistory replays the event's full chat history, oldest first, as one
// JSON array sent exactly once to this connection.
func (h *Handler) sendHistory(ctx context.Context, c *Client) error {
	stored, err := h.history.HistoryOf(ctx, c.eventID)
	if err != nil {
		return err
	}

	entries := make([]HistoryEntry, 0, len(stored))
	for _, m := range stored {
		entries = append(entries, NewHistoryEntry(m.Author, m.CreatedAt, m.Content))
	}

	payload, err := EncodeHistory(entries)
	if err != nil {
		return err
	}

	c.enqueue(payload)
	return nil
}

// readLoop processes inbound frames one at a time, in arrival order, until
// the transport closes or errors. Cleanup always removes the connection from
// whichever room registered it, by identity.
func (h *Handler) readLoop(ctx context.Context, c *Client) {
	defer h.teardown(c)

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Uint64("connection", c.id).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Uint64("connection", c.id).Msg("chat connection closed unexpectedly")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		h.handleMessage(ctx, c, string(data))
	}
}

// handleMessage runs the steady-state pipeline for one inbound message:
// persist, relay to the room (sender included: it is registered before it
// can send, so the relay reaches its own handle too), then publish the
// domain event with the room's current membership as the exclusion set.
// Persist strictly precedes relay, relay precedes publication.
func (h *Handler) handleMessage(ctx context.Context, c *Client, content string) {
	if !c.limiter.Allow() {
		logging.Warn().
			Uint64("connection", c.id).
			Int64("user_id", c.userID).
			Msg("chat message dropped: rate limit exceeded")
		return
	}

	createdAt, err := h.history.Append(ctx, c.eventID, c.userID, content)
	if err != nil {
		// Fail the operation, not the session: the message drops from relay
		// and notification, the connection stays open for the next one.
		logging.Error().Err(err).
			Uint64("connection", c.id).
			Int64("event_id", c.eventID).
			Msg("chat message persistence failed, message dropped")
		return
	}

	author, err := h.directory.ProfileOf(ctx, c.userID)
	if err != nil {
		logging.Error().Err(err).Int64("user_id", c.userID).Msg("author profile lookup failed")
		author = UserRef{ID: c.userID}
	}

	payload, err := EncodeEntry(NewHistoryEntry(author, createdAt, content))
	if err != nil {
		logging.Error().Err(err).Msg("chat relay encoding failed")
		return
	}

	h.registry.Broadcast(c.eventID, payload, nil)
	metrics.ChatMessages.Inc()

	eventName, err := h.directory.EventNameOf(ctx, c.eventID)
	if err != nil {
		logging.Error().Err(err).Int64("event_id", c.eventID).Msg("event name lookup failed")
	}

	ev := events.MessageCreated{
		EventID:         c.eventID,
		EventName:       eventName,
		AuthorID:        c.userID,
		ExcludedUserIDs: h.registry.MembersOf(c.eventID),
	}
	if err := h.publisher.Publish(ctx, ev); err != nil {
		logging.Error().Err(err).Int64("event_id", c.eventID).Msg("failed to publish chat message event")
	}
}

// bearerToken extracts the bearer credential from the handshake's
// subprotocol values. Values arrive URL-encoded ("Bearer%20<token>") because
// subprotocol names cannot contain spaces; the first decoded value with a
// "Bearer " prefix wins. Returns the raw value too, for echoing back as the
// selected subprotocol.
func bearerToken(header http.Header) (token, protocol string) {
	for _, value := range header.Values("Sec-WebSocket-Protocol") {
		for _, part := range strings.Split(value, ",") {
			raw := strings.TrimSpace(part)
			decoded, err := url.QueryUnescape(raw)
			if err != nil {
				decoded = raw
			}
			if strings.HasPrefix(decoded, bearerPrefix) {
				return decoded[len(bearerPrefix):], raw
			}
		}
	}
	return "", ""
}
