// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

// Package directory reads user, event and participation state from the
// shared relational store. This service does not own the schema: the main
// application writes it, the directory only queries.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/chillter/realtime/internal/chat"
)

// Sentinel errors for lookups that found no row.
var (
	ErrUnknownToken = errors.New("directory: unknown or expired token")
	ErrUnknownUser  = errors.New("directory: unknown user")
	ErrUnknownEvent = errors.New("directory: unknown event")
)

const (
	queryUserByToken = `
		SELECT t.chiller_id
		FROM access_token t
		WHERE t.token = $1
		  AND (t.expires_at IS NULL OR t.expires_at > NOW())`

	queryIsParticipant = `
		SELECT EXISTS (
			SELECT 1
			FROM event_chiller ec
			WHERE ec.chiller_id = $1 AND ec.event_id = $2
		)`

	queryProfile = `
		SELECT c.id, c.firstname, c.lastname, c.picture
		FROM chiller c
		WHERE c.id = $1`

	queryEventName = `
		SELECT e.name
		FROM event e
		WHERE e.id = $1`

	queryParticipants = `
		SELECT ec.chiller_id
		FROM event_chiller ec
		WHERE ec.event_id = $1
		ORDER BY ec.chiller_id`

	queryNotificationAddress = `
		SELECT COALESCE(c.notification_id, '')
		FROM chiller c
		WHERE c.id = $1`
)

// Config holds directory settings.
type Config struct {
	// PublicBaseURL prefixes stored picture file names so clients receive
	// absolute avatar URLs.
	PublicBaseURL string
}

// Directory implements the chat and notification read sides over Postgres.
type Directory struct {
	db            *sql.DB
	publicBaseURL string
}

// New creates a directory over an open database handle.
func New(db *sql.DB, cfg Config) *Directory {
	return &Directory{
		db:            db,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// ResolveUserByToken maps an opaque bearer token to a user id. Expired
// tokens resolve like unknown ones.
func (d *Directory) ResolveUserByToken(ctx context.Context, token string) (int64, error) {
	var userID int64
	err := d.db.QueryRowContext(ctx, queryUserByToken, token).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnknownToken
	}
	if err != nil {
		return 0, fmt.Errorf("resolve token: %w", err)
	}
	return userID, nil
}

// IsParticipant reports whether the user holds a participation record for
// the event.
func (d *Directory) IsParticipant(ctx context.Context, userID, eventID int64) (bool, error) {
	var ok bool
	if err := d.db.QueryRowContext(ctx, queryIsParticipant, userID, eventID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check participation: %w", err)
	}
	return ok, nil
}

// ProfileOf returns the user's wire identity with the avatar resolved to an
// absolute URL.
func (d *Directory) ProfileOf(ctx context.Context, userID int64) (chat.UserRef, error) {
	var (
		ref     chat.UserRef
		picture sql.NullString
	)
	err := d.db.QueryRowContext(ctx, queryProfile, userID).Scan(&ref.ID, &ref.Firstname, &ref.Lastname, &picture)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.UserRef{}, ErrUnknownUser
	}
	if err != nil {
		return chat.UserRef{}, fmt.Errorf("load profile: %w", err)
	}

	if picture.Valid && picture.String != "" {
		url := d.pictureURL(picture.String)
		ref.Picture = &url
	}
	return ref, nil
}

// EventNameOf returns the event's display name.
func (d *Directory) EventNameOf(ctx context.Context, eventID int64) (string, error) {
	var name string
	err := d.db.QueryRowContext(ctx, queryEventName, eventID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUnknownEvent
	}
	if err != nil {
		return "", fmt.Errorf("load event name: %w", err)
	}
	return name, nil
}

// ParticipantsOf returns the user ids participating in the event, ascending.
func (d *Directory) ParticipantsOf(ctx context.Context, eventID int64) ([]int64, error) {
	rows, err := d.db.QueryContext(ctx, queryParticipants, eventID)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return ids, nil
}

// NotificationAddressOf returns the user's registered push address, or ""
// when the user never registered a device.
func (d *Directory) NotificationAddressOf(ctx context.Context, userID int64) (string, error) {
	var address string
	err := d.db.QueryRowContext(ctx, queryNotificationAddress, userID).Scan(&address)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUnknownUser
	}
	if err != nil {
		return "", fmt.Errorf("load notification address: %w", err)
	}
	return address, nil
}

// DisplayNameOf returns the user's full name, "Firstname Lastname".
func (d *Directory) DisplayNameOf(ctx context.Context, userID int64) (string, error) {
	ref, err := d.ProfileOf(ctx, userID)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(ref.Firstname + " " + ref.Lastname), nil
}

// pictureURL resolves a stored picture reference. Values that are already
// absolute URLs pass through unchanged.
func (d *Directory) pictureURL(stored string) string {
	if strings.HasPrefix(stored, "http://") || strings.HasPrefix(stored, "https://") {
		return stored
	}
	return d.publicBaseURL + "/media/chillers/" + stored
}
