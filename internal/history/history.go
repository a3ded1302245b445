// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

// Package history persists chat messages in the shared relational store and
// replays them in chronological order.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/chillter/realtime/internal/chat"
)

const (
	queryAppend = `
		INSERT INTO event_chat (event_id, chiller_id, content, creation_date)
		VALUES ($1, $2, $3, NOW())
		RETURNING creation_date`

	// Ordered by timestamp with id as tie-breaker so same-second messages
	// replay in insertion order.
	queryHistory = `
		SELECT c.id, c.firstname, c.lastname, c.picture, m.creation_date, m.content
		FROM event_chat m
		JOIN chiller c ON c.id = m.chiller_id
		WHERE m.event_id = $1
		ORDER BY m.creation_date, m.id`
)

// Store is the chat history store over Postgres.
type Store struct {
	db            *sql.DB
	publicBaseURL string
}

// New creates a store over an open database handle. publicBaseURL resolves
// stored author picture references to absolute URLs.
func New(db *sql.DB, publicBaseURL string) *Store {
	return &Store{db: db, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// Append durably stores a message and returns the database-assigned
// creation timestamp, in UTC.
func (s *Store) Append(ctx context.Context, eventID, authorID int64, content string) (time.Time, error) {
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, queryAppend, eventID, authorID, content).Scan(&createdAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("append chat message: %w", err)
	}
	return createdAt.UTC(), nil
}

// HistoryOf returns the event's full message history, oldest first. An event
// with no messages yields an empty slice, not an error.
func (s *Store) HistoryOf(ctx context.Context, eventID int64) ([]chat.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, queryHistory, eventID)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	defer rows.Close()

	messages := []chat.StoredMessage{}
	for rows.Next() {
		var (
			msg     chat.StoredMessage
			picture sql.NullString
		)
		err := rows.Scan(&msg.Author.ID, &msg.Author.Firstname, &msg.Author.Lastname, &picture, &msg.CreatedAt, &msg.Content)
		if err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		if picture.Valid && picture.String != "" {
			url := s.pictureURL(picture.String)
			msg.Author.Picture = &url
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat history: %w", err)
	}
	return messages, nil
}

func (s *Store) pictureURL(stored string) string {
	if strings.HasPrefix(stored, "http://") || strings.HasPrefix(stored, "https://") {
		return stored
	}
	return s.publicBaseURL + "/media/chillers/" + stored
}
