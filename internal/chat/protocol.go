// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

package chat

import (
	"time"

	"github.com/goccy/go-json"
)

// UserRef identifies a message author on the wire.
type UserRef struct {
	ID        int64   `json:"id"`
	Firstname string  `json:"firstname"`
	Lastname  string  `json:"lastname"`
	// Picture is the resolved avatar URL, or null when the chiller has no
	// active photo.
	Picture *string `json:"picture"`
}

// HistoryEntry is the single-message wire shape. The history replay sent on
// join is a JSON array of these; every live relay is exactly one of these.
type HistoryEntry struct {
	User         UserRef `json:"user"`
	CreationDate string  `json:"creation_date"`
	Content      string  `json:"content"`
}

// NewHistoryEntry builds a wire entry with an ISO-8601 creation timestamp.
func NewHistoryEntry(user UserRef, createdAt time.Time, content string) HistoryEntry {
	return HistoryEntry{
		User:         user,
		CreationDate: createdAt.UTC().Format(time.RFC3339),
		Content:      content,
	}
}

// EncodeHistory serializes the full history replay. A room with no messages
// encodes as an empty JSON array, never null.
func EncodeHistory(entries []HistoryEntry) ([]byte, error) {
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return json.Marshal(entries)
}

// EncodeEntry serializes one live relay frame.
func EncodeEntry(entry HistoryEntry) ([]byte, error) {
	return json.Marshal(entry)
}
