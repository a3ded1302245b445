// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

package chat

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestEncodeHistoryEmptyIsArray(t *testing.T) {
	payload, err := EncodeHistory(nil)
	if err != nil {
		t.Fatalf("EncodeHistory(nil) error: %v", err)
	}
	if string(payload) != "[]" {
		t.Errorf("EncodeHistory(nil) = %s, want []", payload)
	}
}

func TestEntryWireShape(t *testing.T) {
	picture := "https://app.chillter.fr/media/chillers/42.jpg"
	entry := NewHistoryEntry(
		UserRef{ID: 42, Firstname: "Marie", Lastname: "Durand", Picture: &picture},
		time.Date(2020, 6, 15, 18, 30, 0, 0, time.UTC),
		"on se retrouve où ?",
	)

	payload, err := EncodeEntry(entry)
	if err != nil {
		t.Fatalf("EncodeEntry error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded["creation_date"] != "2020-06-15T18:30:00Z" {
		t.Errorf("creation_date = %v, want 2020-06-15T18:30:00Z", decoded["creation_date"])
	}
	if decoded["content"] != "on se retrouve où ?" {
		t.Errorf("content = %v", decoded["content"])
	}
	user, ok := decoded["user"].(map[string]any)
	if !ok {
		t.Fatalf("user field missing or wrong shape: %v", decoded["user"])
	}
	if user["firstname"] != "Marie" || user["lastname"] != "Durand" {
		t.Errorf("user names = %v %v", user["firstname"], user["lastname"])
	}
	if user["picture"] != picture {
		t.Errorf("picture = %v, want %s", user["picture"], picture)
	}
}

func TestEntryNullPicture(t *testing.T) {
	payload, err := EncodeEntry(NewHistoryEntry(UserRef{ID: 1, Firstname: "Jo", Lastname: "B"}, time.Now(), "hi"))
	if err != nil {
		t.Fatalf("EncodeEntry error: %v", err)
	}
	var decoded struct {
		User map[string]any `json:"user"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	picture, present := decoded.User["picture"]
	if !present {
		t.Fatal("picture key absent, want explicit null")
	}
	if picture != nil {
		t.Errorf("picture = %v, want null", picture)
	}
}

func TestHistoryTimestampsNormalizedToUTC(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	entry := NewHistoryEntry(UserRef{ID: 1}, time.Date(2020, 1, 1, 13, 0, 0, 0, paris), "x")
	if entry.CreationDate != "2020-01-01T12:00:00Z" {
		t.Errorf("CreationDate = %s, want 2020-01-01T12:00:00Z", entry.CreationDate)
	}
}
