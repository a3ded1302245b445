// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

package i18n

import "testing"

func TestTranslate(t *testing.T) {
	tests := []struct {
		name   string
		locale string
		id     string
		params Params
		want   string
	}{
		{
			name:   "english with name",
			locale: "en",
			id:     EventSpendingCreated,
			params: Params{"%name%": "Jean Dupont"},
			want:   "Jean Dupont added an expense",
		},
		{
			name:   "french with name",
			locale: "fr",
			id:     EventMessageCreated,
			params: Params{"%name%": "Marie"},
			want:   "Marie a écrit un message",
		},
		{
			name:   "unknown locale falls back to english",
			locale: "de",
			id:     FriendsAccept,
			params: Params{"%name%": "Anna"},
			want:   "Anna accepted your friend request",
		},
		{
			name:   "unknown identifier passes through",
			locale: "en",
			id:     "Summer BBQ",
			params: nil,
			want:   "Summer BBQ",
		},
		{
			name:   "no params leaves placeholder",
			locale: "en",
			id:     EventParticipate,
			params: nil,
			want:   "%name% is in",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Translate(tt.locale, tt.id, tt.params); got != tt.want {
				t.Errorf("Translate(%q, %q) = %q, want %q", tt.locale, tt.id, got, tt.want)
			}
		})
	}
}

func TestHeadingUppercasesAfterTranslation(t *testing.T) {
	got := Heading("en", "Summer bbq", nil)
	if got != "SUMMER BBQ" {
		t.Errorf("Heading = %q, want %q", got, "SUMMER BBQ")
	}
}

func TestEveryLocaleCoversEveryIdentifier(t *testing.T) {
	ids := []string{
		FriendsRequest, FriendsAccept, EventInvitedBy,
		EventParticipate, EventMaybeParticipate, EventNotParticipate,
		EventCarCreated, EventCarRemoved, EventCarGetIn, EventCarGetOut,
		EventSpendingCreated, EventSpendingRemoved,
		EventListCreated, EventListRemoved, EventListSelected, EventListLeaved,
		EventMessageCreated, EventUpdated, EventCancelled,
	}

	for _, locale := range Locales {
		messages, ok := catalog[locale]
		if !ok {
			t.Fatalf("locale %q missing from catalog", locale)
		}
		for _, id := range ids {
			if _, ok := messages[id]; !ok {
				t.Errorf("locale %q missing identifier %q", locale, id)
			}
		}
	}
}
