// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

package push

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func testNotification() *Notification {
	return NewNotification(
		[]string{"player-1", "player-2"},
		[]Content{
			{LanguageCode: "en", Body: "Alice added a car", Heading: "BARBECUE"},
			{LanguageCode: "fr", Body: "Alice a ajouté une voiture", Heading: "BARBECUE"},
		},
		map[string]any{"event": "event.car.added", "event_id": int64(42)},
	)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL: server.URL,
		AppID:   "app-123",
		RESTKey: "rest-key",
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, server
}

func TestSendSuccess(t *testing.T) {
	var got requestBody
	var gotAuth, gotQuery string

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/notifications" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("app_id")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"id":"aaff","recipients":2}`))
	})

	if err := client.Send(context.Background(), testNotification()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotAuth != "Basic rest-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotQuery != "app-123" {
		t.Errorf("app_id = %q", gotQuery)
	}
	if len(got.IncludePlayerIDs) != 2 {
		t.Errorf("include_player_ids = %v", got.IncludePlayerIDs)
	}
	if got.Contents["fr"] != "Alice a ajouté une voiture" {
		t.Errorf("contents[fr] = %q", got.Contents["fr"])
	}
	if got.Headings["en"] != "BARBECUE" {
		t.Errorf("headings[en] = %q", got.Headings["en"])
	}
	if got.TTL != DefaultTTL || got.Priority != DefaultPriority {
		t.Errorf("ttl/priority = %d/%d, want %d/%d", got.TTL, got.Priority, DefaultTTL, DefaultPriority)
	}
	if got.IOSBadgeType != "Increase" || got.IOSBadgeCount != 1 {
		t.Errorf("badge = %s/%d", got.IOSBadgeType, got.IOSBadgeCount)
	}
	if got.Data["event"] != "event.car.added" {
		t.Errorf("data.event = %v", got.Data["event"])
	}
}

func TestSendOmitsEmptyHeadings(t *testing.T) {
	var raw map[string]json.RawMessage
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"id":"aaff"}`))
	})

	n := NewNotification([]string{"p"}, []Content{{LanguageCode: "en", Body: "hi"}}, nil)
	if err := client.Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, present := raw["headings"]; present {
		t.Error("headings present in request without any heading")
	}
}

func TestSendValidationErrors(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":["All included players are not subscribed"]}`))
	})

	err := client.Send(context.Background(), testNotification())
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Send error = %v, want *ProviderError", err)
	}
	if len(provErr.Errors) != 1 || provErr.Errors[0] != "All included players are not subscribed" {
		t.Errorf("provider errors = %v", provErr.Errors)
	}
}

func TestSendUnprocessableResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no id no errors", `{"warnings":[]}`},
		{"not json", `<html>gateway timeout</html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			err := client.Send(context.Background(), testNotification())
			if err == nil {
				t.Fatal("Send succeeded on unprocessable response")
			}
			var provErr *ProviderError
			if errors.As(err, &provErr) {
				t.Errorf("unprocessable response classified as *ProviderError: %v", err)
			}
		})
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	for i := 0; i < 5; i++ {
		if err := client.Send(context.Background(), testNotification()); err == nil {
			t.Fatalf("Send %d succeeded against closed server", i)
		}
	}

	// The breaker is now open: calls fail fast without dialing.
	start := time.Now()
	err := client.Send(context.Background(), testNotification())
	if err == nil {
		t.Fatal("Send succeeded with breaker open")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("open breaker took %v, expected fast failure", elapsed)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "https://onesignal.com"}); err == nil {
		t.Error("NewClient without REST key succeeded")
	}
	if _, err := NewClient(Config{RESTKey: "k"}); err == nil {
		t.Error("NewClient without base URL succeeded")
	}
}
