// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

// Package push implements the outbound client for the push-notification
// provider. One call per notification, no retries: delivery is best effort
// and the caller logs failures without propagating them.
package push

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/chillter/realtime/internal/logging"
	"github.com/chillter/realtime/internal/metrics"
)

const (
	// DefaultTTL is how long the provider keeps trying to deliver to an
	// offline device, in seconds (3 days).
	DefaultTTL = 259200

	// DefaultPriority is the delivery priority through the push server.
	// 10 means high priority, waking Android devices out of doze mode.
	DefaultPriority = 10
)

// Content is one localized rendering of a notification.
type Content struct {
	LanguageCode string
	Body         string
	// Heading is the notification title; empty means no title for this
	// notification (the provider falls back to the application name).
	Heading string
}

// Notification is a single outbound push request.
type Notification struct {
	// Recipients are provider-registered device addresses. Must be deduplicated
	// and non-empty before calling Send.
	Recipients []string
	Contents   []Content
	Priority   int
	TTL        int
	// Data is an opaque audit payload echoed to the provider, referencing the
	// originating domain event.
	Data map[string]any
}

// NewNotification creates a notification with default priority and TTL.
func NewNotification(recipients []string, contents []Content, data map[string]any) *Notification {
	return &Notification{
		Recipients: recipients,
		Contents:   contents,
		Priority:   DefaultPriority,
		TTL:        DefaultTTL,
		Data:       data,
	}
}

// ProviderError is a validation error reported by the provider. It is
// non-fatal: the request was understood and rejected, typically because
// every recipient address was stale.
type ProviderError struct {
	Errors []string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider rejected notification: %v", e.Errors)
}

// Config holds push client configuration.
type Config struct {
	// BaseURL is the provider API root, e.g. "https://onesignal.com".
	BaseURL string
	// AppID identifies the application at the provider.
	AppID string
	// RESTKey authenticates API calls (sent as Basic authorization).
	RESTKey string
	// Timeout bounds one outbound HTTP call. Default: 10s.
	Timeout time.Duration
}

// Client posts notifications to the provider over HTTP. Calls go through a
// circuit breaker so a dead provider sheds load fast instead of tying up
// dispatch handlers in timeouts.
type Client struct {
	cfg     Config
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewClient creates a push client. RESTKey must be set.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RESTKey == "" {
		return nil, errors.New("push: REST API key must be provided")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("push: base URL must be provided")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "push-provider",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("push circuit breaker state change")
		},
	})

	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}, nil
}

// requestBody is the provider wire format.
type requestBody struct {
	IncludePlayerIDs []string          `json:"include_player_ids"`
	Contents         map[string]string `json:"contents"`
	Headings         map[string]string `json:"headings,omitempty"`
	Priority         int               `json:"priority"`
	TTL              int               `json:"ttl"`
	IOSBadgeType     string            `json:"ios_badgeType"`
	IOSBadgeCount    int               `json:"ios_badgeCount"`
	Data             map[string]any    `json:"data,omitempty"`
}

// Send posts one notification. A response acknowledging with an id is
// success; a provider-reported validation error returns *ProviderError;
// any other response shape is a hard error.
func (c *Client) Send(ctx context.Context, n *Notification) error {
	body := requestBody{
		IncludePlayerIDs: n.Recipients,
		Contents:         make(map[string]string, len(n.Contents)),
		Headings:         make(map[string]string),
		Priority:         n.Priority,
		TTL:              n.TTL,
		IOSBadgeType:     "Increase",
		IOSBadgeCount:    1,
		Data:             n.Data,
	}
	for _, content := range n.Contents {
		body.Contents[content.LanguageCode] = content.Body
		if content.Heading != "" {
			body.Headings[content.LanguageCode] = content.Heading
		}
	}
	if len(body.Headings) == 0 {
		body.Headings = nil
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("push: marshal request: %w", err)
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.post(ctx, payload)
	})
	metrics.PushRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("push: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("push: read response: %w", err)
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("push: unprocessable response (status %d): %q", resp.StatusCode, raw)
	}

	if _, ok := parsed["id"]; ok {
		logging.Debug().
			Int("recipients", len(n.Recipients)).
			Int("status", resp.StatusCode).
			Dur("elapsed", time.Since(start)).
			Msg("push notification accepted")
		return nil
	}

	if rawErrs, ok := parsed["errors"]; ok {
		provErr := &ProviderError{}
		if err := json.Unmarshal(rawErrs, &provErr.Errors); err != nil {
			provErr.Errors = []string{string(rawErrs)}
		}
		return provErr
	}

	return fmt.Errorf("push: unprocessable response (status %d): %q", resp.StatusCode, raw)
}

func (c *Client) post(ctx context.Context, payload []byte) (*http.Response, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+c.cfg.RESTKey)

	return c.httpc.Do(req)
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("push: invalid base URL: %w", err)
	}
	u.Path = "/api/v1/notifications"
	q := u.Query()
	q.Set("app_id", c.cfg.AppID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
