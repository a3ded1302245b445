// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

// Package metrics provides Prometheus instrumentation for the realtime core:
// chat connections and rooms, message throughput, domain event dispatch, and
// outbound push delivery.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Chat metrics

	ChatConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chillter_chat_connections",
			Help: "Number of currently joined chat connections",
		},
	)

	ChatRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chillter_chat_rooms",
			Help: "Number of chat rooms with at least one joined connection",
		},
	)

	ChatMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chillter_chat_messages_total",
			Help: "Total chat messages persisted and relayed",
		},
	)

	ChatAuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chillter_chat_auth_failures_total",
			Help: "Total chat connections closed before joining",
		},
		[]string{"reason"}, // missing_credential, invalid_token, not_participant, bad_target
	)

	// Domain event metrics

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chillter_domain_events_total",
			Help: "Total domain events published on the dispatcher",
		},
		[]string{"kind"},
	)

	// Notification metrics

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chillter_notifications_sent_total",
			Help: "Total push notifications accepted by the provider",
		},
		[]string{"kind"},
	)

	NotificationsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chillter_notifications_skipped_total",
			Help: "Total dispatches skipped because the recipient set was empty",
		},
		[]string{"kind"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chillter_notifications_failed_total",
			Help: "Total push notifications that failed (logged, never retried)",
		},
		[]string{"kind", "error_type"}, // directory, provider_validation, provider
	)

	PushRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chillter_push_request_duration_seconds",
			Help:    "Duration of outbound push provider calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
