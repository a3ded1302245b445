// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

// Package api assembles the HTTP surface: the websocket chat route, health
// and Prometheus metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chillter/realtime/internal/logging"
)

// Config holds router settings.
type Config struct {
	// AllowedOrigins is passed to CORS. Empty allows any origin.
	AllowedOrigins []string

	// RequestsPerMinute caps non-websocket requests per client IP.
	RequestsPerMinute int
}

// NewRouter builds the service router. chatHandler serves the websocket
// upgrade at GET /events/{eventID}/chat.
func NewRouter(chatHandler http.Handler, cfg Config) chi.Router {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 120
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(perMinute, time.Minute))
		r.Get("/healthz", handleHealth)
		r.Handle("/metrics", promhttp.Handler())
	})

	// The chat route is exempt from the per-IP limiter: one upgrade request
	// opens a long-lived connection, message volume is limited per
	// connection inside the chat package.
	r.Get("/events/{eventID}/chat", chatHandler.ServeHTTP)

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// requestLogger logs completed requests at debug level, skipping the metrics
// scrape to keep the log quiet.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("request")
	})
}
