// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

// Command server runs the Chillter realtime core: the per-event websocket
// chat and the notification dispatch pipeline.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/chillter/realtime/internal/api"
	"github.com/chillter/realtime/internal/chat"
	"github.com/chillter/realtime/internal/config"
	"github.com/chillter/realtime/internal/directory"
	"github.com/chillter/realtime/internal/events"
	"github.com/chillter/realtime/internal/history"
	"github.com/chillter/realtime/internal/logging"
	"github.com/chillter/realtime/internal/notify"
	"github.com/chillter/realtime/internal/push"
	"github.com/chillter/realtime/internal/supervisor"
	"github.com/chillter/realtime/internal/supervisor/services"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
	})
	logging.Info().Str("addr", cfg.Server.Addr).Msg("starting chillter realtime core")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := directory.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	dir := directory.New(db, directory.Config{PublicBaseURL: cfg.Database.PublicBaseURL})
	store := history.New(db, cfg.Database.PublicBaseURL)

	dispatcher := events.NewDispatcher(nil)
	defer dispatcher.Close()

	var pusher notify.Pusher = notify.NopPusher{}
	if cfg.Push.Enabled {
		client, err := push.NewClient(push.Config{
			BaseURL: cfg.Push.BaseURL,
			AppID:   cfg.Push.AppID,
			RESTKey: cfg.Push.RESTKey,
			Timeout: cfg.Push.Timeout,
		})
		if err != nil {
			return err
		}
		pusher = client
	}

	router, err := notify.NewRouter(
		notify.NewDispatcher(dir, pusher, nil),
		dispatcher.Subscriber(),
		events.NewLoggerAdapter(),
	)
	if err != nil {
		return err
	}

	registry := chat.NewRegistry()
	chatHandler := chat.NewHandler(registry, dir, store, dispatcher, chat.Config{
		MessageRate:    rate.Limit(cfg.Chat.MessagesPerSecond),
		MessageBurst:   cfg.Chat.MessageBurst,
		AllowedOrigins: cfg.Chat.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(chatHandler, api.Config{AllowedOrigins: cfg.Chat.AllowedOrigins, RequestsPerMinute: cfg.Server.RequestsPerMinute}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout

	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)
	tree.AddMessagingService(services.NewDispatchService(router))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	err = tree.Serve(ctx)

	// Closing websocket connections lets read loops end and deregister.
	registry.CloseAll()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("shutdown complete")
	return nil
}
