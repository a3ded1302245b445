// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

package services

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
)

// DispatchService runs the notification dispatch router as a supervised
// service. Router.Run blocks until the context is canceled and shuts the
// handlers down on its own, so the adaptation is direct.
type DispatchService struct {
	router *message.Router
}

// NewDispatchService wraps a configured Watermill router.
func NewDispatchService(router *message.Router) *DispatchService {
	return &DispatchService{router: router}
}

// Serve implements suture.Service.
func (d *DispatchService) Serve(ctx context.Context) error {
	if err := d.router.Run(ctx); err != nil {
		return fmt.Errorf("dispatch router: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture's event log.
func (d *DispatchService) String() string {
	return "notification-dispatch"
}
