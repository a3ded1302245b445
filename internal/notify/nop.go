// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

package notify

import (
	"context"

	"github.com/chillter/realtime/internal/logging"
	"github.com/chillter/realtime/internal/push"
)

// NopPusher logs notifications instead of sending them. Used when outbound
// push is disabled in configuration.
type NopPusher struct{}

// Send implements Pusher.
func (NopPusher) Send(_ context.Context, n *push.Notification) error {
	logging.Info().
		Int("recipients", len(n.Recipients)).
		Interface("data", n.Data).
		Msg("push disabled, notification not sent")
	return nil
}
