package dispatcher

import (
	"context"
	"time"

	"github.com/ogas1024/chat-room/pkg/log"
)

// Run drives the background maintenance loops: the idle sweep and the
// eviction consumer. It blocks until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-d.reg.Evictions():
			// A newer login displaced this connection. The peer is
			// told why before the close.
			log.L().Info().
				Str(log.FieldConnID, ev.ConnID).
				Str(log.FieldReason, ev.Reason).
				Msg("evicting displaced session")
			d.notifyAndClose(ev.ConnID, ev.Reason)

		case <-ticker.C:
			d.sweep()
		}
	}
}

// sweep disconnects idle peers and connections that never logged in
// within the grace window.
func (d *Dispatcher) sweep() {
	for _, connID := range d.reg.Idle(d.cfg.IdleTimeout) {
		log.L().Info().Str(log.FieldConnID, connID).Msg("idle timeout")
		d.notifyAndClose(connID, "idle timeout")
	}
	for _, connID := range d.reg.Unauthenticated(d.cfg.AuthGrace) {
		log.L().Info().Str(log.FieldConnID, connID).Msg("authentication grace expired")
		d.notifyAndClose(connID, "authentication timeout")
	}
}
