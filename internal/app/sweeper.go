package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StartSweeper runs the periodic expiry scan until ctx is done. It is
// independent of the synchronous empty-session deletion done on leave.
func (o *Orchestrator) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := o.ExpireSessions(ctx, time.Now()); n > 0 {
					log.Info().Str("module", "app.sweeper").Int("expired", n).Msg("sweep complete")
				}
			}
		}
	}()
}
