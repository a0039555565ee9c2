package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const refreshJobTimeout = 30 * time.Second

// Refresher refetches the loaded page's server state; the page view
// satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) error
	SessionID() int64
}

// RegisterFeedRefreshJob polls the loaded session at the given interval.
// A failed poll logs and waits for the next tick; there is no retry of
// its own.
func RegisterFeedRefreshJob(svc *Service, view Refresher, interval time.Duration) error {
	if svc == nil {
		return fmt.Errorf("feed refresh job requires a scheduler")
	}

	jobLogger := log.With().
		Str("component", "feed_refresh_job").
		Dur("interval", interval).
		Logger()

	_, err := svc.AddIntervalJob("feed_refresh", interval, func() {
		if view.SessionID() == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), refreshJobTimeout)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		if err := view.Refresh(ctx); err != nil {
			jobLogger.Error().Err(err).Int64("session_id", view.SessionID()).Msg("Feed refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("add feed refresh job: %w", err)
	}

	jobLogger.Info().Msg("Feed refresh job registered")
	return nil
}
