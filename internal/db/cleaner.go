package db

import (
	"context"
	"time"

	"github.com/atinyakov/GalleryKeeper/internal/metrics"
	"go.uber.org/zap"
)

// SessionPurger removes favorite sessions older than a number of days.
type SessionPurger interface {
	ClearOldFavoriteSessions(ctx context.Context, daysOld int) (int, error)
}

// StartFavoriteSessionCleaner purges stale favorite sessions every interval
// until ctx is cancelled.
func StartFavoriteSessionCleaner(
	ctx context.Context,
	purger SessionPurger,
	interval time.Duration,
	retentionDays int,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := purger.ClearOldFavoriteSessions(ctx, retentionDays)
				if err != nil {
					log.Error("failed to clean favorite sessions", zap.Error(err))
					continue
				}
				metrics.RecordSessionsPurged(removed)
				if removed > 0 {
					log.Info("cleaned favorite sessions", zap.Int("removed", removed))
				}
			}
		}
	}()
}
