package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunCleanup sweeps expired records every interval until ctx is cancelled.
func RunCleanup(ctx context.Context, store Store, interval time.Duration, batchSize int, logger *zap.Logger) {
	if store == nil || interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := store.CleanupExpired(runCtx, now.UTC(), batchSize)
			cancel()
			if err != nil {
				logger.Error("idempotency cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		}
	}
}
