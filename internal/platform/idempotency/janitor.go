package idempotency

import (
	"context"
	"time"
)

const cleanupBatch = 200

// RunJanitor removes expired records every interval until ctx is cancelled.
func RunJanitor(ctx context.Context, store Store, interval time.Duration, logger func(context.Context, string, map[string]any)) {
	if store == nil || interval <= 0 {
		return
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := store.CleanupExpired(ctx, now, cleanupBatch)
			if err != nil {
				logger(ctx, "idempotency.cleanup_failed", map[string]any{"error": err.Error()})
				continue
			}
			if removed > 0 {
				logger(ctx, "idempotency.cleanup", map[string]any{"removed": removed})
			}
		}
	}
}
