package workers

import (
	"context"
	"log/slog"
	"time"

	"drinkOnMeAPI/services"
)

// StartExpirySweep starts a background routine that marks overdue pending
// redemption tokens expired. The redeem path already rejects expired codes
// on its own, so the sweep only keeps the table tidy and the expired count
// observable; a missed tick never lets a stale code through.
func StartExpirySweep(ctx context.Context, svc *services.RedemptionService, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
				if _, err := svc.ExpireSweep(sweepCtx); err != nil {
					logger.Warn("expiry sweep failed", "error", err)
				}
				cancel()
			}
		}
	}()
}
