// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"blackpass-api/models"

	"github.com/go-co-op/gocron/v2"
)

// StartScheduler runs the periodic sweeps: stale pending payments are
// cancelled and lapsed streaks reset.
func StartScheduler(verifier *VerificationService, ledger *LedgerService, pendingTTL time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	// Every 15 minutes: cancel payments nobody confirmed
	if _, err := sched.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			n, err := verifier.ExpireStale(ctx, time.Now().UTC().Add(-pendingTTL))
			if err != nil {
				log.Printf("[Scheduler] payment expiry failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("⏰ [Scheduler] cancelled %d stale pending payment(s)", n)
			}
		}),
	); err != nil {
		return nil, err
	}

	// Hourly: zero streaks whose last activity is older than yesterday
	if _, err := sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			n, err := ledger.ResetLapsedStreaks(ctx)
			if err != nil {
				log.Printf("[Scheduler] streak reset failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("⏰ [Scheduler] reset %d lapsed streak(s)", n)
			}
		}),
	); err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}

// ResetLapsedStreaks zeroes current_streak for profiles idle since before yesterday.
func (s *LedgerService) ResetLapsedStreaks(ctx context.Context) (int64, error) {
	cutoff := dayOf(s.Now()).Add(-24 * time.Hour)
	res := s.DB.WithContext(ctx).Model(&models.Profile{}).
		Where("current_streak > 0 AND last_activity_date < ?", cutoff).
		Update("current_streak", 0)
	return res.RowsAffected, res.Error
}
