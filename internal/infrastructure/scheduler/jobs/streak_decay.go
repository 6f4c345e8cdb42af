package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/noctua-health/noctua/internal/domain/gamification"
	"github.com/noctua-health/noctua/internal/domain/shared"
	"github.com/noctua-health/noctua/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK DECAY JOB
// ══════════════════════════════════════════════════════════════════════════════

// streakDecayer is the slice of the store the job needs.
type streakDecayer interface {
	ListLapsedStreaks(ctx context.Context, lastActiveBefore time.Time, limit int) ([]*gamification.Streak, error)
	GetSettings(ctx context.Context, userID int64) (*gamification.Settings, error)
	ResetStreak(ctx context.Context, userID int64, streakType gamification.StreakType, soft bool) (*gamification.Streak, error)
	UnfreezeStreak(ctx context.Context, userID int64, streakType gamification.StreakType) (*gamification.Streak, error)
}

// StreakDecayJob breaks streaks whose owners missed a full UTC day.
// Frozen streaks are left alone until their freeze lapses. Whether the
// break is a soft reset (part of the count survives) or a hard one
// follows the user's compassion settings.
type StreakDecayJob struct {
	store     streakDecayer
	publisher shared.EventPublisher
	logger    *slog.Logger
	batchSize int
}

// NewStreakDecayJob creates the job.
func NewStreakDecayJob(store streakDecayer, publisher shared.EventPublisher, logger *slog.Logger, batchSize int) *StreakDecayJob {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	return &StreakDecayJob{
		store:     store,
		publisher: publisher,
		logger:    logger,
		batchSize: batchSize,
	}
}

// Name implements scheduler.Job.
func (j *StreakDecayJob) Name() string {
	return "streak_decay"
}

// Description implements scheduler.Job.
func (j *StreakDecayJob) Description() string {
	return "Resets streaks that missed a full day, honoring freezes and compassion settings"
}

// Run implements scheduler.Job.
func (j *StreakDecayJob) Run(ctx context.Context) error {
	now := time.Now().UTC()

	// A streak survives as long as its last active day is yesterday or
	// today. Anything older has missed at least one full day.
	cutoff := timeutil.StartOfDay(now).Add(-24 * time.Hour)

	lapsed, err := j.store.ListLapsedStreaks(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("list lapsed streaks: %w", err)
	}
	if len(lapsed) == 0 {
		return nil
	}

	broken := 0
	for _, streak := range lapsed {
		if ctx.Err() != nil {
			break
		}

		if streak.Frozen {
			if streak.FrozenUntil == nil || streak.FrozenUntil.After(now) {
				continue
			}
			// The freeze has lapsed; clear it and let the streak decay.
			if _, err := j.store.UnfreezeStreak(ctx, streak.UserID, streak.Type); err != nil {
				j.logger.Error("failed to unfreeze lapsed streak",
					"user_id", streak.UserID,
					"streak_type", streak.Type,
					"error", err,
				)
				continue
			}
		}

		settings, err := j.store.GetSettings(ctx, streak.UserID)
		if err != nil {
			j.logger.Error("failed to load settings for decay",
				"user_id", streak.UserID,
				"error", err,
			)
			continue
		}

		soft := settings.CompassionEnabled && settings.SoftResetEnabled
		previous := streak.CurrentCount

		updated, err := j.store.ResetStreak(ctx, streak.UserID, streak.Type, soft)
		if err != nil {
			j.logger.Error("failed to reset streak",
				"user_id", streak.UserID,
				"streak_type", streak.Type,
				"error", err,
			)
			continue
		}
		broken++

		if j.publisher != nil {
			event := gamification.NewStreakBrokenEvent(streak.UserID, streak.Type, previous, updated.CurrentCount, soft)
			if err := j.publisher.Publish(event); err != nil {
				j.logger.Error("failed to publish streak broken event", "error", err)
			}
		}
	}

	j.logger.Info("streak decay pass finished",
		"candidates", len(lapsed),
		"broken", broken,
	)
	return ctx.Err()
}
