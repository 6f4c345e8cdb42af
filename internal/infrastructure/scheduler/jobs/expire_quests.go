// Package jobs contains the scheduled jobs of the gamification engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/noctua-health/noctua/internal/domain/gamification"
	"github.com/noctua-health/noctua/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE QUESTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// questExpirer is the slice of the store the job needs.
type questExpirer interface {
	ListOverdueActiveQuests(ctx context.Context, startedBefore time.Time, limit int) ([]*gamification.Quest, error)
	ExpireQuest(ctx context.Context, userID int64, questID string) (*gamification.Quest, error)
}

// ExpireQuestsJob times out quests that were started but never finished.
// An expired quest grants nothing; the user can start it again later.
type ExpireQuestsJob struct {
	store     questExpirer
	publisher shared.EventPublisher
	logger    *slog.Logger
	config    ExpireQuestsConfig
}

// ExpireQuestsConfig contains configuration for the quest expiry job.
type ExpireQuestsConfig struct {
	// MaxQuestAge is how long a quest may stay active before it expires.
	MaxQuestAge time.Duration

	// BatchSize caps how many quests one run processes.
	BatchSize int
}

// DefaultExpireQuestsConfig returns sensible defaults: a week per quest,
// 500 quests per run.
func DefaultExpireQuestsConfig() ExpireQuestsConfig {
	return ExpireQuestsConfig{
		MaxQuestAge: 7 * 24 * time.Hour,
		BatchSize:   500,
	}
}

// NewExpireQuestsJob creates the job.
func NewExpireQuestsJob(store questExpirer, publisher shared.EventPublisher, logger *slog.Logger, config ExpireQuestsConfig) *ExpireQuestsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxQuestAge <= 0 {
		config.MaxQuestAge = 7 * 24 * time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}

	return &ExpireQuestsJob{
		store:     store,
		publisher: publisher,
		logger:    logger,
		config:    config,
	}
}

// Name implements scheduler.Job.
func (j *ExpireQuestsJob) Name() string {
	return "expire_quests"
}

// Description implements scheduler.Job.
func (j *ExpireQuestsJob) Description() string {
	return "Expires active quests older than the quest age limit"
}

// Run implements scheduler.Job.
func (j *ExpireQuestsJob) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.config.MaxQuestAge)

	overdue, err := j.store.ListOverdueActiveQuests(ctx, cutoff, j.config.BatchSize)
	if err != nil {
		return fmt.Errorf("list overdue quests: %w", err)
	}
	if len(overdue) == 0 {
		return nil
	}

	expired := 0
	for _, quest := range overdue {
		if ctx.Err() != nil {
			break
		}

		if _, err := j.store.ExpireQuest(ctx, quest.UserID, quest.QuestID); err != nil {
			j.logger.Error("failed to expire quest",
				"user_id", quest.UserID,
				"quest_id", quest.QuestID,
				"error", err,
			)
			continue
		}
		expired++

		if j.publisher != nil {
			event := gamification.NewQuestExpiredEvent(quest.UserID, quest.QuestID)
			if err := j.publisher.Publish(event); err != nil {
				j.logger.Error("failed to publish quest expired event", "error", err)
			}
		}
	}

	j.logger.Info("quest expiry pass finished",
		"candidates", len(overdue),
		"expired", expired,
	)
	return ctx.Err()
}
