package gamification

import (
	"context"

	"github.com/noctua-health/noctua/internal/domain/gamification"
	"github.com/noctua-health/noctua/internal/domain/shared"
	"github.com/noctua-health/noctua/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUESTS
// ══════════════════════════════════════════════════════════════════════════════

// StartQuest starts a quest instance and publishes quest:started. The
// repository enforces the active-quest cap and rejects duplicates.
func (e *Engine) StartQuest(ctx context.Context, userID int64, questID string, targetValue int) (*gamification.Quest, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	if questID == "" {
		return nil, shared.ErrQuestNotFound
	}

	quest, err := e.repo.StartQuest(ctx, userID, questID, targetValue)
	if err != nil {
		return nil, err
	}

	e.publish(gamification.NewQuestStartedEvent(userID, questID, quest.Progress.TargetValue))
	e.log.Info("quest started", logger.UserID(userID), logger.QuestID(questID))
	return quest, nil
}

// UpdateQuestProgress merges partial progress into an active quest.
// Progress updates do not complete quests; completion is an explicit
// AwardQuestCompletion call by the caller that knows the reward.
func (e *Engine) UpdateQuestProgress(ctx context.Context, userID int64, questID string, progress gamification.QuestProgress) (*gamification.Quest, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	return e.repo.UpdateQuestProgress(ctx, userID, questID, progress)
}

// AwardQuestCompletion completes the quest, awards its XP, and unlocks the
// optional badge in one transaction, then publishes the corresponding
// events. Completing an already-terminal quest returns the existing record
// and publishes nothing.
func (e *Engine) AwardQuestCompletion(ctx context.Context, userID int64, questID string, xpAmount gamification.XP, badgeID string) (*gamification.QuestCompletionResult, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	if xpAmount <= 0 {
		return nil, shared.ErrNonPositiveXP
	}

	prevLevel := gamification.Level(1)
	if state, err := e.repo.GetState(ctx, userID); err == nil {
		prevLevel = state.CurrentLevel
	} else if !shared.IsNotFound(err) {
		return nil, err
	}

	result, err := e.repo.AwardQuestCompletion(ctx, userID, questID, xpAmount, badgeID)
	if err != nil {
		return nil, err
	}

	// A nil transaction means the quest was already terminal and nothing
	// was awarded this call.
	if result.XPTransaction != nil {
		e.publish(gamification.NewQuestCompletedEvent(userID, questID, xpAmount))
		e.publish(gamification.NewXPEarnedEvent(userID, xpAmount, result.NewTotalXP, gamification.SourceQuestReward))
		if result.LeveledUp {
			e.publish(gamification.NewLevelUpEvent(userID, prevLevel, result.NewLevel, result.NewTotalXP))
		}
		if result.Badge != nil {
			e.publish(gamification.NewAchievementUnlockedEvent(userID, result.Badge.AchievementID))
		}
		e.log.Info("quest completed",
			logger.UserID(userID),
			logger.QuestID(questID),
			logger.XPAmount(int(xpAmount)),
		)
		e.invalidateProfile(ctx, userID)
	}

	return result, nil
}

// GetActiveQuests returns the user's active quests, oldest first.
func (e *Engine) GetActiveQuests(ctx context.Context, userID int64) ([]*gamification.Quest, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	return e.repo.GetActiveQuests(ctx, userID)
}
