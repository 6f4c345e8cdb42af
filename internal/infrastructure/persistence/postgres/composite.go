package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noctua-health/noctua/internal/domain/gamification"
	"github.com/noctua-health/noctua/internal/domain/rules"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════
//
// These run several aggregate writes inside one transaction. Either every
// effect commits or none does: no quest is left completed without its XP,
// and no XP is granted without its ledger row.

// AwardQuestCompletion completes the quest, grants its XP reward and, when
// badgeID is non-empty, unlocks the badge, all in one unit of work. Calling
// it on an already terminal quest is a no-op that returns the quest as-is
// with no XP granted.
func (r *GamificationRepository) AwardQuestCompletion(ctx context.Context, userID int64, questID string, xpAmount gamification.XP, badgeID string) (*gamification.QuestCompletionResult, error) {
	var result *gamification.QuestCompletionResult

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		quest, alreadyTerminal, err := r.completeQuestTx(ctx, tx, userID, questID)
		if err != nil {
			return err
		}
		if alreadyTerminal {
			result = &gamification.QuestCompletionResult{Quest: quest}
			return nil
		}

		xpResult, err := r.addXPTx(ctx, tx, userID, xpAmount, gamification.SourceQuestReward, map[string]interface{}{
			"quest_id": questID,
		})
		if err != nil {
			return err
		}

		result = &gamification.QuestCompletionResult{
			Quest:         quest,
			XPTransaction: xpResult.Transaction,
			NewTotalXP:    xpResult.NewTotalXP,
			LeveledUp:     xpResult.LeveledUp,
			NewLevel:      xpResult.NewLevel,
		}

		if badgeID != "" {
			badge, err := r.unlockAchievementTx(ctx, tx, userID, badgeID)
			if err != nil {
				return err
			}
			result.Badge = badge
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecordDailyCheckIn is the engine's daily heartbeat: it bumps the login
// streak, counts the active day, grants multiplier-scaled XP and awards any
// badges the updated profile now earns, atomically. A second call on the
// same UTC calendar day is a no-op that reports AlreadyCheckedIn.
func (r *GamificationRepository) RecordDailyCheckIn(ctx context.Context, userID int64, baseXP gamification.XP, evaluate gamification.BadgeEvaluator) (*gamification.CheckInResult, error) {
	var result *gamification.CheckInResult

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		state, err := r.ensureStateTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		streak, err := r.getStreak(ctx, tx, userID, gamification.StreakDailyLogin, true)
		if err != nil {
			return err
		}

		today := time.Now().UTC().Truncate(24 * time.Hour)
		if streak.LastActiveDate != nil && streak.LastActiveDate.Equal(today) {
			result = &gamification.CheckInResult{
				Streak:           streak,
				TotalXP:          state.TotalXP,
				NewLevel:         state.CurrentLevel,
				AlreadyCheckedIn: true,
			}
			return nil
		}

		rules.Increment(streak)
		streak.LastActiveDate = &today
		if err := r.upsertStreakTx(ctx, tx, streak); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE gamification_states
			SET total_days_active = total_days_active + 1, updated_at = NOW()
			WHERE user_id = $1
		`, userID)
		if err != nil {
			return fmt.Errorf("failed to count active day: %w", err)
		}

		earned := gamification.XP(float64(baseXP) * streak.Multiplier)
		xpResult, err := r.addXPTx(ctx, tx, userID, earned, gamification.SourceDailyCheckIn, map[string]interface{}{
			"streak_count": streak.CurrentCount,
			"multiplier":   streak.Multiplier,
		})
		if err != nil {
			return err
		}

		result = &gamification.CheckInResult{
			Streak:    streak,
			XPEarned:  earned,
			TotalXP:   xpResult.NewTotalXP,
			LeveledUp: xpResult.LeveledUp,
			NewLevel:  xpResult.NewLevel,
		}

		if evaluate == nil {
			return nil
		}

		profile, err := r.profileTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		for _, badgeID := range evaluate(*profile) {
			badge, err := r.unlockAchievementTx(ctx, tx, userID, badgeID)
			if err != nil {
				return err
			}
			result.AwardedBadges = append(result.AwardedBadges, badge)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// profileTx assembles the flat snapshot badge criteria are written
// against, reading the already-updated rows of the current transaction.
func (r *GamificationRepository) profileTx(ctx context.Context, tx pgx.Tx, userID int64) (*gamification.Profile, error) {
	state, err := r.getState(ctx, tx, userID, false)
	if err != nil {
		return nil, err
	}

	profile := &gamification.Profile{
		UserID:          userID,
		TotalXP:         state.TotalXP,
		CurrentLevel:    state.CurrentLevel,
		TotalDaysActive: state.TotalDaysActive,
		StreakCounts:    make(map[gamification.StreakType]int),
		Unlocked:        make(map[string]bool),
	}

	rows, err := tx.Query(ctx, `
		SELECT type, current_count
		FROM streaks
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query streak counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var streakType string
		var count int
		if err := rows.Scan(&streakType, &count); err != nil {
			return nil, err
		}
		profile.StreakCounts[gamification.StreakType(streakType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	profile.CompletedQuests, err = r.completedQuestCount(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	achievements, err := r.getAchievements(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	for _, a := range achievements {
		if a.Unlocked() {
			profile.Unlocked[a.AchievementID] = true
		}
	}
	return profile, nil
}
