package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noctua-health/noctua/internal/domain/gamification"
	"github.com/noctua-health/noctua/internal/domain/shared"
)

// ─────────────────────────────────────────────────────────────────────────────
// Achievements
// ─────────────────────────────────────────────────────────────────────────────

const achievementColumns = `user_id, achievement_id, progress, unlocked_at, notified`

// GetAchievement returns one badge row.
func (r *GamificationRepository) GetAchievement(ctx context.Context, userID int64, achievementID string) (*gamification.Achievement, error) {
	return r.getAchievement(ctx, r.conn, userID, achievementID, false)
}

func (r *GamificationRepository) getAchievement(ctx context.Context, q Querier, userID int64, achievementID string, forUpdate bool) (*gamification.Achievement, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM user_achievements
		WHERE user_id = $1 AND achievement_id = $2
	`, achievementColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}

	row := q.QueryRow(ctx, query, userID, achievementID)
	achievement, err := scanAchievement(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.WrapError("achievement", "Find", shared.ErrNotFound, "achievement not found", nil)
		}
		return nil, fmt.Errorf("failed to get achievement: %w", err)
	}
	return achievement, nil
}

// GetAchievements returns every badge row for the user.
func (r *GamificationRepository) GetAchievements(ctx context.Context, userID int64) ([]*gamification.Achievement, error) {
	return r.getAchievements(ctx, r.conn, userID)
}

func (r *GamificationRepository) getAchievements(ctx context.Context, q Querier, userID int64) ([]*gamification.Achievement, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM user_achievements
		WHERE user_id = $1
		ORDER BY achievement_id
	`, achievementColumns)

	rows, err := q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievements: %w", err)
	}
	defer rows.Close()

	achievements := make([]*gamification.Achievement, 0)
	for rows.Next() {
		achievement, err := scanAchievement(rows)
		if err != nil {
			return nil, err
		}
		achievements = append(achievements, achievement)
	}
	return achievements, rows.Err()
}

// UnlockAchievement idempotently unlocks a badge. UnlockedAt is fixed at
// the first unlock; repeat calls return the existing record untouched.
func (r *GamificationRepository) UnlockAchievement(ctx context.Context, userID int64, achievementID string) (*gamification.Achievement, error) {
	var achievement *gamification.Achievement

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var err error
		achievement, err = r.unlockAchievementTx(ctx, tx, userID, achievementID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return achievement, nil
}

// unlockAchievementTx is the transaction-scoped body of UnlockAchievement,
// reused by composite operations. The DO UPDATE branch leaves an already
// set unlocked_at alone.
func (r *GamificationRepository) unlockAchievementTx(ctx context.Context, tx pgx.Tx, userID int64, achievementID string) (*gamification.Achievement, error) {
	if achievementID == "" {
		return nil, shared.WrapError("achievement", "Unlock", shared.ErrEmptyValue, "achievement ID is required", nil)
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(`
		INSERT INTO user_achievements (user_id, achievement_id, progress, unlocked_at, notified)
		VALUES ($1, $2, 100, $3, FALSE)
		ON CONFLICT (user_id, achievement_id) DO UPDATE SET
			progress = 100,
			unlocked_at = COALESCE(user_achievements.unlocked_at, EXCLUDED.unlocked_at)
		RETURNING %s
	`, achievementColumns)

	row := tx.QueryRow(ctx, query, userID, achievementID, now)
	achievement, err := scanAchievement(row)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock achievement: %w", err)
	}
	return achievement, nil
}

// UpdateAchievementProgress clamps progress to [0,100], upserts the row,
// and auto-unlocks the instant progress reaches 100. An unlock already on
// the row is never cleared, even when later progress values are lower.
func (r *GamificationRepository) UpdateAchievementProgress(ctx context.Context, userID int64, achievementID string, progress int) (*gamification.Achievement, error) {
	if achievementID == "" {
		return nil, shared.WrapError("achievement", "UpdateProgress", shared.ErrEmptyValue, "achievement ID is required", nil)
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	var achievement *gamification.Achievement

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		now := time.Now().UTC()
		var unlockAt *time.Time
		if progress >= 100 {
			unlockAt = &now
		}

		query := fmt.Sprintf(`
			INSERT INTO user_achievements (user_id, achievement_id, progress, unlocked_at, notified)
			VALUES ($1, $2, $3, $4, FALSE)
			ON CONFLICT (user_id, achievement_id) DO UPDATE SET
				progress = EXCLUDED.progress,
				unlocked_at = COALESCE(user_achievements.unlocked_at, EXCLUDED.unlocked_at)
			RETURNING %s
		`, achievementColumns)

		row := tx.QueryRow(ctx, query, userID, achievementID, progress, unlockAt)
		var err error
		achievement, err = scanAchievement(row)
		if err != nil {
			return fmt.Errorf("failed to update achievement progress: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return achievement, nil
}

// MarkAchievementNotified flips the notified flag that drives "new badge"
// chat messages.
func (r *GamificationRepository) MarkAchievementNotified(ctx context.Context, userID int64, achievementID string) error {
	result, err := r.conn.Exec(ctx, `
		UPDATE user_achievements
		SET notified = TRUE
		WHERE user_id = $1 AND achievement_id = $2
	`, userID, achievementID)
	if err != nil {
		return fmt.Errorf("failed to mark achievement notified: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.WrapError("achievement", "MarkNotified", shared.ErrNotFound, "achievement not found", nil)
	}
	return nil
}

// GetUnnotifiedAchievements returns unlocked badges the user has not been
// told about yet.
func (r *GamificationRepository) GetUnnotifiedAchievements(ctx context.Context, userID int64) ([]*gamification.Achievement, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM user_achievements
		WHERE user_id = $1 AND unlocked_at IS NOT NULL AND NOT notified
		ORDER BY unlocked_at
	`, achievementColumns)

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unnotified achievements: %w", err)
	}
	defer rows.Close()

	achievements := make([]*gamification.Achievement, 0)
	for rows.Next() {
		achievement, err := scanAchievement(rows)
		if err != nil {
			return nil, err
		}
		achievements = append(achievements, achievement)
	}
	return achievements, rows.Err()
}

func scanAchievement(row rowScanner) (*gamification.Achievement, error) {
	var a gamification.Achievement

	err := row.Scan(
		&a.UserID,
		&a.AchievementID,
		&a.Progress,
		&a.UnlockedAt,
		&a.Notified,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
