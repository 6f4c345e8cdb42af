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
// Quests
// ─────────────────────────────────────────────────────────────────────────────

const questColumns = `user_id, quest_id, status, started_at, completed_at, current_value, target_value`

// StartQuest creates an active quest instance. The capacity check and the
// insert run in one transaction so a racing start can never push a user
// past the cap; neither failure mode mutates existing quests.
func (r *GamificationRepository) StartQuest(ctx context.Context, userID int64, questID string, targetValue int) (*gamification.Quest, error) {
	if questID == "" {
		return nil, shared.WrapError("quest", "Start", shared.ErrEmptyValue, "quest ID is required", nil)
	}
	if targetValue <= 0 {
		targetValue = 1
	}

	var quest *gamification.Quest

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var active int
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM user_quests
			WHERE user_id = $1 AND status = 'active'
		`, userID).Scan(&active)
		if err != nil {
			return fmt.Errorf("failed to count active quests: %w", err)
		}
		if active >= gamification.MaxActiveQuests {
			return shared.ErrQuestCapacity
		}

		quest = &gamification.Quest{
			UserID:    userID,
			QuestID:   questID,
			Status:    gamification.QuestActive,
			StartedAt: time.Now().UTC(),
			Progress:  gamification.QuestProgress{CurrentValue: 0, TargetValue: targetValue},
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO user_quests (user_id, quest_id, status, started_at, current_value, target_value)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, userID, questID, string(quest.Status), quest.StartedAt, 0, targetValue)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrQuestAlreadyStarted
			}
			return fmt.Errorf("failed to insert quest: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quest, nil
}

// UpdateQuestProgress merges partial progress into the stored objective
// without changing status. Terminal quests are returned unchanged.
func (r *GamificationRepository) UpdateQuestProgress(ctx context.Context, userID int64, questID string, progress gamification.QuestProgress) (*gamification.Quest, error) {
	var quest *gamification.Quest

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var err error
		quest, err = r.getQuest(ctx, tx, userID, questID, true)
		if err != nil {
			return err
		}
		if quest.Terminal() {
			return nil
		}

		if progress.CurrentValue > 0 {
			quest.Progress.CurrentValue = progress.CurrentValue
		}
		if progress.TargetValue > 0 {
			quest.Progress.TargetValue = progress.TargetValue
		}

		_, err = tx.Exec(ctx, `
			UPDATE user_quests
			SET current_value = $1, target_value = $2
			WHERE user_id = $3 AND quest_id = $4
		`, quest.Progress.CurrentValue, quest.Progress.TargetValue, userID, questID)
		if err != nil {
			return fmt.Errorf("failed to update quest progress: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quest, nil
}

// CompleteQuest sets the completed terminal status. Idempotent: a second
// call returns the existing terminal record.
func (r *GamificationRepository) CompleteQuest(ctx context.Context, userID int64, questID string) (*gamification.Quest, error) {
	var quest *gamification.Quest

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var err error
		quest, _, err = r.completeQuestTx(ctx, tx, userID, questID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return quest, nil
}

// completeQuestTx transitions the quest to completed. The bool result
// reports whether the quest was already terminal before the call.
func (r *GamificationRepository) completeQuestTx(ctx context.Context, tx pgx.Tx, userID int64, questID string) (*gamification.Quest, bool, error) {
	quest, err := r.getQuest(ctx, tx, userID, questID, true)
	if err != nil {
		return nil, false, err
	}
	if quest.Terminal() {
		return quest, true, nil
	}

	now := time.Now().UTC()
	quest.Status = gamification.QuestCompleted
	quest.CompletedAt = &now
	quest.Progress.CurrentValue = quest.Progress.TargetValue

	_, err = tx.Exec(ctx, `
		UPDATE user_quests
		SET status = 'completed', completed_at = $1, current_value = target_value
		WHERE user_id = $2 AND quest_id = $3
	`, now, userID, questID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to complete quest: %w", err)
	}
	return quest, false, nil
}

// ExpireQuest sets the expired terminal status. Idempotent like
// CompleteQuest.
func (r *GamificationRepository) ExpireQuest(ctx context.Context, userID int64, questID string) (*gamification.Quest, error) {
	var quest *gamification.Quest

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var err error
		quest, err = r.getQuest(ctx, tx, userID, questID, true)
		if err != nil {
			return err
		}
		if quest.Terminal() {
			return nil
		}

		now := time.Now().UTC()
		quest.Status = gamification.QuestExpired
		quest.CompletedAt = &now

		_, err = tx.Exec(ctx, `
			UPDATE user_quests
			SET status = 'expired', completed_at = $1
			WHERE user_id = $2 AND quest_id = $3
		`, now, userID, questID)
		if err != nil {
			return fmt.Errorf("failed to expire quest: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quest, nil
}

// GetQuest returns one quest instance.
func (r *GamificationRepository) GetQuest(ctx context.Context, userID int64, questID string) (*gamification.Quest, error) {
	return r.getQuest(ctx, r.conn, userID, questID, false)
}

func (r *GamificationRepository) getQuest(ctx context.Context, q Querier, userID int64, questID string, forUpdate bool) (*gamification.Quest, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM user_quests
		WHERE user_id = $1 AND quest_id = $2
	`, questColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}

	row := q.QueryRow(ctx, query, userID, questID)
	quest, err := scanQuest(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrQuestNotFound
		}
		return nil, fmt.Errorf("failed to get quest: %w", err)
	}
	return quest, nil
}

// GetActiveQuests returns the user's active quests, oldest first.
func (r *GamificationRepository) GetActiveQuests(ctx context.Context, userID int64) ([]*gamification.Quest, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM user_quests
		WHERE user_id = $1 AND status = 'active'
		ORDER BY started_at
	`, questColumns)

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active quests: %w", err)
	}
	defer rows.Close()

	quests := make([]*gamification.Quest, 0)
	for rows.Next() {
		quest, err := scanQuest(rows)
		if err != nil {
			return nil, err
		}
		quests = append(quests, quest)
	}
	return quests, rows.Err()
}

// GetCompletedQuestCount returns how many quests the user has completed.
func (r *GamificationRepository) GetCompletedQuestCount(ctx context.Context, userID int64) (int, error) {
	return r.completedQuestCount(ctx, r.conn, userID)
}

func (r *GamificationRepository) completedQuestCount(ctx context.Context, q Querier, userID int64) (int, error) {
	var count int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM user_quests
		WHERE user_id = $1 AND status = 'completed'
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed quests: %w", err)
	}
	return count, nil
}

func scanQuest(row rowScanner) (*gamification.Quest, error) {
	var q gamification.Quest
	var status string

	err := row.Scan(
		&q.UserID,
		&q.QuestID,
		&status,
		&q.StartedAt,
		&q.CompletedAt,
		&q.Progress.CurrentValue,
		&q.Progress.TargetValue,
	)
	if err != nil {
		return nil, err
	}

	q.Status = gamification.QuestStatus(status)
	return &q, nil
}
