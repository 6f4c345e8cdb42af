package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/noctua-health/noctua/internal/domain/gamification"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAINTENANCE QUERIES
// ══════════════════════════════════════════════════════════════════════════════
//
// Cross-user scans used by the background jobs. These are not part of the
// domain repository contract; the jobs reach for the concrete type.

// ListOverdueActiveQuests returns active quests started before the cutoff,
// oldest first, across all users.
func (r *GamificationRepository) ListOverdueActiveQuests(ctx context.Context, startedBefore time.Time, limit int) ([]*gamification.Quest, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM user_quests
		WHERE status = 'active' AND started_at < $1
		ORDER BY started_at
	`, questColumns)
	args := []interface{}{startedBefore.UTC()}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue quests: %w", err)
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

// ListLapsedStreaks returns non-zero streaks whose last active day is
// before the cutoff, across all users. Frozen streaks are included; the
// decay job decides whether the freeze still holds.
func (r *GamificationRepository) ListLapsedStreaks(ctx context.Context, lastActiveBefore time.Time, limit int) ([]*gamification.Streak, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM streaks
		WHERE current_count > 0
		  AND (last_active_date IS NULL OR last_active_date < $1)
		ORDER BY last_active_date NULLS FIRST
	`, streakColumns)
	args := []interface{}{lastActiveBefore.UTC()}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lapsed streaks: %w", err)
	}
	defer rows.Close()

	streaks := make([]*gamification.Streak, 0)
	for rows.Next() {
		streak, err := scanStreak(rows)
		if err != nil {
			return nil, err
		}
		streaks = append(streaks, streak)
	}
	return streaks, rows.Err()
}
