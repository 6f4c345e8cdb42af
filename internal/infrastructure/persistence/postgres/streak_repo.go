package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noctua-health/noctua/internal/domain/gamification"
	"github.com/noctua-health/noctua/internal/domain/rules"
)

// ─────────────────────────────────────────────────────────────────────────────
// Streaks
// ─────────────────────────────────────────────────────────────────────────────

const streakColumns = `user_id, type, current_count, longest_count, frozen, frozen_until, multiplier, last_active_date`

// GetStreak returns the streak row, or a zero-valued streak when the user
// has never touched this behaviour. The zero view is not persisted.
func (r *GamificationRepository) GetStreak(ctx context.Context, userID int64, streakType gamification.StreakType) (*gamification.Streak, error) {
	return r.getStreak(ctx, r.conn, userID, streakType, false)
}

func (r *GamificationRepository) getStreak(ctx context.Context, q Querier, userID int64, streakType gamification.StreakType, forUpdate bool) (*gamification.Streak, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM streaks
		WHERE user_id = $1 AND type = $2
	`, streakColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}

	row := q.QueryRow(ctx, query, userID, string(streakType))
	streak, err := scanStreak(row)
	if err != nil {
		if IsNoRows(err) {
			return gamification.NewStreak(userID, streakType), nil
		}
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}
	return streak, nil
}

// GetStreaks returns every persisted streak for the user.
func (r *GamificationRepository) GetStreaks(ctx context.Context, userID int64) ([]*gamification.Streak, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM streaks
		WHERE user_id = $1
		ORDER BY type
	`, streakColumns)

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query streaks: %w", err)
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

// IncrementStreak raises the count by one. Freezing never blocks an
// increment; it only shields the streak from the decay job.
func (r *GamificationRepository) IncrementStreak(ctx context.Context, userID int64, streakType gamification.StreakType, activeDate time.Time) (*gamification.Streak, error) {
	var streak *gamification.Streak

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var err error
		streak, err = r.incrementStreakTx(ctx, tx, userID, streakType, activeDate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return streak, nil
}

func (r *GamificationRepository) incrementStreakTx(ctx context.Context, tx pgx.Tx, userID int64, streakType gamification.StreakType, activeDate time.Time) (*gamification.Streak, error) {
	streak, err := r.getStreak(ctx, tx, userID, streakType, true)
	if err != nil {
		return nil, err
	}

	rules.Increment(streak)
	day := activeDate.UTC().Truncate(24 * time.Hour)
	streak.LastActiveDate = &day

	if err := r.upsertStreakTx(ctx, tx, streak); err != nil {
		return nil, err
	}
	return streak, nil
}

// ResetStreak applies a hard or soft reset. The preserve percentage for
// soft resets comes from the user's settings (default 0.5).
func (r *GamificationRepository) ResetStreak(ctx context.Context, userID int64, streakType gamification.StreakType, soft bool) (*gamification.Streak, error) {
	var streak *gamification.Streak

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		settings, err := r.getSettings(ctx, tx, userID)
		if err != nil {
			return err
		}

		streak, err = r.getStreak(ctx, tx, userID, streakType, true)
		if err != nil {
			return err
		}

		rules.Reset(streak, soft, settings.PreservePercentage)
		return r.upsertStreakTx(ctx, tx, streak)
	})
	if err != nil {
		return nil, err
	}
	return streak, nil
}

// FreezeStreak protects a streak from decay until the given time.
func (r *GamificationRepository) FreezeStreak(ctx context.Context, userID int64, streakType gamification.StreakType, until time.Time) (*gamification.Streak, error) {
	var streak *gamification.Streak

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var err error
		streak, err = r.getStreak(ctx, tx, userID, streakType, true)
		if err != nil {
			return err
		}

		streak.Frozen = true
		u := until.UTC()
		streak.FrozenUntil = &u
		return r.upsertStreakTx(ctx, tx, streak)
	})
	if err != nil {
		return nil, err
	}
	return streak, nil
}

// UnfreezeStreak clears the freeze.
func (r *GamificationRepository) UnfreezeStreak(ctx context.Context, userID int64, streakType gamification.StreakType) (*gamification.Streak, error) {
	var streak *gamification.Streak

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var err error
		streak, err = r.getStreak(ctx, tx, userID, streakType, true)
		if err != nil {
			return err
		}

		streak.Frozen = false
		streak.FrozenUntil = nil
		return r.upsertStreakTx(ctx, tx, streak)
	})
	if err != nil {
		return nil, err
	}
	return streak, nil
}

func (r *GamificationRepository) upsertStreakTx(ctx context.Context, q Querier, s *gamification.Streak) error {
	query := `
		INSERT INTO streaks (user_id, type, current_count, longest_count, frozen, frozen_until, multiplier, last_active_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, type) DO UPDATE SET
			current_count = EXCLUDED.current_count,
			longest_count = EXCLUDED.longest_count,
			frozen = EXCLUDED.frozen,
			frozen_until = EXCLUDED.frozen_until,
			multiplier = EXCLUDED.multiplier,
			last_active_date = EXCLUDED.last_active_date
	`

	_, err := q.Exec(ctx, query,
		s.UserID,
		string(s.Type),
		s.CurrentCount,
		s.LongestCount,
		s.Frozen,
		s.FrozenUntil,
		s.Multiplier,
		s.LastActiveDate,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert streak: %w", err)
	}
	return nil
}

func scanStreak(row rowScanner) (*gamification.Streak, error) {
	var s gamification.Streak
	var streakType string

	err := row.Scan(
		&s.UserID,
		&streakType,
		&s.CurrentCount,
		&s.LongestCount,
		&s.Frozen,
		&s.FrozenUntil,
		&s.Multiplier,
		&s.LastActiveDate,
	)
	if err != nil {
		return nil, err
	}

	s.Type = gamification.StreakType(streakType)
	return &s, nil
}
