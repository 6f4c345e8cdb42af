package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noctua-health/noctua/internal/domain/gamification"
	"github.com/noctua-health/noctua/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// INVENTORY AND EQUIPPED ITEMS
// ══════════════════════════════════════════════════════════════════════════════

// AddInventoryItem adds quantity to the user's stack of rewardID, creating
// the stack when absent.
func (r *GamificationRepository) AddInventoryItem(ctx context.Context, userID int64, rewardID string, quantity int) (*gamification.InventoryItem, error) {
	if quantity <= 0 {
		return nil, shared.ErrInvalidQuantity
	}

	row := r.conn.QueryRow(ctx, `
		INSERT INTO inventory_items (user_id, reward_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, reward_id) DO UPDATE SET
			quantity = inventory_items.quantity + EXCLUDED.quantity
		RETURNING user_id, reward_id, quantity
	`, userID, rewardID, quantity)

	item, err := scanInventoryItem(row)
	if err != nil {
		return nil, fmt.Errorf("failed to add inventory item: %w", err)
	}
	return item, nil
}

// ConsumeInventoryItem decrements the stack, deleting the row when it
// reaches zero. Consuming more than the user owns fails without change.
func (r *GamificationRepository) ConsumeInventoryItem(ctx context.Context, userID int64, rewardID string, quantity int) error {
	if quantity <= 0 {
		return shared.ErrInvalidQuantity
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var owned int
		err := tx.QueryRow(ctx, `
			SELECT quantity
			FROM inventory_items
			WHERE user_id = $1 AND reward_id = $2
			FOR UPDATE
		`, userID, rewardID).Scan(&owned)
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrItemNotFound
			}
			return fmt.Errorf("failed to lock inventory item: %w", err)
		}

		if owned < quantity {
			return shared.ErrInvalidQuantity
		}

		if owned == quantity {
			_, err = tx.Exec(ctx, `
				DELETE FROM inventory_items
				WHERE user_id = $1 AND reward_id = $2
			`, userID, rewardID)
		} else {
			_, err = tx.Exec(ctx, `
				UPDATE inventory_items
				SET quantity = quantity - $3
				WHERE user_id = $1 AND reward_id = $2
			`, userID, rewardID, quantity)
		}
		if err != nil {
			return fmt.Errorf("failed to consume inventory item: %w", err)
		}
		return nil
	})
}

// GetInventory returns the user's reward stacks.
func (r *GamificationRepository) GetInventory(ctx context.Context, userID int64) ([]*gamification.InventoryItem, error) {
	return r.getInventory(ctx, r.conn, userID)
}

func (r *GamificationRepository) getInventory(ctx context.Context, q Querier, userID int64) ([]*gamification.InventoryItem, error) {
	rows, err := q.Query(ctx, `
		SELECT user_id, reward_id, quantity
		FROM inventory_items
		WHERE user_id = $1
		ORDER BY reward_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer rows.Close()

	items := make([]*gamification.InventoryItem, 0)
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetEquippedItems returns the equipped cosmetics. A user without a row
// gets an empty view with nothing equipped.
func (r *GamificationRepository) GetEquippedItems(ctx context.Context, userID int64) (*gamification.EquippedItems, error) {
	return r.getEquippedItems(ctx, r.conn, userID)
}

func (r *GamificationRepository) getEquippedItems(ctx context.Context, q Querier, userID int64) (*gamification.EquippedItems, error) {
	row := q.QueryRow(ctx, `
		SELECT user_id, equipped_badge, equipped_title
		FROM equipped_items
		WHERE user_id = $1
	`, userID)

	var e gamification.EquippedItems
	err := row.Scan(&e.UserID, &e.EquippedBadge, &e.EquippedTitle)
	if err != nil {
		if IsNoRows(err) {
			return &gamification.EquippedItems{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get equipped items: %w", err)
	}
	return &e, nil
}

// EquipBadge equips an unlocked achievement as the visible badge. The
// badge must already be unlocked; cosmetics from the inventory are not
// badges.
func (r *GamificationRepository) EquipBadge(ctx context.Context, userID int64, badgeID string) (*gamification.EquippedItems, error) {
	var equipped *gamification.EquippedItems

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		achievement, err := r.getAchievement(ctx, tx, userID, badgeID, false)
		if err != nil {
			if shared.IsNotFound(err) {
				return shared.ErrItemNotOwned
			}
			return err
		}
		if !achievement.Unlocked() {
			return shared.ErrItemNotOwned
		}

		equipped, err = r.upsertEquippedTx(ctx, tx, userID, "equipped_badge", badgeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return equipped, nil
}

// EquipTitle equips a title reward from the user's inventory.
func (r *GamificationRepository) EquipTitle(ctx context.Context, userID int64, titleID string) (*gamification.EquippedItems, error) {
	var equipped *gamification.EquippedItems

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var owned int
		err := tx.QueryRow(ctx, `
			SELECT quantity
			FROM inventory_items
			WHERE user_id = $1 AND reward_id = $2
		`, userID, titleID).Scan(&owned)
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrItemNotOwned
			}
			return fmt.Errorf("failed to check title ownership: %w", err)
		}

		equipped, err = r.upsertEquippedTx(ctx, tx, userID, "equipped_title", titleID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return equipped, nil
}

// upsertEquippedTx sets one equipment slot, leaving the other untouched.
// The column name is compile-time constant at both call sites.
func (r *GamificationRepository) upsertEquippedTx(ctx context.Context, tx pgx.Tx, userID int64, column, itemID string) (*gamification.EquippedItems, error) {
	query := fmt.Sprintf(`
		INSERT INTO equipped_items (user_id, %s)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			%s = EXCLUDED.%s
		RETURNING user_id, equipped_badge, equipped_title
	`, column, column, column)

	var e gamification.EquippedItems
	err := tx.QueryRow(ctx, query, userID, itemID).Scan(&e.UserID, &e.EquippedBadge, &e.EquippedTitle)
	if err != nil {
		return nil, fmt.Errorf("failed to equip item: %w", err)
	}
	return &e, nil
}

func scanInventoryItem(row rowScanner) (*gamification.InventoryItem, error) {
	var item gamification.InventoryItem
	if err := row.Scan(&item.UserID, &item.RewardID, &item.Quantity); err != nil {
		return nil, err
	}
	return &item, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS
// ══════════════════════════════════════════════════════════════════════════════

// GetSettings returns the user's preferences, or the documented defaults
// when no row exists. The defaults are never written implicitly.
func (r *GamificationRepository) GetSettings(ctx context.Context, userID int64) (*gamification.Settings, error) {
	return r.getSettings(ctx, r.conn, userID)
}

func (r *GamificationRepository) getSettings(ctx context.Context, q Querier, userID int64) (*gamification.Settings, error) {
	row := q.QueryRow(ctx, `
		SELECT user_id, compassion_enabled, soft_reset_enabled, preserve_percentage, soft_limit_minutes, daily_limit_minutes
		FROM gamification_settings
		WHERE user_id = $1
	`, userID)

	var s gamification.Settings
	err := row.Scan(
		&s.UserID,
		&s.CompassionEnabled,
		&s.SoftResetEnabled,
		&s.PreservePercentage,
		&s.SoftLimitMinutes,
		&s.DailyLimitMinutes,
	)
	if err != nil {
		if IsNoRows(err) {
			return gamification.DefaultSettings(userID), nil
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &s, nil
}

// getStoredSettings reads the settings row without the default
// substitution getSettings applies. A missing row returns nil.
func (r *GamificationRepository) getStoredSettings(ctx context.Context, q Querier, userID int64) (*gamification.Settings, error) {
	row := q.QueryRow(ctx, `
		SELECT user_id, compassion_enabled, soft_reset_enabled, preserve_percentage, soft_limit_minutes, daily_limit_minutes
		FROM gamification_settings
		WHERE user_id = $1
	`, userID)

	var s gamification.Settings
	err := row.Scan(
		&s.UserID,
		&s.CompassionEnabled,
		&s.SoftResetEnabled,
		&s.PreservePercentage,
		&s.SoftLimitMinutes,
		&s.DailyLimitMinutes,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &s, nil
}

// SaveSettings upserts the user's preferences.
func (r *GamificationRepository) SaveSettings(ctx context.Context, settings *gamification.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	_, err := r.conn.Exec(ctx, `
		INSERT INTO gamification_settings (user_id, compassion_enabled, soft_reset_enabled, preserve_percentage, soft_limit_minutes, daily_limit_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			compassion_enabled = EXCLUDED.compassion_enabled,
			soft_reset_enabled = EXCLUDED.soft_reset_enabled,
			preserve_percentage = EXCLUDED.preserve_percentage,
			soft_limit_minutes = EXCLUDED.soft_limit_minutes,
			daily_limit_minutes = EXCLUDED.daily_limit_minutes
	`,
		settings.UserID,
		settings.CompassionEnabled,
		settings.SoftResetEnabled,
		settings.PreservePercentage,
		settings.SoftLimitMinutes,
		settings.DailyLimitMinutes,
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION TRACKING
// ══════════════════════════════════════════════════════════════════════════════

const sessionColumns = `id, user_id, session_start, session_end, breaks_taken`

// StartSession opens a usage session. The partial unique index on open
// sessions guarantees at most one per user.
func (r *GamificationRepository) StartSession(ctx context.Context, userID int64, startedAt time.Time) (*gamification.Session, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	row := r.conn.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO session_tracking (id, user_id, session_start)
		VALUES ($1, $2, $3)
		RETURNING %s
	`, sessionColumns), uuid.NewString(), userID, startedAt.UTC())

	session, err := scanSession(row)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, shared.ErrSessionAlreadyOpen
		}
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return session, nil
}

// EndSession closes the user's open session.
func (r *GamificationRepository) EndSession(ctx context.Context, userID int64, endedAt time.Time) (*gamification.Session, error) {
	row := r.conn.QueryRow(ctx, fmt.Sprintf(`
		UPDATE session_tracking
		SET session_end = $2
		WHERE user_id = $1 AND session_end IS NULL
		RETURNING %s
	`, sessionColumns), userID, endedAt.UTC())

	session, err := scanSession(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNoOpenSession
		}
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	return session, nil
}

// RecordBreak increments the break counter on the open session.
func (r *GamificationRepository) RecordBreak(ctx context.Context, userID int64) (*gamification.Session, error) {
	row := r.conn.QueryRow(ctx, fmt.Sprintf(`
		UPDATE session_tracking
		SET breaks_taken = breaks_taken + 1
		WHERE user_id = $1 AND session_end IS NULL
		RETURNING %s
	`, sessionColumns), userID)

	session, err := scanSession(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNoOpenSession
		}
		return nil, fmt.Errorf("failed to record break: %w", err)
	}
	return session, nil
}

// GetCurrentSession returns the user's open session.
func (r *GamificationRepository) GetCurrentSession(ctx context.Context, userID int64) (*gamification.Session, error) {
	row := r.conn.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s
		FROM session_tracking
		WHERE user_id = $1 AND session_end IS NULL
	`, sessionColumns), userID)

	session, err := scanSession(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNoOpenSession
		}
		return nil, fmt.Errorf("failed to get current session: %w", err)
	}
	return session, nil
}

func (r *GamificationRepository) getSessions(ctx context.Context, q Querier, userID int64) ([]*gamification.Session, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM session_tracking
		WHERE user_id = $1
		ORDER BY session_start DESC
	`, sessionColumns), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*gamification.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func scanSession(row rowScanner) (*gamification.Session, error) {
	var s gamification.Session
	err := row.Scan(&s.ID, &s.UserID, &s.SessionStart, &s.SessionEnd, &s.BreaksTaken)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
