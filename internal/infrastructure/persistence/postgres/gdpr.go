package postgres

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/blake2b"

	"github.com/noctua-health/noctua/internal/domain/gamification"
	"github.com/noctua-health/noctua/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DATA SUBJECT RIGHTS
// ══════════════════════════════════════════════════════════════════════════════

// piiMetadataKeys are the XP-transaction metadata keys that may carry
// personal data. Anonymization replaces their values with deterministic
// pseudonyms; every other key is engine-generated and stays.
var piiMetadataKeys = []string{
	"name",
	"display_name",
	"username",
	"note",
	"free_text",
	"diary_excerpt",
	"email",
}

// ExportUserData collects everything the engine stores about a user into
// one snapshot, read inside a single read-only transaction. Aggregates
// without rows export as empty slices; a missing state row exports as nil.
func (r *GamificationRepository) ExportUserData(ctx context.Context, userID int64) (*gamification.Export, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	export := &gamification.Export{
		ExportID:    uuid.NewString(),
		UserID:      userID,
		GeneratedAt: time.Now().UTC(),
	}

	err := r.conn.WithTx(ctx, ReadOnlyTxOptions(), func(tx pgx.Tx) error {
		state, err := r.getState(ctx, tx, userID, false)
		if err != nil && !shared.IsNotFound(err) {
			return err
		}
		export.State = state

		export.Transactions, err = r.getXPTransactionsTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		export.Achievements, err = r.getAchievements(ctx, tx, userID)
		if err != nil {
			return err
		}

		export.Streaks, err = r.getStreaksTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		export.Quests, err = r.getQuestsTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		export.Inventory, err = r.getInventory(ctx, tx, userID)
		if err != nil {
			return err
		}

		export.Equipped, err = r.getEquippedItems(ctx, tx, userID)
		if err != nil {
			return err
		}

		// Raw read on purpose: getSettings substitutes defaults for a
		// missing row, but an export must show what is stored, so no
		// row exports as null.
		export.Settings, err = r.getStoredSettings(ctx, tx, userID)
		if err != nil {
			return err
		}

		export.Sessions, err = r.getSessions(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return export, nil
}

// DeleteUserData erases every row keyed by the user in one transaction.
// Idempotent: deleting an unknown user succeeds and removes nothing.
func (r *GamificationRepository) DeleteUserData(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return shared.ErrInvalidUserID
	}

	tables := []string{
		"session_tracking",
		"gamification_settings",
		"equipped_items",
		"inventory_items",
		"user_quests",
		"streaks",
		"user_achievements",
		"xp_transactions",
		"gamification_states",
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, table := range tables {
			query := fmt.Sprintf("DELETE FROM %s WHERE user_id = $1", table)
			if _, err := tx.Exec(ctx, query, userID); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", table, err)
			}
		}
		return nil
	})
}

// AnonymizeUserData strips personal data while keeping the aggregate
// shape: the state row is soft-deleted, sessions are removed, and PII
// metadata values in the XP ledger are replaced with pseudonyms. The
// ledger itself survives so aggregate sums stay auditable. Idempotent.
func (r *GamificationRepository) AnonymizeUserData(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return shared.ErrInvalidUserID
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE gamification_states
			SET deleted_at = NOW(), updated_at = NOW()
			WHERE user_id = $1 AND deleted_at IS NULL
		`, userID)
		if err != nil {
			return fmt.Errorf("failed to mark state deleted: %w", err)
		}

		_, err = tx.Exec(ctx, `
			DELETE FROM session_tracking
			WHERE user_id = $1
		`, userID)
		if err != nil {
			return fmt.Errorf("failed to delete sessions: %w", err)
		}

		return r.redactLedgerMetadataTx(ctx, tx, userID)
	})
}

// redactLedgerMetadataTx rewrites PII metadata values in the user's XP
// ledger with pseudonyms.
func (r *GamificationRepository) redactLedgerMetadataTx(ctx context.Context, tx pgx.Tx, userID int64) error {
	rows, err := tx.Query(ctx, `
		SELECT id, metadata
		FROM xp_transactions
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to query ledger metadata: %w", err)
	}

	type redaction struct {
		id   string
		meta []byte
	}
	var redactions []redaction

	for rows.Next() {
		var id string
		var metaJSON []byte
		if err := rows.Scan(&id, &metaJSON); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan ledger metadata: %w", err)
		}

		redacted, changed, err := redactMetadata(metaJSON)
		if err != nil {
			rows.Close()
			return err
		}
		if changed {
			redactions = append(redactions, redaction{id: id, meta: redacted})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, red := range redactions {
		_, err := tx.Exec(ctx, `
			UPDATE xp_transactions
			SET metadata = $1
			WHERE id = $2
		`, red.meta, red.id)
		if err != nil {
			return fmt.Errorf("failed to redact ledger metadata: %w", err)
		}
	}
	return nil
}

// redactMetadata replaces the values of known PII keys with deterministic
// pseudonyms. The bool result reports whether anything changed, so the
// caller can skip rewriting clean rows.
func redactMetadata(metaJSON []byte) ([]byte, bool, error) {
	if len(metaJSON) == 0 {
		return metaJSON, false, nil
	}

	var meta map[string]interface{}
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal ledger metadata: %w", err)
	}

	changed := false
	for _, key := range piiMetadataKeys {
		value, ok := meta[key]
		if !ok {
			continue
		}
		meta[key] = pseudonym(fmt.Sprintf("%v", value))
		changed = true
	}
	if !changed {
		return metaJSON, false, nil
	}

	redacted, err := json.Marshal(meta)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal redacted metadata: %w", err)
	}
	return redacted, true, nil
}

// pseudonym maps a value to a short stable token. Equal inputs map to
// equal tokens, so redacted exports stay internally consistent without
// revealing the original.
func pseudonym(value string) string {
	sum := blake2b.Sum256([]byte(value))
	return "redacted:" + hex.EncodeToString(sum[:8])
}

// ─────────────────────────────────────────────────────────────────────────────
// Transaction-scoped list helpers for export
// ─────────────────────────────────────────────────────────────────────────────

func (r *GamificationRepository) getXPTransactionsTx(ctx context.Context, tx pgx.Tx, userID int64) ([]*gamification.XPTransaction, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, user_id, amount, source, metadata, occurred_at
		FROM xp_transactions
		WHERE user_id = $1
		ORDER BY occurred_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query xp transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]*gamification.XPTransaction, 0)
	for rows.Next() {
		txn, err := scanXPTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

func (r *GamificationRepository) getStreaksTx(ctx context.Context, tx pgx.Tx, userID int64) ([]*gamification.Streak, error) {
	rows, err := tx.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM streaks
		WHERE user_id = $1
		ORDER BY type
	`, streakColumns), userID)
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

func (r *GamificationRepository) getQuestsTx(ctx context.Context, tx pgx.Tx, userID int64) ([]*gamification.Quest, error) {
	rows, err := tx.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM user_quests
		WHERE user_id = $1
		ORDER BY started_at DESC
	`, questColumns), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query quests: %w", err)
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
