package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noctua-health/noctua/internal/domain/gamification"
	"github.com/noctua-health/noctua/internal/domain/rules"
	"github.com/noctua-health/noctua/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GAMIFICATION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// GamificationRepository implements gamification.Repository for PostgreSQL.
// It is the transaction boundary of the engine: every composite operation
// runs inside a single WithTx unit of work, and the per-aggregate methods
// are written against Querier so the same SQL serves both paths.
type GamificationRepository struct {
	conn *Connection
}

// NewGamificationRepository creates a new GamificationRepository.
func NewGamificationRepository(conn *Connection) *GamificationRepository {
	return &GamificationRepository{conn: conn}
}

// Compile-time interface check.
var _ gamification.Repository = (*GamificationRepository)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// State
// ─────────────────────────────────────────────────────────────────────────────

const stateColumns = `user_id, total_xp, current_level, engagement_level, total_days_active, deleted_at, created_at, updated_at`

// GetState returns the state row. Soft-deleted (anonymized) rows read as
// absent.
func (r *GamificationRepository) GetState(ctx context.Context, userID int64) (*gamification.State, error) {
	return r.getState(ctx, r.conn, userID, false)
}

func (r *GamificationRepository) getState(ctx context.Context, q Querier, userID int64, forUpdate bool) (*gamification.State, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM gamification_states
		WHERE user_id = $1 AND deleted_at IS NULL
	`, stateColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}

	row := q.QueryRow(ctx, query, userID)
	state, err := scanState(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to get state: %w", err)
	}
	return state, nil
}

// SaveState upserts the state row.
func (r *GamificationRepository) SaveState(ctx context.Context, state *gamification.State) error {
	if err := state.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO gamification_states (user_id, total_xp, current_level, engagement_level, total_days_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_xp = EXCLUDED.total_xp,
			current_level = EXCLUDED.current_level,
			engagement_level = EXCLUDED.engagement_level,
			total_days_active = EXCLUDED.total_days_active,
			updated_at = NOW()
	`

	_, err := r.conn.Exec(ctx, query,
		state.UserID,
		int(state.TotalXP),
		int(state.CurrentLevel),
		string(state.EngagementLevel),
		state.TotalDaysActive,
	)
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// ensureStateTx lazily creates the level-1 state row and returns it locked
// for the remainder of the transaction.
func (r *GamificationRepository) ensureStateTx(ctx context.Context, tx pgx.Tx, userID int64) (*gamification.State, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO gamification_states (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure state: %w", err)
	}

	return r.getState(ctx, tx, userID, true)
}

// ─────────────────────────────────────────────────────────────────────────────
// XP ledger
// ─────────────────────────────────────────────────────────────────────────────

// AddXP appends a ledger row and updates total XP and level in one unit of
// work. The new level is derived from the curve so the stored pair can
// never drift apart.
func (r *GamificationRepository) AddXP(ctx context.Context, userID int64, amount gamification.XP, source gamification.XPSource, metadata map[string]interface{}) (*gamification.XPResult, error) {
	var result *gamification.XPResult

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var err error
		result, err = r.addXPTx(ctx, tx, userID, amount, source, metadata)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// addXPTx is the transaction-scoped body of AddXP, reused by composite
// operations.
func (r *GamificationRepository) addXPTx(ctx context.Context, tx pgx.Tx, userID int64, amount gamification.XP, source gamification.XPSource, metadata map[string]interface{}) (*gamification.XPResult, error) {
	if amount <= 0 {
		return nil, shared.ErrNonPositiveXP
	}

	// Earning XP is what brings a state row into existence, so the first
	// action of a brand-new user creates it here.
	state, err := r.ensureStateTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	previousLevel := state.CurrentLevel
	newTotal := state.TotalXP + amount
	newLevel := rules.LevelForXP(newTotal)

	txn := &gamification.XPTransaction{
		ID:         uuid.NewString(),
		UserID:     userID,
		Amount:     amount,
		Source:     source,
		Metadata:   metadata,
		OccurredAt: time.Now().UTC(),
	}

	metaJSON, err := json.Marshal(txn.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if txn.Metadata == nil {
		metaJSON = []byte("{}")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO xp_transactions (id, user_id, amount, source, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, txn.ID, userID, int(amount), string(source), metaJSON, txn.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append xp transaction: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE gamification_states
		SET total_xp = $1, current_level = $2, engagement_level = $3, updated_at = NOW()
		WHERE user_id = $4
	`, int(newTotal), int(newLevel), string(rules.EngagementFor(newLevel)), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update state xp: %w", err)
	}

	return &gamification.XPResult{
		NewTotalXP:    newTotal,
		PreviousLevel: previousLevel,
		NewLevel:      newLevel,
		LeveledUp:     newLevel > previousLevel,
		Transaction:   txn,
	}, nil
}

// GetXPTransactions returns the ledger, newest first. A non-positive limit
// returns the full ledger.
func (r *GamificationRepository) GetXPTransactions(ctx context.Context, userID int64, limit int) ([]*gamification.XPTransaction, error) {
	query := `
		SELECT id, user_id, amount, source, metadata, occurred_at
		FROM xp_transactions
		WHERE user_id = $1
		ORDER BY occurred_at DESC
	`
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.conn.Query(ctx, query, args...)
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

// ─────────────────────────────────────────────────────────────────────────────
// Row scanning
// ─────────────────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanState(row rowScanner) (*gamification.State, error) {
	var s gamification.State
	var totalXP, level int
	var engagement string

	err := row.Scan(
		&s.UserID,
		&totalXP,
		&level,
		&engagement,
		&s.TotalDaysActive,
		&s.DeletedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.TotalXP = gamification.XP(totalXP)
	s.CurrentLevel = gamification.Level(level)
	s.EngagementLevel = gamification.EngagementLevel(engagement)
	return &s, nil
}

func scanXPTransaction(row rowScanner) (*gamification.XPTransaction, error) {
	var t gamification.XPTransaction
	var amount int
	var source string
	var metaJSON []byte

	err := row.Scan(&t.ID, &t.UserID, &amount, &source, &metaJSON, &t.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan xp transaction: %w", err)
	}

	t.Amount = gamification.XP(amount)
	t.Source = gamification.XPSource(source)
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &t.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &t, nil
}
