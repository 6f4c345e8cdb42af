// Package postgres implements the relational store of the Noctua
// gamification engine.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CORE GAMIFICATION
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Core gamification aggregates
-- Version: 001

-- One state row per user. current_level is always the level implied by
-- total_xp; the two are written in the same statement. deleted_at marks an
-- anonymized user whose state reads as absent.
CREATE TABLE IF NOT EXISTS gamification_states (
    user_id BIGINT PRIMARY KEY,
    total_xp INTEGER NOT NULL DEFAULT 0,
    current_level INTEGER NOT NULL DEFAULT 1,
    engagement_level VARCHAR(20) NOT NULL DEFAULT 'new',
    total_days_active INTEGER NOT NULL DEFAULT 0,
    deleted_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total_xp CHECK (total_xp >= 0),
    CONSTRAINT valid_level CHECK (current_level >= 1),
    CONSTRAINT valid_days_active CHECK (total_days_active >= 0),
    CONSTRAINT valid_engagement CHECK (engagement_level IN ('new', 'casual', 'regular', 'devoted'))
);

-- Append-only XP ledger. For every user SUM(amount) equals the state row's
-- total_xp.
CREATE TABLE IF NOT EXISTS xp_transactions (
    id UUID PRIMARY KEY,
    user_id BIGINT NOT NULL,
    amount INTEGER NOT NULL,
    source VARCHAR(50) NOT NULL,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT positive_amount CHECK (amount > 0)
);

CREATE INDEX IF NOT EXISTS idx_xp_transactions_user ON xp_transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_xp_transactions_user_at ON xp_transactions(user_id, occurred_at DESC);

-- Per-user badges with optional progress. unlocked_at is set exactly once.
CREATE TABLE IF NOT EXISTS user_achievements (
    user_id BIGINT NOT NULL,
    achievement_id VARCHAR(100) NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    unlocked_at TIMESTAMP WITH TIME ZONE,
    notified BOOLEAN NOT NULL DEFAULT FALSE,

    PRIMARY KEY (user_id, achievement_id),
    CONSTRAINT valid_progress CHECK (progress >= 0 AND progress <= 100)
);

CREATE INDEX IF NOT EXISTS idx_user_achievements_unnotified
    ON user_achievements(user_id) WHERE unlocked_at IS NOT NULL AND NOT notified;

-- Consecutive-activity counters. longest_count never drops below
-- current_count. last_active_date drives same-day dedup and decay.
CREATE TABLE IF NOT EXISTS streaks (
    user_id BIGINT NOT NULL,
    type VARCHAR(30) NOT NULL,
    current_count INTEGER NOT NULL DEFAULT 0,
    longest_count INTEGER NOT NULL DEFAULT 0,
    frozen BOOLEAN NOT NULL DEFAULT FALSE,
    frozen_until TIMESTAMP WITH TIME ZONE,
    multiplier DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    last_active_date DATE,

    PRIMARY KEY (user_id, type),
    CONSTRAINT valid_counts CHECK (current_count >= 0 AND longest_count >= current_count)
);
`

const migration001Down = `
DROP TABLE IF EXISTS streaks;
DROP TABLE IF EXISTS user_achievements;
DROP TABLE IF EXISTS xp_transactions;
DROP TABLE IF EXISTS gamification_states;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: QUESTS, INVENTORY, EQUIPMENT
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Quest lifecycle, inventory, equipped cosmetics
-- Version: 002

-- User quest instances. active -> completed | expired, terminal states
-- final. At most three active rows per user, enforced at start time.
CREATE TABLE IF NOT EXISTS user_quests (
    user_id BIGINT NOT NULL,
    quest_id VARCHAR(100) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMP WITH TIME ZONE,
    current_value INTEGER NOT NULL DEFAULT 0,
    target_value INTEGER NOT NULL DEFAULT 1,

    PRIMARY KEY (user_id, quest_id),
    CONSTRAINT valid_quest_status CHECK (status IN ('active', 'completed', 'expired')),
    CONSTRAINT valid_target CHECK (target_value > 0)
);

CREATE INDEX IF NOT EXISTS idx_user_quests_active
    ON user_quests(user_id) WHERE status = 'active';

-- Cosmetic reward stacks. Rows with zero quantity are deleted, never kept.
CREATE TABLE IF NOT EXISTS inventory_items (
    user_id BIGINT NOT NULL,
    reward_id VARCHAR(100) NOT NULL,
    quantity INTEGER NOT NULL,

    PRIMARY KEY (user_id, reward_id),
    CONSTRAINT positive_quantity CHECK (quantity > 0)
);

-- Single equipped cosmetic per category.
CREATE TABLE IF NOT EXISTS equipped_items (
    user_id BIGINT PRIMARY KEY,
    equipped_badge VARCHAR(100),
    equipped_title VARCHAR(100)
);
`

const migration002Down = `
DROP TABLE IF EXISTS equipped_items;
DROP TABLE IF EXISTS inventory_items;
DROP TABLE IF EXISTS user_quests;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: SETTINGS AND SESSION TELEMETRY
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Per-user settings and session tracking
-- Version: 003

-- Engine preferences. Absence of a row means the documented defaults
-- (compassion on, soft reset on, preserve 0.5).
CREATE TABLE IF NOT EXISTS gamification_settings (
    user_id BIGINT PRIMARY KEY,
    compassion_enabled BOOLEAN NOT NULL DEFAULT TRUE,
    soft_reset_enabled BOOLEAN NOT NULL DEFAULT TRUE,
    preserve_percentage DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    soft_limit_minutes INTEGER NOT NULL DEFAULT 30,
    daily_limit_minutes INTEGER NOT NULL DEFAULT 120,

    CONSTRAINT valid_preserve CHECK (preserve_percentage >= 0 AND preserve_percentage < 1),
    CONSTRAINT valid_limits CHECK (soft_limit_minutes >= 0 AND daily_limit_minutes >= 0)
);

-- Usage sessions. The partial unique index enforces at most one open
-- session per user.
CREATE TABLE IF NOT EXISTS session_tracking (
    id UUID PRIMARY KEY,
    user_id BIGINT NOT NULL,
    session_start TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    session_end TIMESTAMP WITH TIME ZONE,
    breaks_taken INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT valid_breaks CHECK (breaks_taken >= 0)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_session_tracking_open
    ON session_tracking(user_id) WHERE session_end IS NULL;
CREATE INDEX IF NOT EXISTS idx_session_tracking_user ON session_tracking(user_id, session_start DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS session_tracking;
DROP TABLE IF EXISTS gamification_settings;
`

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "core_gamification",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "quests_inventory_equipment",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "settings_sessions",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}
