package gamification

import (
	"context"
	"time"
)

// Profile is the snapshot of a user's updated aggregates that badge-criteria
// evaluation runs against. It is assembled inside the same unit of work that
// produced the update, so criteria always see consistent values.
type Profile struct {
	UserID          int64
	TotalXP         XP
	CurrentLevel    Level
	TotalDaysActive int
	StreakCounts    map[StreakType]int
	CompletedQuests int
	Unlocked        map[string]bool
}

// BadgeEvaluator returns the IDs of badges whose criteria the profile newly
// satisfies. Implementations are pure functions (see internal/domain/rules);
// the repository calls the evaluator inside composite transactions so badge
// awards commit atomically with the update that triggered them.
type BadgeEvaluator func(p Profile) []string

// Repository is the typed persistence facade of the gamification engine:
// one method per read/write operation, plus the composite and GDPR
// operations. Every composite operation runs in a single unit of work; a
// failure in any sub-step leaves no partial effects visible.
type Repository interface {
	// ── State and XP ledger ──────────────────────────────────────────────

	// GetState returns the state row, or shared.ErrNotFound if the row is
	// absent or soft-deleted.
	GetState(ctx context.Context, userID int64) (*State, error)

	// SaveState upserts the state row.
	SaveState(ctx context.Context, state *State) error

	// AddXP appends a ledger row and updates TotalXP/CurrentLevel in the
	// same unit of work. Amount must be positive. Levels are derived from
	// the leveling curve so the stored pair never drifts apart.
	AddXP(ctx context.Context, userID int64, amount XP, source XPSource, metadata map[string]interface{}) (*XPResult, error)

	// GetXPTransactions returns the ledger, newest first.
	GetXPTransactions(ctx context.Context, userID int64, limit int) ([]*XPTransaction, error)

	// ── Achievements ─────────────────────────────────────────────────────

	GetAchievement(ctx context.Context, userID int64, achievementID string) (*Achievement, error)
	GetAchievements(ctx context.Context, userID int64) ([]*Achievement, error)

	// UnlockAchievement idempotently sets progress=100 and fixes UnlockedAt
	// at first unlock. Repeat calls return the existing record.
	UnlockAchievement(ctx context.Context, userID int64, achievementID string) (*Achievement, error)

	// UpdateAchievementProgress clamps progress to [0,100], upserts the
	// row, and auto-unlocks the instant progress reaches 100.
	UpdateAchievementProgress(ctx context.Context, userID int64, achievementID string, progress int) (*Achievement, error)

	MarkAchievementNotified(ctx context.Context, userID int64, achievementID string) error
	GetUnnotifiedAchievements(ctx context.Context, userID int64) ([]*Achievement, error)

	// ── Streaks ──────────────────────────────────────────────────────────

	// GetStreak returns the streak row, creating a zero streak view (not a
	// row) when none exists.
	GetStreak(ctx context.Context, userID int64, streakType StreakType) (*Streak, error)
	GetStreaks(ctx context.Context, userID int64) ([]*Streak, error)

	// IncrementStreak raises the count by one and maintains the longest
	// count and multiplier. Increments are never blocked by freezing.
	IncrementStreak(ctx context.Context, userID int64, streakType StreakType, activeDate time.Time) (*Streak, error)

	// ResetStreak applies a hard (count=0) or soft (count*preserve) reset.
	// The preserve percentage comes from the user's settings.
	ResetStreak(ctx context.Context, userID int64, streakType StreakType, soft bool) (*Streak, error)

	FreezeStreak(ctx context.Context, userID int64, streakType StreakType, until time.Time) (*Streak, error)
	UnfreezeStreak(ctx context.Context, userID int64, streakType StreakType) (*Streak, error)

	// ── Quests ───────────────────────────────────────────────────────────

	// StartQuest creates an active quest instance. Returns
	// shared.ErrCapacityExceeded at the active-quest cap and
	// shared.ErrAlreadyExists when the quest is already active or
	// completed for this user; neither failure mutates existing quests.
	StartQuest(ctx context.Context, userID int64, questID string, targetValue int) (*Quest, error)

	// UpdateQuestProgress merges partial progress without changing status.
	UpdateQuestProgress(ctx context.Context, userID int64, questID string, progress QuestProgress) (*Quest, error)

	// CompleteQuest and ExpireQuest set the terminal status. Both are
	// idempotent: a second call returns the existing terminal record.
	CompleteQuest(ctx context.Context, userID int64, questID string) (*Quest, error)
	ExpireQuest(ctx context.Context, userID int64, questID string) (*Quest, error)

	GetQuest(ctx context.Context, userID int64, questID string) (*Quest, error)
	GetActiveQuests(ctx context.Context, userID int64) ([]*Quest, error)
	GetCompletedQuestCount(ctx context.Context, userID int64) (int, error)

	// ── Inventory and equipped items ─────────────────────────────────────

	AddInventoryItem(ctx context.Context, userID int64, rewardID string, quantity int) (*InventoryItem, error)

	// ConsumeInventoryItem decrements quantity and deletes the row when it
	// reaches zero. Zero-quantity rows never persist.
	ConsumeInventoryItem(ctx context.Context, userID int64, rewardID string, quantity int) error

	GetInventory(ctx context.Context, userID int64) ([]*InventoryItem, error)

	GetEquippedItems(ctx context.Context, userID int64) (*EquippedItems, error)
	EquipBadge(ctx context.Context, userID int64, badgeID string) (*EquippedItems, error)
	EquipTitle(ctx context.Context, userID int64, titleID string) (*EquippedItems, error)

	// ── Settings ─────────────────────────────────────────────────────────

	// GetSettings returns stored settings or the documented defaults when
	// no row exists.
	GetSettings(ctx context.Context, userID int64) (*Settings, error)
	SaveSettings(ctx context.Context, settings *Settings) error

	// ── Session tracking ─────────────────────────────────────────────────

	StartSession(ctx context.Context, userID int64, startedAt time.Time) (*Session, error)
	EndSession(ctx context.Context, userID int64, endedAt time.Time) (*Session, error)
	RecordBreak(ctx context.Context, userID int64) (*Session, error)
	GetCurrentSession(ctx context.Context, userID int64) (*Session, error)

	// ── Composite atomic operations ──────────────────────────────────────

	// AwardQuestCompletion completes the quest, awards XP, and unlocks the
	// optional badge in one transaction. Either all sub-effects are
	// visible afterwards or none are.
	AwardQuestCompletion(ctx context.Context, userID int64, questID string, xpAmount XP, badgeID string) (*QuestCompletionResult, error)

	// RecordDailyCheckIn increments the daily_login streak, bumps the
	// active-day counter, awards check-in XP, and evaluates badge criteria
	// against the updated profile, all in one transaction. A second call
	// on the same UTC calendar day is a no-op returning the current streak
	// with AlreadyCheckedIn set.
	RecordDailyCheckIn(ctx context.Context, userID int64, baseXP XP, evaluate BadgeEvaluator) (*CheckInResult, error)

	// ── GDPR data lifecycle ──────────────────────────────────────────────

	// ExportUserData aggregates every table for the user. Aggregates with
	// no rows export as empty slices, missing state/settings as nil.
	ExportUserData(ctx context.Context, userID int64) (*Export, error)

	// DeleteUserData removes every row for the user in one transaction.
	// Idempotent: deleting an absent user succeeds.
	DeleteUserData(ctx context.Context, userID int64) error

	// AnonymizeUserData soft-deletes the state, removes session rows, and
	// redacts identifying metadata from the retained XP ledger. Idempotent.
	AnonymizeUserData(ctx context.Context, userID int64) error
}
