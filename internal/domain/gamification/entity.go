// Package gamification contains the aggregates of the engagement engine:
// per-user state, the XP ledger, streaks, quests, achievements, inventory,
// settings, and session telemetry. All entities are keyed by an opaque
// integer user ID supplied by the chat layer.
package gamification

import (
	"time"

	"github.com/noctua-health/noctua/internal/domain/shared"
)

// XP represents experience points. Monotonically increasing per user.
type XP int

// Level represents a user level derived from total XP.
type Level int

// ══════════════════════════════════════════════════════════════════════════════
// GAMIFICATION STATE
// ══════════════════════════════════════════════════════════════════════════════

// EngagementLevel is a coarse categorisation of how engaged a user is,
// used by the chat layer to tune message frequency.
type EngagementLevel string

const (
	EngagementNew     EngagementLevel = "new"
	EngagementCasual  EngagementLevel = "casual"
	EngagementRegular EngagementLevel = "regular"
	EngagementDevoted EngagementLevel = "devoted"
)

// State is the per-user gamification aggregate root. CurrentLevel is always
// the level implied by TotalXP via the leveling curve; the two are written
// together and never stored out of sync.
type State struct {
	UserID          int64
	TotalXP         XP
	CurrentLevel    Level
	EngagementLevel EngagementLevel

	// TotalDaysActive counts distinct calendar days with at least one
	// check-in. It feeds the evolution-stage lookup and never decreases.
	TotalDaysActive int

	// DeletedAt marks an anonymized state. Reads treat the row as absent.
	DeletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewState creates the initial state for a user: level 1 with zero XP.
func NewState(userID int64) *State {
	now := time.Now().UTC()
	return &State{
		UserID:          userID,
		TotalXP:         0,
		CurrentLevel:    1,
		EngagementLevel: EngagementNew,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Validate checks state invariants.
func (s *State) Validate() error {
	if s.UserID <= 0 {
		return shared.ErrInvalidUserID
	}
	if s.TotalXP < 0 {
		return shared.WrapError("gamification", "Validate", shared.ErrNegativeValue, "total XP cannot be negative", nil)
	}
	if s.CurrentLevel < 1 {
		return shared.WrapError("gamification", "Validate", shared.ErrValueOutOfRange, "level floor is 1", nil)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// XP LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// XPSource identifies what earned the XP.
type XPSource string

const (
	SourceDailyCheckIn      XPSource = "daily_check_in"
	SourceDiaryEntry        XPSource = "diary_entry"
	SourceRelaxSession      XPSource = "relax_session"
	SourceWindDown          XPSource = "wind_down"
	SourceSleepLog          XPSource = "sleep_log"
	SourceBreathingExercise XPSource = "breathing_exercise"
	SourceQuestReward       XPSource = "quest_reward"
)

// XPTransaction is one append-only ledger row. For every user the ledger
// sums to the state's TotalXP.
type XPTransaction struct {
	ID         string
	UserID     int64
	Amount     XP
	Source     XPSource
	Metadata   map[string]interface{}
	OccurredAt time.Time
}

// XPResult is returned by AddXP.
type XPResult struct {
	NewTotalXP    XP
	PreviousLevel Level
	NewLevel      Level
	LeveledUp     bool
	Transaction   *XPTransaction
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// Achievement is a per-user badge row with optional progress tracking.
// UnlockedAt is set exactly once, the first time progress reaches 100,
// and is never unset afterwards.
type Achievement struct {
	UserID        int64
	AchievementID string
	Progress      int // 0..100
	UnlockedAt    *time.Time
	Notified      bool
}

// Unlocked reports whether the badge has been unlocked.
func (a *Achievement) Unlocked() bool {
	return a.UnlockedAt != nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAKS
// ══════════════════════════════════════════════════════════════════════════════

// StreakType names a consecutive-activity counter.
type StreakType string

const (
	StreakDailyLogin StreakType = "daily_login"
	StreakSleepLog   StreakType = "sleep_log"
	StreakWindDown   StreakType = "wind_down"
)

// Streak tracks consecutive activity for one behaviour. LongestCount never
// drops below CurrentCount. Freezing protects the streak from scheduler
// decay across a planned absence; it does not block increments.
type Streak struct {
	UserID       int64
	Type         StreakType
	CurrentCount int
	LongestCount int
	Frozen       bool
	FrozenUntil  *time.Time
	Multiplier   float64

	// LastActiveDate is the UTC calendar day of the most recent increment.
	// It drives same-day check-in dedup and the decay job.
	LastActiveDate *time.Time
}

// NewStreak creates a zero streak for the given behaviour.
func NewStreak(userID int64, streakType StreakType) *Streak {
	return &Streak{
		UserID:       userID,
		Type:         streakType,
		CurrentCount: 0,
		LongestCount: 0,
		Multiplier:   1.0,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// QUESTS
// ══════════════════════════════════════════════════════════════════════════════

// QuestStatus is the lifecycle state of a user quest instance.
type QuestStatus string

const (
	QuestActive    QuestStatus = "active"
	QuestCompleted QuestStatus = "completed"
	QuestExpired   QuestStatus = "expired"
)

// MaxActiveQuests is the per-user capacity for simultaneously active quests.
const MaxActiveQuests = 3

// QuestProgress tracks progress towards a quest objective.
type QuestProgress struct {
	CurrentValue int `json:"current_value"`
	TargetValue  int `json:"target_value"`
}

// Quest is a user's instance of a quest. Completed and expired are terminal.
type Quest struct {
	UserID      int64
	QuestID     string
	Status      QuestStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Progress    QuestProgress
}

// Terminal reports whether the quest reached a terminal status.
func (q *Quest) Terminal() bool {
	return q.Status == QuestCompleted || q.Status == QuestExpired
}

// ══════════════════════════════════════════════════════════════════════════════
// INVENTORY AND EQUIPPED ITEMS
// ══════════════════════════════════════════════════════════════════════════════

// InventoryItem is a stack of a cosmetic reward. Quantity is always
// positive; the row is removed once it reaches zero.
type InventoryItem struct {
	UserID   int64
	RewardID string
	Quantity int
}

// EquippedItems holds the single equipped cosmetic per category.
type EquippedItems struct {
	UserID        int64
	EquippedBadge *string
	EquippedTitle *string
}

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS
// ══════════════════════════════════════════════════════════════════════════════

// Settings are per-user engine preferences. DefaultSettings applies when no
// row exists.
type Settings struct {
	UserID             int64
	CompassionEnabled  bool
	SoftResetEnabled   bool
	PreservePercentage float64
	SoftLimitMinutes   int
	DailyLimitMinutes  int
}

// DefaultSettings returns the creation defaults for a user without a row.
func DefaultSettings(userID int64) *Settings {
	return &Settings{
		UserID:             userID,
		CompassionEnabled:  true,
		SoftResetEnabled:   true,
		PreservePercentage: 0.5,
		SoftLimitMinutes:   30,
		DailyLimitMinutes:  120,
	}
}

// Validate checks settings bounds.
func (s *Settings) Validate() error {
	if s.UserID <= 0 {
		return shared.ErrInvalidUserID
	}
	if s.PreservePercentage < 0 || s.PreservePercentage >= 1 {
		return shared.WrapError("settings", "Validate", shared.ErrValueOutOfRange, "preserve percentage must be in [0, 1)", nil)
	}
	if s.SoftLimitMinutes < 0 || s.DailyLimitMinutes < 0 {
		return shared.WrapError("settings", "Validate", shared.ErrNegativeValue, "limits cannot be negative", nil)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION TRACKING
// ══════════════════════════════════════════════════════════════════════════════

// Session is one usage session. At most one row per user has a nil
// SessionEnd (the "current" session).
type Session struct {
	ID           string
	UserID       int64
	SessionStart time.Time
	SessionEnd   *time.Time
	BreaksTaken  int
}

// Open reports whether the session is still running.
func (s *Session) Open() bool {
	return s.SessionEnd == nil
}

// Duration returns the session length, using now for open sessions.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.SessionEnd != nil {
		return s.SessionEnd.Sub(s.SessionStart)
	}
	return now.Sub(s.SessionStart)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITE RESULTS
// ══════════════════════════════════════════════════════════════════════════════

// CheckInResult is returned by RecordDailyCheckIn.
type CheckInResult struct {
	Streak           *Streak
	XPEarned         XP
	TotalXP          XP
	LeveledUp        bool
	NewLevel         Level
	AwardedBadges    []*Achievement
	AlreadyCheckedIn bool
}

// QuestCompletionResult is returned by AwardQuestCompletion.
type QuestCompletionResult struct {
	Quest         *Quest
	XPTransaction *XPTransaction
	NewTotalXP    XP
	LeveledUp     bool
	NewLevel      Level
	Badge         *Achievement
}

// Export is the full GDPR data export for one user. Aggregates without rows
// are empty slices; a missing state or settings row is nil.
type Export struct {
	ExportID     string           `json:"export_id"`
	UserID       int64            `json:"user_id"`
	GeneratedAt  time.Time        `json:"generated_at"`
	State        *State           `json:"state"`
	Transactions []*XPTransaction `json:"xp_transactions"`
	Achievements []*Achievement   `json:"achievements"`
	Streaks      []*Streak        `json:"streaks"`
	Quests       []*Quest         `json:"quests"`
	Inventory    []*InventoryItem `json:"inventory"`
	Equipped     *EquippedItems   `json:"equipped_items"`
	Settings     *Settings        `json:"settings"`
	Sessions     []*Session       `json:"sessions"`
}
