package gamification

import (
	"github.com/noctua-health/noctua/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// XPEarnedEvent is emitted once per XP transaction.
type XPEarnedEvent struct {
	shared.BaseEvent
	Amount   XP       `json:"amount"`
	NewTotal XP       `json:"new_total"`
	Source   XPSource `json:"source"`
}

// Payload implements shared.Event.
func (e XPEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"amount":    int(e.Amount),
		"new_total": int(e.NewTotal),
		"source":    string(e.Source),
	}
}

// NewXPEarnedEvent creates a new XPEarnedEvent.
func NewXPEarnedEvent(userID int64, amount, newTotal XP, source XPSource) XPEarnedEvent {
	return XPEarnedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventXPEarned, userID),
		Amount:    amount,
		NewTotal:  newTotal,
		Source:    source,
	}
}

// LevelUpEvent is emitted when total XP crosses a level threshold.
type LevelUpEvent struct {
	shared.BaseEvent
	PreviousLevel Level `json:"previous_level"`
	NewLevel      Level `json:"new_level"`
	TotalXP       XP    `json:"total_xp"`
}

// Payload implements shared.Event.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous_level": int(e.PreviousLevel),
		"new_level":      int(e.NewLevel),
		"total_xp":       int(e.TotalXP),
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID int64, previous, current Level, totalXP XP) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventLevelUp, userID),
		PreviousLevel: previous,
		NewLevel:      current,
		TotalXP:       totalXP,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEST EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// QuestStartedEvent is emitted when a quest becomes active.
type QuestStartedEvent struct {
	shared.BaseEvent
	QuestID     string `json:"quest_id"`
	TargetValue int    `json:"target_value"`
}

// Payload implements shared.Event.
func (e QuestStartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"quest_id":     e.QuestID,
		"target_value": e.TargetValue,
	}
}

// NewQuestStartedEvent creates a new QuestStartedEvent.
func NewQuestStartedEvent(userID int64, questID string, targetValue int) QuestStartedEvent {
	return QuestStartedEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventQuestStarted, userID),
		QuestID:     questID,
		TargetValue: targetValue,
	}
}

// QuestCompletedEvent is emitted once per quest completion.
type QuestCompletedEvent struct {
	shared.BaseEvent
	QuestID  string `json:"quest_id"`
	XPReward XP     `json:"xp_reward"`
}

// Payload implements shared.Event.
func (e QuestCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"quest_id":  e.QuestID,
		"xp_reward": int(e.XPReward),
	}
}

// NewQuestCompletedEvent creates a new QuestCompletedEvent.
func NewQuestCompletedEvent(userID int64, questID string, xpReward XP) QuestCompletedEvent {
	return QuestCompletedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventQuestCompleted, userID),
		QuestID:   questID,
		XPReward:  xpReward,
	}
}

// QuestExpiredEvent is emitted when the expiry job times out a quest.
type QuestExpiredEvent struct {
	shared.BaseEvent
	QuestID string `json:"quest_id"`
}

// Payload implements shared.Event.
func (e QuestExpiredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"quest_id": e.QuestID,
	}
}

// NewQuestExpiredEvent creates a new QuestExpiredEvent.
func NewQuestExpiredEvent(userID int64, questID string) QuestExpiredEvent {
	return QuestExpiredEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventQuestExpired, userID),
		QuestID:   questID,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted once per badge unlock.
type AchievementUnlockedEvent struct {
	shared.BaseEvent
	AchievementID string `json:"achievement_id"`
}

// Payload implements shared.Event.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"achievement_id": e.AchievementID,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID int64, achievementID string) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventAchievementUnlocked, userID),
		AchievementID: achievementID,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// StreakUpdatedEvent is emitted whenever a streak counter changes.
type StreakUpdatedEvent struct {
	shared.BaseEvent
	StreakType   StreakType `json:"streak_type"`
	CurrentCount int        `json:"current_count"`
	LongestCount int        `json:"longest_count"`
	Multiplier   float64    `json:"multiplier"`
}

// Payload implements shared.Event.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"streak_type":   string(e.StreakType),
		"current_count": e.CurrentCount,
		"longest_count": e.LongestCount,
		"multiplier":    e.Multiplier,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(userID int64, s *Streak) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent:    shared.NewBaseEvent(shared.EventStreakUpdated, userID),
		StreakType:   s.Type,
		CurrentCount: s.CurrentCount,
		LongestCount: s.LongestCount,
		Multiplier:   s.Multiplier,
	}
}

// StreakBrokenEvent is emitted by the decay job when a streak resets.
type StreakBrokenEvent struct {
	shared.BaseEvent
	StreakType    StreakType `json:"streak_type"`
	PreviousCount int        `json:"previous_count"`
	NewCount      int        `json:"new_count"`
	SoftReset     bool       `json:"soft_reset"`
}

// Payload implements shared.Event.
func (e StreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"streak_type":    string(e.StreakType),
		"previous_count": e.PreviousCount,
		"new_count":      e.NewCount,
		"soft_reset":     e.SoftReset,
	}
}

// NewStreakBrokenEvent creates a new StreakBrokenEvent.
func NewStreakBrokenEvent(userID int64, streakType StreakType, previous, current int, soft bool) StreakBrokenEvent {
	return StreakBrokenEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventStreakBroken, userID),
		StreakType:    streakType,
		PreviousCount: previous,
		NewCount:      current,
		SoftReset:     soft,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EVOLUTION EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// EvolutionStageChangedEvent is emitted when cumulative active days cross a
// stage threshold. Stages never regress, so PreviousStage < NewStage.
type EvolutionStageChangedEvent struct {
	shared.BaseEvent
	PreviousStage   string `json:"previous_stage"`
	NewStage        string `json:"new_stage"`
	TotalDaysActive int    `json:"total_days_active"`
}

// Payload implements shared.Event.
func (e EvolutionStageChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous_stage":    e.PreviousStage,
		"new_stage":         e.NewStage,
		"total_days_active": e.TotalDaysActive,
	}
}

// NewEvolutionStageChangedEvent creates a new EvolutionStageChangedEvent.
func NewEvolutionStageChangedEvent(userID int64, previous, current string, totalDays int) EvolutionStageChangedEvent {
	return EvolutionStageChangedEvent{
		BaseEvent:       shared.NewBaseEvent(shared.EventEvolutionStageChanged, userID),
		PreviousStage:   previous,
		NewStage:        current,
		TotalDaysActive: totalDays,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DATA SUBJECT EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// UserDataDeletedEvent is emitted after a full erasure completes.
type UserDataDeletedEvent struct {
	shared.BaseEvent
}

// Payload implements shared.Event.
func (e UserDataDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{}
}

// NewUserDataDeletedEvent creates a new UserDataDeletedEvent.
func NewUserDataDeletedEvent(userID int64) UserDataDeletedEvent {
	return UserDataDeletedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventUserDataDeleted, userID),
	}
}

// UserDataAnonymizedEvent is emitted after anonymization completes.
type UserDataAnonymizedEvent struct {
	shared.BaseEvent
}

// Payload implements shared.Event.
func (e UserDataAnonymizedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{}
}

// NewUserDataAnonymizedEvent creates a new UserDataAnonymizedEvent.
func NewUserDataAnonymizedEvent(userID int64) UserDataAnonymizedEvent {
	return UserDataAnonymizedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventUserDataAnonymized, userID),
	}
}
