// Package gamification is the application-layer orchestrator of the engine:
// it sequences repository operations with the rules package and publishes
// domain events for the chat layer to turn into notifications.
package gamification

import (
	"fmt"

	"github.com/noctua-health/noctua/internal/domain/gamification"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIONS
// The fixed vocabulary of user-facing actions the chat layer can record.
// Each action maps to an XP source, a fixed XP amount, and optionally to a
// behaviour streak that the action advances.
// ══════════════════════════════════════════════════════════════════════════════

// Action names a user-facing activity that earns XP.
type Action string

const (
	ActionDailyCheckIn      Action = "daily_check_in"
	ActionDiaryEntry        Action = "diary_entry"
	ActionRelaxSession      Action = "relax_session"
	ActionWindDown          Action = "wind_down"
	ActionSleepLog          Action = "sleep_log"
	ActionBreathingExercise Action = "breathing_exercise"
)

// actionInfo describes the reward profile of an action.
type actionInfo struct {
	source gamification.XPSource
	xp     gamification.XP

	// streak, when non-empty, is the behaviour streak the action advances
	// alongside the XP award.
	streak gamification.StreakType
}

// CheckInBaseXP is the XP a daily check-in earns before the streak
// multiplier is applied.
const CheckInBaseXP gamification.XP = 50

var actions = map[Action]actionInfo{
	ActionDailyCheckIn:      {source: gamification.SourceDailyCheckIn, xp: CheckInBaseXP, streak: gamification.StreakDailyLogin},
	ActionDiaryEntry:        {source: gamification.SourceDiaryEntry, xp: 25},
	ActionRelaxSession:      {source: gamification.SourceRelaxSession, xp: 30},
	ActionWindDown:          {source: gamification.SourceWindDown, xp: 20, streak: gamification.StreakWindDown},
	ActionSleepLog:          {source: gamification.SourceSleepLog, xp: 30, streak: gamification.StreakSleepLog},
	ActionBreathingExercise: {source: gamification.SourceBreathingExercise, xp: 15},
}

// Validate reports whether the action is part of the vocabulary.
func (a Action) Validate() error {
	if _, ok := actions[a]; !ok {
		return fmt.Errorf("record_action: unknown action: %s", a)
	}
	return nil
}

// Actions returns the full action vocabulary in a stable order.
func Actions() []Action {
	return []Action{
		ActionDailyCheckIn,
		ActionDiaryEntry,
		ActionRelaxSession,
		ActionWindDown,
		ActionSleepLog,
		ActionBreathingExercise,
	}
}
