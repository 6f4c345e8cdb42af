package rules

import (
	"github.com/noctua-health/noctua/internal/domain/gamification"
)

// Badge identifiers awarded by criteria evaluation. The chat layer owns the
// display names and artwork; the engine only deals in these IDs.
const (
	BadgeFirstCheckIn = "first_check_in"
	BadgeStreak3      = "streak_3_days"
	BadgeStreak7      = "streak_7_days"
	BadgeStreak30     = "streak_30_days"
	BadgeStreak100    = "streak_100_days"
	BadgeLevel5       = "level_5"
	BadgeLevel10      = "level_10"
	BadgeLevel25      = "level_25"
	BadgeFirstQuest   = "first_quest"
	BadgeQuests10     = "quests_10"
	BadgeQuests50     = "quests_50"
)

// badgeCriterion decides whether a profile satisfies one badge.
type badgeCriterion struct {
	ID        string
	Satisfied func(p gamification.Profile) bool
}

// criteria is the ordered badge catalogue. Evaluation order matters only
// for notification order, so milestones are listed smallest first.
var criteria = []badgeCriterion{
	{BadgeFirstCheckIn, func(p gamification.Profile) bool { return p.TotalDaysActive >= 1 }},
	{BadgeStreak3, streakAtLeast(3)},
	{BadgeStreak7, streakAtLeast(7)},
	{BadgeStreak30, streakAtLeast(30)},
	{BadgeStreak100, streakAtLeast(100)},
	{BadgeLevel5, levelAtLeast(5)},
	{BadgeLevel10, levelAtLeast(10)},
	{BadgeLevel25, levelAtLeast(25)},
	{BadgeFirstQuest, func(p gamification.Profile) bool { return p.CompletedQuests >= 1 }},
	{BadgeQuests10, func(p gamification.Profile) bool { return p.CompletedQuests >= 10 }},
	{BadgeQuests50, func(p gamification.Profile) bool { return p.CompletedQuests >= 50 }},
}

func streakAtLeast(n int) func(p gamification.Profile) bool {
	return func(p gamification.Profile) bool {
		return p.StreakCounts[gamification.StreakDailyLogin] >= n
	}
}

func levelAtLeast(n int) func(p gamification.Profile) bool {
	return func(p gamification.Profile) bool {
		return p.CurrentLevel >= gamification.Level(n)
	}
}

// EvaluateBadges returns the badges the profile newly satisfies: criteria
// that hold and are not already in the unlocked set. Pure; safe to call
// inside a repository transaction.
func EvaluateBadges(p gamification.Profile) []string {
	var awarded []string
	for _, c := range criteria {
		if p.Unlocked != nil && p.Unlocked[c.ID] {
			continue
		}
		if c.Satisfied(p) {
			awarded = append(awarded, c.ID)
		}
	}
	return awarded
}

// KnownBadges returns all badge IDs in catalogue order.
func KnownBadges() []string {
	ids := make([]string, 0, len(criteria))
	for _, c := range criteria {
		ids = append(ids, c.ID)
	}
	return ids
}
