package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noctua-health/noctua/internal/domain/gamification"
)

func profile(days, streak, quests int, level gamification.Level) gamification.Profile {
	return gamification.Profile{
		UserID:          1,
		CurrentLevel:    level,
		TotalDaysActive: days,
		StreakCounts: map[gamification.StreakType]int{
			gamification.StreakDailyLogin: streak,
		},
		CompletedQuests: quests,
		Unlocked:        map[string]bool{},
	}
}

func TestEvaluateBadges_FirstCheckIn(t *testing.T) {
	awarded := EvaluateBadges(profile(1, 1, 0, 1))
	assert.Contains(t, awarded, BadgeFirstCheckIn)
	assert.NotContains(t, awarded, BadgeStreak3)
}

func TestEvaluateBadges_SkipsAlreadyUnlocked(t *testing.T) {
	p := profile(1, 1, 0, 1)
	p.Unlocked[BadgeFirstCheckIn] = true

	awarded := EvaluateBadges(p)
	assert.NotContains(t, awarded, BadgeFirstCheckIn)
}

func TestEvaluateBadges_StreakMilestones(t *testing.T) {
	awarded := EvaluateBadges(profile(30, 30, 0, 1))
	assert.Contains(t, awarded, BadgeStreak3)
	assert.Contains(t, awarded, BadgeStreak7)
	assert.Contains(t, awarded, BadgeStreak30)
	assert.NotContains(t, awarded, BadgeStreak100)
}

func TestEvaluateBadges_LevelAndQuestMilestones(t *testing.T) {
	awarded := EvaluateBadges(profile(5, 0, 10, 10))
	assert.Contains(t, awarded, BadgeLevel5)
	assert.Contains(t, awarded, BadgeLevel10)
	assert.NotContains(t, awarded, BadgeLevel25)
	assert.Contains(t, awarded, BadgeFirstQuest)
	assert.Contains(t, awarded, BadgeQuests10)
}

func TestEvaluateBadges_EmptyProfile(t *testing.T) {
	awarded := EvaluateBadges(gamification.Profile{UserID: 1, CurrentLevel: 1})
	assert.Empty(t, awarded)
}

func TestKnownBadges_Unique(t *testing.T) {
	ids := KnownBadges()
	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate badge id %s", id)
		seen[id] = true
	}
	assert.Len(t, ids, 11)
}
