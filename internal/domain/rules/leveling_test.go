package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noctua-health/noctua/internal/domain/gamification"
)

func TestXPForLevel_Floor(t *testing.T) {
	assert.Equal(t, gamification.XP(0), XPForLevel(1))
	assert.Equal(t, gamification.XP(0), XPForLevel(0))
	assert.Equal(t, gamification.XP(100), XPForLevel(2))
}

func TestLevelForXP_NewUser(t *testing.T) {
	assert.Equal(t, gamification.Level(1), LevelForXP(0))
	assert.Equal(t, gamification.Level(1), LevelForXP(99))
}

// A single 100 XP check-in must take a new user to level 2. This exact
// calibration is load-bearing for the product copy ("one check-in, one
// level") and must not drift.
func TestLevelForXP_FirstLevelUpAtHundred(t *testing.T) {
	assert.Equal(t, gamification.Level(2), LevelForXP(100))
}

func TestLevelingCurve_RoundTrip(t *testing.T) {
	for level := gamification.Level(1); level <= 200; level++ {
		xp := XPForLevel(level)
		assert.Equal(t, level, LevelForXP(xp), "level %d at threshold %d", level, xp)
		if level > 1 {
			assert.Equal(t, level-1, LevelForXP(xp-1), "just below threshold of level %d", level)
		}
	}
}

func TestXPForLevel_StrictlyIncreasing(t *testing.T) {
	prev := XPForLevel(1)
	for level := gamification.Level(2); level <= 200; level++ {
		cur := XPForLevel(level)
		assert.Greater(t, cur, prev, "threshold must rise at level %d", level)
		prev = cur
	}
}

func TestXPToNextLevel(t *testing.T) {
	assert.Equal(t, gamification.XP(100), XPToNextLevel(0))
	assert.Equal(t, gamification.XP(1), XPToNextLevel(99))

	// Just reached level 2; next threshold is floor(100*2^1.5)=282.
	assert.Equal(t, gamification.XP(182), XPToNextLevel(100))
}

func TestLevelProgress_Bounds(t *testing.T) {
	for xp := gamification.XP(0); xp < 2000; xp += 37 {
		p := LevelProgress(xp)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.Less(t, p, 1.0)
	}
}

func TestEngagementFor(t *testing.T) {
	assert.Equal(t, gamification.EngagementNew, EngagementFor(1))
	assert.Equal(t, gamification.EngagementCasual, EngagementFor(3))
	assert.Equal(t, gamification.EngagementRegular, EngagementFor(10))
	assert.Equal(t, gamification.EngagementDevoted, EngagementFor(25))
}
