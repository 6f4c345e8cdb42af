package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noctua-health/noctua/internal/domain/gamification"
)

func TestMultiplierFor_Monotonic(t *testing.T) {
	prev := MultiplierFor(0)
	for count := 1; count <= 150; count++ {
		cur := MultiplierFor(count)
		assert.GreaterOrEqual(t, cur, prev, "multiplier must not decrease at count %d", count)
		prev = cur
	}
}

func TestMultiplierFor_Tiers(t *testing.T) {
	assert.Equal(t, 1.0, MultiplierFor(1))
	assert.Equal(t, 1.25, MultiplierFor(3))
	assert.Equal(t, 1.5, MultiplierFor(7))
	assert.Equal(t, 2.0, MultiplierFor(30))
	assert.Equal(t, 3.0, MultiplierFor(100))
}

func TestIncrement_RaisesCountAndLongest(t *testing.T) {
	s := gamification.NewStreak(1, gamification.StreakDailyLogin)

	for i := 1; i <= 10; i++ {
		Increment(s)
		assert.Equal(t, i, s.CurrentCount)
		assert.Equal(t, i, s.LongestCount)
	}
}

func TestIncrement_FrozenStreakStillIncrements(t *testing.T) {
	s := gamification.NewStreak(1, gamification.StreakDailyLogin)
	s.CurrentCount = 4
	s.LongestCount = 4
	s.Frozen = true

	Increment(s)

	assert.Equal(t, 5, s.CurrentCount)
	assert.True(t, s.Frozen, "freezing shields from decay, not from increments")
}

func TestReset_Hard(t *testing.T) {
	s := gamification.NewStreak(1, gamification.StreakDailyLogin)
	s.CurrentCount = 12
	s.LongestCount = 20

	Reset(s, false, 0.5)

	assert.Equal(t, 0, s.CurrentCount)
	assert.Equal(t, 20, s.LongestCount, "hard reset preserves the longest count")
	assert.Equal(t, 1.0, s.Multiplier)
}

// Soft reset invariant from the compassion-mode contract: for any prior
// count >= 2 and any preserve percentage, the new count is strictly between
// zero and the prior count.
func TestSoftResetCount_Invariant(t *testing.T) {
	for count := 2; count <= 120; count++ {
		for _, preserve := range []float64{0.0, 0.1, 0.25, 0.5, 0.75, 0.99} {
			kept := SoftResetCount(count, preserve)
			assert.Greater(t, kept, 0, "count=%d preserve=%v", count, preserve)
			assert.Less(t, kept, count, "count=%d preserve=%v", count, preserve)
		}
	}
}

func TestSoftResetCount_SmallCounts(t *testing.T) {
	assert.Equal(t, 0, SoftResetCount(0, 0.5))
	assert.Equal(t, 0, SoftResetCount(1, 0.5))
}

// Ten increments then a default soft reset lands strictly between 0 and 10.
func TestSoftReset_AfterTenDays(t *testing.T) {
	s := gamification.NewStreak(1, gamification.StreakDailyLogin)
	for i := 0; i < 10; i++ {
		Increment(s)
	}

	Reset(s, true, 0.5)

	assert.Greater(t, s.CurrentCount, 0)
	assert.Less(t, s.CurrentCount, 10)
	assert.Equal(t, 10, s.LongestCount)
}
