package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageFor_Thresholds(t *testing.T) {
	assert.Equal(t, StageOwlet, StageFor(0))
	assert.Equal(t, StageOwlet, StageFor(6))
	assert.Equal(t, StageYoungOwl, StageFor(7))
	assert.Equal(t, StageWiseOwl, StageFor(30))
	assert.Equal(t, StageMaster, StageFor(90))
	assert.Equal(t, StageMaster, StageFor(1000))
}

// Monotonicity: the stage index never decreases as active days accumulate.
func TestStageFor_Monotonic(t *testing.T) {
	rank := map[Stage]int{StageOwlet: 0, StageYoungOwl: 1, StageWiseOwl: 2, StageMaster: 3}
	prev := rank[StageFor(0)]
	for days := 1; days <= 200; days++ {
		cur := rank[StageFor(days)]
		assert.GreaterOrEqual(t, cur, prev, "stage regressed at day %d", days)
		prev = cur
	}
}

func TestAbilitiesFor_Accumulate(t *testing.T) {
	owlet := AbilitiesFor(0)
	assert.Contains(t, owlet, "daily_check_in")
	assert.NotContains(t, owlet, "wind_down_sounds")

	young := AbilitiesFor(7)
	assert.Contains(t, young, "daily_check_in", "earlier abilities stay unlocked")
	assert.Contains(t, young, "wind_down_sounds")
	assert.NotContains(t, young, "mentor_mode")

	master := AbilitiesFor(90)
	assert.Contains(t, master, "mentor_mode")
	assert.Len(t, master, 8)
}

func TestNextStage(t *testing.T) {
	next, remaining, ok := NextStage(3)
	assert.True(t, ok)
	assert.Equal(t, StageYoungOwl, next.Stage)
	assert.Equal(t, 4, remaining)

	_, _, ok = NextStage(90)
	assert.False(t, ok, "ladder topped out")
}
