// Package rules contains the pure decision functions of the gamification
// engine: the leveling curve, streak transitions, badge criteria, and the
// avatar evolution ladder. Nothing in this package performs I/O.
package rules

import (
	"math"

	"github.com/noctua-health/noctua/internal/domain/gamification"
)

// xpCurveBase scales the leveling curve. With base 100 the first level-up
// lands at exactly 100 XP, which is what the product tuning expects for a
// single daily check-in streak bonus.
const xpCurveBase = 100.0

// XPForLevel returns the cumulative XP required to reach the given level:
// floor(100 * (level-1)^1.5). Level 1 is the floor and costs nothing.
func XPForLevel(level gamification.Level) gamification.XP {
	if level <= 1 {
		return 0
	}
	return gamification.XP(math.Floor(xpCurveBase * math.Pow(float64(level-1), 1.5)))
}

// LevelForXP returns the largest level whose threshold is within totalXP.
// The curve is strictly increasing above level 1, so a simple walk is
// enough; users would need centuries of play to push this past a few
// hundred iterations.
func LevelForXP(totalXP gamification.XP) gamification.Level {
	if totalXP < 0 {
		return 1
	}
	level := gamification.Level(1)
	for XPForLevel(level+1) <= totalXP {
		level++
	}
	return level
}

// XPToNextLevel returns how much XP is missing until the next level.
func XPToNextLevel(totalXP gamification.XP) gamification.XP {
	next := LevelForXP(totalXP) + 1
	return XPForLevel(next) - totalXP
}

// LevelProgress returns completion of the current level as a fraction in
// [0, 1). Used by the chat layer to render progress bars.
func LevelProgress(totalXP gamification.XP) float64 {
	current := LevelForXP(totalXP)
	floor := XPForLevel(current)
	ceil := XPForLevel(current + 1)
	if ceil <= floor {
		return 0
	}
	return float64(totalXP-floor) / float64(ceil-floor)
}

// EngagementFor maps a level to the coarse engagement bucket surfaced to
// the chat layer.
func EngagementFor(level gamification.Level) gamification.EngagementLevel {
	switch {
	case level >= 25:
		return gamification.EngagementDevoted
	case level >= 10:
		return gamification.EngagementRegular
	case level >= 3:
		return gamification.EngagementCasual
	default:
		return gamification.EngagementNew
	}
}
