package rules

import (
	"math"

	"github.com/noctua-health/noctua/internal/domain/gamification"
)

// MultiplierFor returns the XP multiplier for a streak count. Tiers rise at
// the habit-forming boundaries and never decrease with the count.
func MultiplierFor(count int) float64 {
	switch {
	case count >= 100:
		return 3.0
	case count >= 30:
		return 2.0
	case count >= 7:
		return 1.5
	case count >= 3:
		return 1.25
	default:
		return 1.0
	}
}

// Increment applies one activity day to the streak: count rises by one,
// longest follows, and the multiplier is re-derived. Freezing does not
// block increments; it only shields the streak from decay.
func Increment(s *gamification.Streak) {
	s.CurrentCount++
	if s.CurrentCount > s.LongestCount {
		s.LongestCount = s.CurrentCount
	}
	s.Multiplier = MultiplierFor(s.CurrentCount)
}

// SoftResetCount computes the preserved count for a compassion-mode reset:
// floor(count * preserve), with the guarantee that for counts >= 2 the
// result is strictly between zero and the prior count. A preserve of zero
// still keeps a single day so the user never falls all the way back.
func SoftResetCount(count int, preserve float64) int {
	if count <= 0 {
		return 0
	}
	if count == 1 {
		return 0
	}
	kept := int(math.Floor(float64(count) * preserve))
	if kept < 1 {
		kept = 1
	}
	if kept >= count {
		kept = count - 1
	}
	return kept
}

// Reset applies a hard or soft reset in place. Hard resets zero the count;
// soft resets preserve a fraction of it. LongestCount is untouched either
// way, and the multiplier is re-derived from the new count.
func Reset(s *gamification.Streak, soft bool, preserve float64) {
	if soft {
		s.CurrentCount = SoftResetCount(s.CurrentCount, preserve)
	} else {
		s.CurrentCount = 0
	}
	s.Multiplier = MultiplierFor(s.CurrentCount)
}
