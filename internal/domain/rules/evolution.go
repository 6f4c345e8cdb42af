package rules

// Stage identifies an avatar evolution stage. The companion mascot grows
// with cumulative active days and never regresses.
type Stage string

const (
	StageOwlet    Stage = "owlet"
	StageYoungOwl Stage = "young_owl"
	StageWiseOwl  Stage = "wise_owl"
	StageMaster   Stage = "master"
)

// StageInfo describes one rung of the evolution ladder.
type StageInfo struct {
	Stage        Stage
	RequiredDays int
	Abilities    []string
}

// ladder is ordered by RequiredDays ascending. Abilities accumulate: every
// stage keeps the abilities of the stages below it.
var ladder = []StageInfo{
	{StageOwlet, 0, []string{"daily_check_in", "sleep_diary"}},
	{StageYoungOwl, 7, []string{"wind_down_sounds", "breathing_guide"}},
	{StageWiseOwl, 30, []string{"sleep_insights", "custom_reminders"}},
	{StageMaster, 90, []string{"mentor_mode", "master_themes"}},
}

// StageFor returns the highest stage whose required days are within
// totalDaysActive. Monotonic in its argument.
func StageFor(totalDaysActive int) Stage {
	current := ladder[0].Stage
	for _, s := range ladder {
		if totalDaysActive >= s.RequiredDays {
			current = s.Stage
		}
	}
	return current
}

// AbilitiesFor returns the unlocked abilities at the given cumulative day
// count: everything from the first stage up to and including the current
// one. Later abilities stay locked.
func AbilitiesFor(totalDaysActive int) []string {
	var abilities []string
	for _, s := range ladder {
		if totalDaysActive < s.RequiredDays {
			break
		}
		abilities = append(abilities, s.Abilities...)
	}
	return abilities
}

// NextStage returns the next rung and how many days remain until it, or
// false when the ladder is topped out.
func NextStage(totalDaysActive int) (StageInfo, int, bool) {
	for _, s := range ladder {
		if totalDaysActive < s.RequiredDays {
			return s, s.RequiredDays - totalDaysActive, true
		}
	}
	return StageInfo{}, 0, false
}

// Stages returns the full ladder in ascending order.
func Stages() []StageInfo {
	out := make([]StageInfo, len(ladder))
	copy(out, ladder)
	return out
}
