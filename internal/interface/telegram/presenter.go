package telegram

import (
	"fmt"
	"strings"

	app "github.com/noctua-health/noctua/internal/application/gamification"
	"github.com/noctua-health/noctua/internal/domain/gamification"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRESENTER
// Renders engine results as Telegram HTML. Display names for badges and
// stages live here, not in the domain.
// ══════════════════════════════════════════════════════════════════════════════

var stageNames = map[string]string{
	"owlet":     "🐣 Owlet",
	"young_owl": "🦉 Young Owl",
	"wise_owl":  "🦉✨ Wise Owl",
	"master":    "🌟 Master Owl",
}

var badgeNames = map[string]string{
	"first_check_in":  "🌙 First Night",
	"streak_3_days":   "🔥 3-Day Streak",
	"streak_7_days":   "🔥 7-Day Streak",
	"streak_30_days":  "🔥 30-Day Streak",
	"streak_100_days": "💎 100-Day Streak",
	"level_5":         "⭐ Level 5",
	"level_10":        "⭐ Level 10",
	"level_25":        "🌟 Level 25",
	"first_quest":     "🗺 First Quest",
	"quests_10":       "🗺 Quest Veteran",
	"quests_50":       "🏆 Quest Master",
}

// StageName returns the display name for an evolution stage.
func StageName(stage string) string {
	if name, ok := stageNames[stage]; ok {
		return name
	}
	return stage
}

// BadgeName returns the display name for a badge.
func BadgeName(badgeID string) string {
	if name, ok := badgeNames[badgeID]; ok {
		return name
	}
	return badgeID
}

// progressBar renders a ten-segment progress bar for a 0..1 ratio.
func progressBar(ratio float64) string {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * 10)
	return strings.Repeat("▰", filled) + strings.Repeat("▱", 10-filled)
}

// RenderProfile renders the profile card.
func RenderProfile(view *app.ProfileView) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<b>%s</b>\n\n", StageName(view.Stage))
	fmt.Fprintf(&b, "Level <b>%d</b> · %d XP\n", view.CurrentLevel, view.TotalXP)
	fmt.Fprintf(&b, "%s %d XP to next level\n\n", progressBar(view.LevelProgress), view.XPToNextLevel)
	fmt.Fprintf(&b, "🗓 Active days: <b>%d</b>\n", view.TotalDaysActive)

	if view.NextStage != nil {
		fmt.Fprintf(&b, "Next stage %s in <b>%d</b> days\n", StageName(view.NextStage.Stage), view.NextStage.DaysRemaining)
	}

	if len(view.Streaks) > 0 {
		b.WriteString("\n<b>Streaks</b>\n")
		for _, s := range view.Streaks {
			frozen := ""
			if s.Frozen {
				frozen = " ❄️"
			}
			fmt.Fprintf(&b, "· %s: %d days (best %d, ×%.2f)%s\n",
				strings.ReplaceAll(s.Type, "_", " "), s.CurrentCount, s.LongestCount, s.Multiplier, frozen)
		}
	}

	fmt.Fprintf(&b, "\n🏅 Badges: %d/%d", view.UnlockedBadges, view.TotalBadges)
	if view.EquippedBadge != nil {
		fmt.Fprintf(&b, " · wearing %s", BadgeName(*view.EquippedBadge))
	}

	return b.String()
}

// RenderCheckIn renders the result of a daily check-in.
func RenderCheckIn(result *gamification.CheckInResult) string {
	if result.AlreadyCheckedIn {
		return "You already checked in today. Come back tomorrow night 🌙"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Checked in! <b>+%d XP</b>\n", result.XPEarned)
	fmt.Fprintf(&b, "🔥 Streak: <b>%d</b> days (×%.2f)\n", result.Streak.CurrentCount, result.Streak.Multiplier)

	if result.LeveledUp {
		fmt.Fprintf(&b, "\n🎉 Level up! You reached level <b>%d</b>\n", result.NewLevel)
	}
	for _, badge := range result.AwardedBadges {
		fmt.Fprintf(&b, "\n🏅 New badge: <b>%s</b>", BadgeName(badge.AchievementID))
	}

	return b.String()
}

// RenderQuests renders the active quest list.
func RenderQuests(quests []*gamification.Quest) string {
	if len(quests) == 0 {
		return "No active quests. Rest well tonight 🌙"
	}

	var b strings.Builder
	b.WriteString("<b>Active quests</b>\n\n")
	for _, q := range quests {
		ratio := 0.0
		if q.Progress.TargetValue > 0 {
			ratio = float64(q.Progress.CurrentValue) / float64(q.Progress.TargetValue)
		}
		fmt.Fprintf(&b, "🗺 <b>%s</b>\n%s %d/%d\n\n",
			strings.ReplaceAll(q.QuestID, "-", " "), progressBar(ratio), q.Progress.CurrentValue, q.Progress.TargetValue)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderBadges renders the badge collection.
func RenderBadges(badges []*gamification.Achievement) string {
	if len(badges) == 0 {
		return "No badges yet. Your first check-in earns one 🌙"
	}

	var unlocked, inProgress []string
	for _, badge := range badges {
		if badge.UnlockedAt != nil {
			unlocked = append(unlocked, BadgeName(badge.AchievementID))
		} else {
			inProgress = append(inProgress, fmt.Sprintf("%s (%d%%)", BadgeName(badge.AchievementID), badge.Progress))
		}
	}

	var b strings.Builder
	if len(unlocked) > 0 {
		b.WriteString("<b>Unlocked</b>\n")
		for _, name := range unlocked {
			fmt.Fprintf(&b, "· %s\n", name)
		}
	}
	if len(inProgress) > 0 {
		b.WriteString("\n<b>In progress</b>\n")
		for _, name := range inProgress {
			fmt.Fprintf(&b, "· %s\n", name)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderSettings renders the settings card.
func RenderSettings(settings *gamification.Settings) string {
	onOff := func(v bool) string {
		if v {
			return "on"
		}
		return "off"
	}

	var b strings.Builder
	b.WriteString("<b>Settings</b>\n\n")
	fmt.Fprintf(&b, "💚 Compassion mode: <b>%s</b>\n", onOff(settings.CompassionEnabled))
	fmt.Fprintf(&b, "🛟 Soft streak reset: <b>%s</b> (keeps %.0f%%)\n", onOff(settings.SoftResetEnabled), settings.PreservePercentage*100)
	fmt.Fprintf(&b, "⏱ Session soft limit: <b>%d min</b>\n", settings.SoftLimitMinutes)
	fmt.Fprintf(&b, "⏱ Daily limit: <b>%d min</b>", settings.DailyLimitMinutes)
	return b.String()
}
