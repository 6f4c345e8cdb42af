package gamification

import (
	"context"

	"github.com/noctua-health/noctua/internal/domain/gamification"
	"github.com/noctua-health/noctua/internal/domain/rules"
	"github.com/noctua-health/noctua/internal/domain/shared"
	"github.com/noctua-health/noctua/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE VIEW
// ══════════════════════════════════════════════════════════════════════════════

// StreakView is one behaviour streak inside a ProfileView.
type StreakView struct {
	Type         string  `json:"type"`
	CurrentCount int     `json:"current_count"`
	LongestCount int     `json:"longest_count"`
	Multiplier   float64 `json:"multiplier"`
	Frozen       bool    `json:"frozen"`
}

// NextStageView describes the upcoming evolution stage.
type NextStageView struct {
	Stage         string `json:"stage"`
	DaysRemaining int    `json:"days_remaining"`
}

// ProfileView is the read model the chat layer renders: current state,
// leveling progress, evolution stage, streaks and equipped cosmetics in one
// structure. It is what the profile cache stores.
type ProfileView struct {
	UserID          int64   `json:"user_id"`
	TotalXP         int     `json:"total_xp"`
	CurrentLevel    int     `json:"current_level"`
	EngagementLevel string  `json:"engagement_level"`
	LevelProgress   float64 `json:"level_progress"`
	XPToNextLevel   int     `json:"xp_to_next_level"`

	TotalDaysActive int            `json:"total_days_active"`
	Stage           string         `json:"stage"`
	Abilities       []string       `json:"abilities"`
	NextStage       *NextStageView `json:"next_stage,omitempty"`

	Streaks []StreakView `json:"streaks"`

	UnlockedBadges int `json:"unlocked_badges"`
	TotalBadges    int `json:"total_badges"`

	EquippedBadge *string `json:"equipped_badge,omitempty"`
	EquippedTitle *string `json:"equipped_title,omitempty"`
}

// GetProfile assembles the profile view, serving from the cache when a
// fresh copy exists. A user with no state yet gets the level-1 starting
// view rather than an error.
func (e *Engine) GetProfile(ctx context.Context, userID int64) (*ProfileView, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	if e.profiles != nil {
		var cached ProfileView
		if err := e.profiles.Get(ctx, userID, &cached); err == nil {
			return &cached, nil
		}
	}

	view, err := e.buildProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if e.profiles != nil {
		if err := e.profiles.Set(ctx, userID, view); err != nil {
			e.log.Warn("profile cache write failed", logger.UserID(userID), logger.Err(err))
		}
	}
	return view, nil
}

func (e *Engine) buildProfile(ctx context.Context, userID int64) (*ProfileView, error) {
	state, err := e.repo.GetState(ctx, userID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, err
		}
		state = gamification.NewState(userID)
	}

	streaks, err := e.repo.GetStreaks(ctx, userID)
	if err != nil {
		return nil, err
	}
	achievements, err := e.repo.GetAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}
	equipped, err := e.repo.GetEquippedItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &ProfileView{
		UserID:          userID,
		TotalXP:         int(state.TotalXP),
		CurrentLevel:    int(state.CurrentLevel),
		EngagementLevel: string(state.EngagementLevel),
		LevelProgress:   rules.LevelProgress(state.TotalXP),
		XPToNextLevel:   int(rules.XPToNextLevel(state.TotalXP)),
		TotalDaysActive: state.TotalDaysActive,
		Stage:           string(rules.StageFor(state.TotalDaysActive)),
		Abilities:       rules.AbilitiesFor(state.TotalDaysActive),
		Streaks:         make([]StreakView, 0, len(streaks)),
		TotalBadges:     len(rules.KnownBadges()),
		EquippedBadge:   equipped.EquippedBadge,
		EquippedTitle:   equipped.EquippedTitle,
	}

	if next, days, ok := rules.NextStage(state.TotalDaysActive); ok {
		view.NextStage = &NextStageView{Stage: string(next.Stage), DaysRemaining: days}
	}

	for _, s := range streaks {
		view.Streaks = append(view.Streaks, StreakView{
			Type:         string(s.Type),
			CurrentCount: s.CurrentCount,
			LongestCount: s.LongestCount,
			Multiplier:   s.Multiplier,
			Frozen:       s.Frozen,
		})
	}

	for _, a := range achievements {
		if a.UnlockedAt != nil {
			view.UnlockedBadges++
		}
	}

	return view, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES AND COSMETICS
// ══════════════════════════════════════════════════════════════════════════════

// GetBadges returns the user's achievement records, unlocked or in
// progress.
func (e *Engine) GetBadges(ctx context.Context, userID int64) ([]*gamification.Achievement, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	return e.repo.GetAchievements(ctx, userID)
}

// EquipBadge equips an unlocked badge as the user's visible cosmetic.
func (e *Engine) EquipBadge(ctx context.Context, userID int64, badgeID string) (*gamification.EquippedItems, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	equipped, err := e.repo.EquipBadge(ctx, userID, badgeID)
	if err != nil {
		return nil, err
	}
	e.invalidateProfile(ctx, userID)
	return equipped, nil
}

// EquipTitle equips an owned title from the inventory.
func (e *Engine) EquipTitle(ctx context.Context, userID int64, titleID string) (*gamification.EquippedItems, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	equipped, err := e.repo.EquipTitle(ctx, userID, titleID)
	if err != nil {
		return nil, err
	}
	e.invalidateProfile(ctx, userID)
	return equipped, nil
}

// GetInventory returns the user's cosmetic inventory.
func (e *Engine) GetInventory(ctx context.Context, userID int64) ([]*gamification.InventoryItem, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	return e.repo.GetInventory(ctx, userID)
}
