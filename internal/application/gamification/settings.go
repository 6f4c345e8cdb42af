package gamification

import (
	"context"
	"time"

	"github.com/noctua-health/noctua/internal/domain/gamification"
	"github.com/noctua-health/noctua/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS
// ══════════════════════════════════════════════════════════════════════════════

// GetSettings returns the user's engine settings, or the defaults when
// none are stored.
func (e *Engine) GetSettings(ctx context.Context, userID int64) (*gamification.Settings, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	return e.repo.GetSettings(ctx, userID)
}

// maxPreservePercentage is the largest preserve percentage the engine
// stores. Settings.Validate and the settings table both require the
// value to stay below 1, so a soft reset always loses some progress.
const maxPreservePercentage = 0.99

// UpdateSettings stores the user's engine settings. The preserve
// percentage is clamped to [0, maxPreservePercentage] so lenient input
// still saves instead of bouncing off validation.
func (e *Engine) UpdateSettings(ctx context.Context, settings *gamification.Settings) error {
	if settings == nil || settings.UserID <= 0 {
		return shared.ErrInvalidUserID
	}
	if settings.PreservePercentage < 0 {
		settings.PreservePercentage = 0
	}
	if settings.PreservePercentage > maxPreservePercentage {
		settings.PreservePercentage = maxPreservePercentage
	}
	return e.repo.SaveSettings(ctx, settings)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION TELEMETRY
// Wellbeing tracking: how long the user spends in the bot and how often
// they take breaks. At most one session is open per user at a time.
// ══════════════════════════════════════════════════════════════════════════════

// StartSession opens a usage session.
func (e *Engine) StartSession(ctx context.Context, userID int64) (*gamification.Session, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	return e.repo.StartSession(ctx, userID, time.Now().UTC())
}

// EndSession closes the open session.
func (e *Engine) EndSession(ctx context.Context, userID int64) (*gamification.Session, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	return e.repo.EndSession(ctx, userID, time.Now().UTC())
}

// RecordBreak counts a break taken during the open session.
func (e *Engine) RecordBreak(ctx context.Context, userID int64) (*gamification.Session, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	return e.repo.RecordBreak(ctx, userID)
}

// GetCurrentSession returns the open session, or shared.ErrNoOpenSession.
func (e *Engine) GetCurrentSession(ctx context.Context, userID int64) (*gamification.Session, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	return e.repo.GetCurrentSession(ctx, userID)
}
