package gamification

import (
	"context"
	"time"

	"github.com/noctua-health/noctua/internal/domain/gamification"
	"github.com/noctua-health/noctua/internal/domain/rules"
	"github.com/noctua-health/noctua/internal/domain/shared"
	"github.com/noctua-health/noctua/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GAMIFICATION ENGINE
// The single entry point the chat layer talks to. Every write goes through
// the repository's transactional operations; the engine's own job is
// sequencing, event publication, and keeping the cached profile view fresh.
// ══════════════════════════════════════════════════════════════════════════════

// ProfileCacheStore is the cache the engine keeps profile views in.
// Satisfied by redis.ProfileCache; a nil store disables caching.
type ProfileCacheStore interface {
	Get(ctx context.Context, userID int64, dest interface{}) error
	Set(ctx context.Context, userID int64, view interface{}) error
	Invalidate(ctx context.Context, userID int64) error
}

// Engine orchestrates the gamification domain.
type Engine struct {
	repo      gamification.Repository
	publisher shared.EventPublisher
	profiles  ProfileCacheStore
	log       *logger.Logger
}

// NewEngine creates an Engine. publisher and profiles may be nil: events
// are then dropped and caching is disabled.
func NewEngine(repo gamification.Repository, publisher shared.EventPublisher, profiles ProfileCacheStore, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Default()
	}
	return &Engine{
		repo:      repo,
		publisher: publisher,
		profiles:  profiles,
		log:       log.With(logger.Component("gamification_engine")),
	}
}

// publish sends an event to the bus. Delivery failures are logged, never
// returned: the repository work already committed and must stay committed.
func (e *Engine) publish(event shared.Event) {
	if e.publisher == nil || event == nil {
		return
	}
	if err := e.publisher.Publish(event); err != nil {
		e.log.Warn("event publish failed",
			logger.String("event_type", string(event.EventType())),
			logger.UserID(event.UserID()),
			logger.Err(err),
		)
	}
}

// invalidateProfile drops the cached profile view after a write.
func (e *Engine) invalidateProfile(ctx context.Context, userID int64) {
	if e.profiles == nil {
		return
	}
	if err := e.profiles.Invalidate(ctx, userID); err != nil {
		e.log.Warn("profile cache invalidation failed", logger.UserID(userID), logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTION
// ══════════════════════════════════════════════════════════════════════════════

// ActionResult is returned by RecordAction.
type ActionResult struct {
	Action   Action
	XPEarned gamification.XP
	TotalXP  gamification.XP
	Level    gamification.Level

	LeveledUp bool

	// Streak is set when the action advances a behaviour streak.
	Streak *gamification.Streak

	// CheckIn carries the full check-in result for ActionDailyCheckIn,
	// including awarded badges and same-day deduplication.
	CheckIn *gamification.CheckInResult
}

// RecordAction records one user activity: awards its XP, advances the
// associated streak if the action has one, and publishes the resulting
// events. Daily check-ins route through RecordDailyCheckIn and get its
// same-day deduplication.
func (e *Engine) RecordAction(ctx context.Context, userID int64, action Action) (*ActionResult, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}

	if action == ActionDailyCheckIn {
		checkIn, err := e.RecordDailyCheckIn(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &ActionResult{
			Action:    action,
			XPEarned:  checkIn.XPEarned,
			TotalXP:   checkIn.TotalXP,
			Level:     checkIn.NewLevel,
			LeveledUp: checkIn.LeveledUp,
			Streak:    checkIn.Streak,
			CheckIn:   checkIn,
		}, nil
	}

	info := actions[action]

	xp, err := e.AddXP(ctx, userID, info.xp, info.source, nil)
	if err != nil {
		return nil, err
	}

	result := &ActionResult{
		Action:    action,
		XPEarned:  info.xp,
		TotalXP:   xp.NewTotalXP,
		Level:     xp.NewLevel,
		LeveledUp: xp.LeveledUp,
	}

	if info.streak != "" {
		streak, err := e.repo.IncrementStreak(ctx, userID, info.streak, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		result.Streak = streak
		e.publish(gamification.NewStreakUpdatedEvent(userID, streak))
	}

	e.invalidateProfile(ctx, userID)
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// XP
// ══════════════════════════════════════════════════════════════════════════════

// AddXP awards XP from an arbitrary source and publishes xp:earned, plus
// level:up when the award crosses a threshold.
func (e *Engine) AddXP(ctx context.Context, userID int64, amount gamification.XP, source gamification.XPSource, metadata map[string]interface{}) (*gamification.XPResult, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	if amount <= 0 {
		return nil, shared.ErrNonPositiveXP
	}

	result, err := e.repo.AddXP(ctx, userID, amount, source, metadata)
	if err != nil {
		return nil, err
	}

	e.publish(gamification.NewXPEarnedEvent(userID, amount, result.NewTotalXP, source))
	if result.LeveledUp {
		e.publish(gamification.NewLevelUpEvent(userID, result.PreviousLevel, result.NewLevel, result.NewTotalXP))
		e.log.Info("level up",
			logger.UserID(userID),
			logger.LevelNum(int(result.NewLevel)),
			logger.XPAmount(int(result.NewTotalXP)),
		)
	}

	e.invalidateProfile(ctx, userID)
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY CHECK-IN
// ══════════════════════════════════════════════════════════════════════════════

// RecordDailyCheckIn runs the composite check-in transaction: streak
// increment, multiplied XP award, active-day bump, and badge evaluation.
// A same-day repeat is a no-op with AlreadyCheckedIn set and publishes
// nothing. Crossing an evolution-stage threshold additionally publishes
// evolution:stage_changed.
func (e *Engine) RecordDailyCheckIn(ctx context.Context, userID int64) (*gamification.CheckInResult, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	// The stage and previous level are derived from the state before the
	// transaction; the composite result only carries post-update values.
	prevDays := 0
	prevLevel := gamification.Level(1)
	if state, err := e.repo.GetState(ctx, userID); err == nil {
		prevDays = state.TotalDaysActive
		prevLevel = state.CurrentLevel
	} else if !shared.IsNotFound(err) {
		return nil, err
	}

	result, err := e.repo.RecordDailyCheckIn(ctx, userID, CheckInBaseXP, rules.EvaluateBadges)
	if err != nil {
		return nil, err
	}
	if result.AlreadyCheckedIn {
		return result, nil
	}

	e.publish(gamification.NewStreakUpdatedEvent(userID, result.Streak))
	e.publish(gamification.NewXPEarnedEvent(userID, result.XPEarned, result.TotalXP, gamification.SourceDailyCheckIn))
	if result.LeveledUp {
		e.publish(gamification.NewLevelUpEvent(userID, prevLevel, result.NewLevel, result.TotalXP))
	}
	for _, badge := range result.AwardedBadges {
		e.publish(gamification.NewAchievementUnlockedEvent(userID, badge.AchievementID))
		e.log.Info("badge unlocked", logger.UserID(userID), logger.BadgeID(badge.AchievementID))
	}

	newDays := prevDays + 1
	if prevStage, newStage := rules.StageFor(prevDays), rules.StageFor(newDays); newStage != prevStage {
		e.publish(gamification.NewEvolutionStageChangedEvent(userID, string(prevStage), string(newStage), newDays))
		e.log.Info("evolution stage changed",
			logger.UserID(userID),
			logger.String("stage", string(newStage)),
		)
	}

	e.invalidateProfile(ctx, userID)
	return result, nil
}
