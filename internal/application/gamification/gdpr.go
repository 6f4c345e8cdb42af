package gamification

import (
	"context"

	"github.com/noctua-health/noctua/internal/domain/gamification"
	"github.com/noctua-health/noctua/internal/domain/shared"
	"github.com/noctua-health/noctua/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DATA SUBJECT OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// ExportUserData returns the full portable export of everything the engine
// stores about the user.
func (e *Engine) ExportUserData(ctx context.Context, userID int64) (*gamification.Export, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	export, err := e.repo.ExportUserData(ctx, userID)
	if err != nil {
		return nil, err
	}
	e.log.Info("user data exported",
		logger.UserID(userID),
		logger.String("export_id", export.ExportID),
	)
	return export, nil
}

// DeleteUserData erases every row for the user. Idempotent: deleting an
// absent user succeeds and still publishes the confirmation event so the
// chat layer can acknowledge the request.
func (e *Engine) DeleteUserData(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return shared.ErrInvalidUserID
	}

	if err := e.repo.DeleteUserData(ctx, userID); err != nil {
		return err
	}

	e.invalidateProfile(ctx, userID)
	e.publish(gamification.NewUserDataDeletedEvent(userID))
	e.log.Info("user data deleted", logger.UserID(userID))
	return nil
}

// AnonymizeUserData soft-deletes the user's state and scrubs identifying
// metadata while keeping aggregate counters. Idempotent.
func (e *Engine) AnonymizeUserData(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return shared.ErrInvalidUserID
	}

	if err := e.repo.AnonymizeUserData(ctx, userID); err != nil {
		return err
	}

	e.invalidateProfile(ctx, userID)
	e.publish(gamification.NewUserDataAnonymizedEvent(userID))
	e.log.Info("user data anonymized", logger.UserID(userID))
	return nil
}
