package attemptsrvc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/device"
	"github.com/programme-lv/proctor/logger"
	"github.com/programme-lv/proctor/notify"
)

// effects run after an attempt change has been committed. Their
// failures are logged and never undo the change.
type effects struct {
	disqualifyRegistration func(ctx context.Context, regID uuid.UUID, reason string) error
	reinstateRegistration  func(ctx context.Context, regID uuid.UUID) error
	releaseLock            func(ctx context.Context, attemptUUID uuid.UUID, status device.LockStatus, now time.Time) error
	recalcLeaderboard      func(ctx context.Context, examID string) error
	publish                func(ctx context.Context, e notify.Event)
	now                    func() time.Time
}

func (e effects) afterDisqualify(ctx context.Context, a attempt.Attempt) {
	log := logger.FromContext(ctx)
	reason := ""
	if a.DisqualifiedReason != nil {
		reason = *a.DisqualifiedReason
	}
	log.Info("attempt disqualified", "attempt_uuid", a.UUID, "reason", reason)

	if err := e.disqualifyRegistration(ctx, a.RegistrationID, reason); err != nil {
		log.Error("failed to disqualify registration",
			"registration_uuid", a.RegistrationID, "error", err)
	}
	if err := e.releaseLock(ctx, a.UUID, device.LockViolated, e.now()); err != nil {
		log.Warn("failed to release device lock", "error", err)
	}
	e.publish(ctx, notify.AttemptDisqualified{
		AttemptUUID: a.UUID,
		ExamID:      a.ExamID,
		UserUUID:    a.UserUUID,
		Reason:      reason,
		At:          e.now(),
	})
	e.refreshLeaderboard(ctx, a.ExamID)
}

func (e effects) afterReinstate(ctx context.Context, a attempt.Attempt) {
	log := logger.FromContext(ctx)
	log.Info("attempt reinstated", "attempt_uuid", a.UUID)
	if err := e.reinstateRegistration(ctx, a.RegistrationID); err != nil {
		log.Error("failed to reinstate registration",
			"registration_uuid", a.RegistrationID, "error", err)
	}
}

// afterClose frees the device of an attempt that stopped running.
func (e effects) afterClose(ctx context.Context, a attempt.Attempt) {
	if err := e.releaseLock(ctx, a.UUID, device.LockReleased, e.now()); err != nil {
		logger.FromContext(ctx).Warn("failed to release device lock", "error", err)
	}
	if a.Status.IsScored() {
		e.refreshLeaderboard(ctx, a.ExamID)
	}
}

func (e effects) refreshLeaderboard(ctx context.Context, examID string) {
	if err := e.recalcLeaderboard(ctx, examID); err != nil {
		logger.FromContext(ctx).Error("failed to recalculate leaderboard", "exam_id", examID, "error", err)
	}
}
