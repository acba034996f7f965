package attemptsrvc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/device"
	"github.com/programme-lv/proctor/logger"
)

type StartAttemptParams struct {
	ExamID         string
	UserUUID       uuid.UUID
	RegistrationID uuid.UUID

	Fingerprint device.Fingerprint
	UserAgent   string
	IPAddress   string
	IsVPN       bool
}

type startAttemptHandler struct {
	store          attemptStore
	isConfirmed    func(ctx context.Context, regID uuid.UUID, examID string, userUUID uuid.UUID) (bool, error)
	registerDevice func(ctx context.Context, p device.RegisterParams) (device.Device, error)
	acquireLock    func(ctx context.Context, attemptUUID uuid.UUID, deviceUUID uuid.UUID, now time.Time) (device.Lock, error)
	releaseLock    func(ctx context.Context, attemptUUID uuid.UUID, status device.LockStatus, now time.Time) error
	now            func() time.Time
}

func newStartAttemptHandler(
	store attemptStore,
	isConfirmed func(ctx context.Context, regID uuid.UUID, examID string, userUUID uuid.UUID) (bool, error),
	registerDevice func(ctx context.Context, p device.RegisterParams) (device.Device, error),
	acquireLock func(ctx context.Context, attemptUUID uuid.UUID, deviceUUID uuid.UUID, now time.Time) (device.Lock, error),
	releaseLock func(ctx context.Context, attemptUUID uuid.UUID, status device.LockStatus, now time.Time) error,
	now func() time.Time,
) StartAttemptCmd {
	return startAttemptHandler{
		store:          store,
		isConfirmed:    isConfirmed,
		registerDevice: registerDevice,
		acquireLock:    acquireLock,
		releaseLock:    releaseLock,
		now:            now,
	}
}

// Handle opens the participant's attempt and binds it to the device
// the request came from.
func (h startAttemptHandler) Handle(ctx context.Context, p StartAttemptParams) (attempt.Attempt, error) {
	confirmed, err := h.isConfirmed(ctx, p.RegistrationID, p.ExamID, p.UserUUID)
	if err != nil {
		return attempt.Attempt{}, fmt.Errorf("failed to check registration: %w", err)
	}
	if !confirmed {
		return attempt.Attempt{}, attempt.ErrRegistrationNotConfirmed()
	}

	ex, err := h.store.getExam(ctx, p.ExamID)
	if err != nil {
		return attempt.Attempt{}, err
	}
	if len(ex.Sections) == 0 {
		return attempt.Attempt{}, attempt.ErrSectionNotConfigured()
	}

	id := attempt.AttemptID(p.ExamID, p.UserUUID)
	unlock := h.store.locks.Lock(id)
	defer unlock()
	ctx = logger.WithAttemptID(ctx, id)
	log := logger.FromContext(ctx)

	now := h.now()
	existing, err := h.store.getAttempt(ctx, id)
	if err != nil {
		return attempt.Attempt{}, fmt.Errorf("failed to get attempt: %w", err)
	}
	a := attempt.New(p.ExamID, p.UserUUID, p.RegistrationID, now)
	if existing != nil {
		if existing.StartedAt != nil || existing.Status != attempt.StatusNotStarted {
			return attempt.Attempt{}, attempt.ErrAlreadyStarted()
		}
		a = *existing
	}

	dev, err := h.registerDevice(ctx, device.RegisterParams{
		UserUUID:    p.UserUUID,
		Fingerprint: p.Fingerprint,
		UserAgent:   p.UserAgent,
		IPAddress:   p.IPAddress,
		IsVPN:       p.IsVPN,
	})
	if err != nil {
		return attempt.Attempt{}, err
	}
	if _, err := h.acquireLock(ctx, id, dev.UUID, now); err != nil {
		return attempt.Attempt{}, err
	}

	err = a.Start(ex, now)
	if err == nil {
		err = h.store.save(ctx, &a)
	}
	if err != nil {
		if relErr := h.releaseLock(ctx, id, device.LockReleased, now); relErr != nil {
			log.Warn("failed to release device lock", "error", relErr)
		}
		return attempt.Attempt{}, err
	}

	log.Info("attempt started", "exam_id", a.ExamID, "device_uuid", dev.UUID, "trust_score", dev.TrustScore)
	return a, nil
}
