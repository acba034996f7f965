package attemptsrvc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/device"
	"github.com/programme-lv/proctor/exam"
	"github.com/programme-lv/proctor/violation"
)

type Remaining struct {
	Status attempt.Status
	Total  time.Duration
	// Section is nil when the current section has no limit of its own.
	Section *time.Duration
	Expired bool
}

func remainingOf(a *attempt.Attempt, ex exam.Exam, now time.Time) Remaining {
	res := Remaining{
		Status:  a.Status,
		Total:   a.TimeRemaining(ex, now),
		Expired: a.IsExpired(ex, now),
	}
	if rem, limited := a.SectionTimeRemaining(ex, now); limited {
		res.Section = &rem
	}
	return res
}

type RecordHeartbeatParams struct {
	AttemptUUID uuid.UUID
	UserUUID    uuid.UUID
	// Fingerprint, when present, is checked against the locked device.
	Fingerprint *device.Fingerprint
	IsVPN       bool
}

type recordHeartbeatHandler struct {
	store        attemptStore
	verifyDevice func(ctx context.Context, p VerifyDeviceParams) (DeviceCheck, error)
	expire       func(ctx context.Context, p ExpireAttemptParams) (attempt.Attempt, error)
	now          func() time.Time
}

func newRecordHeartbeatHandler(
	store attemptStore,
	verifyDevice func(ctx context.Context, p VerifyDeviceParams) (DeviceCheck, error),
	expire func(ctx context.Context, p ExpireAttemptParams) (attempt.Attempt, error),
	now func() time.Time,
) RecordHeartbeatCmd {
	return recordHeartbeatHandler{
		store:        store,
		verifyDevice: verifyDevice,
		expire:       expire,
		now:          now,
	}
}

// Handle keeps the attempt alive and tells the client how much time is
// left. A heartbeat arriving after the deadline closes the attempt.
func (h recordHeartbeatHandler) Handle(ctx context.Context, p RecordHeartbeatParams) (Remaining, error) {
	a, ex, err := h.store.load(ctx, p.AttemptUUID)
	if err != nil {
		return Remaining{}, err
	}
	if err := requireOwner(a, p.UserUUID); err != nil {
		return Remaining{}, err
	}

	if a.Status == attempt.StatusInProgress && a.IsExpired(ex, h.now()) {
		closed, err := h.expire(ctx, ExpireAttemptParams{AttemptUUID: a.UUID})
		if err != nil {
			return Remaining{}, err
		}
		res := remainingOf(&closed, ex, h.now())
		res.Expired = true
		return res, nil
	}

	updated, err := h.store.update(ctx, a.UUID, func(ctx context.Context, a *attempt.Attempt, ex exam.Exam) ([]violation.Violation, error) {
		return nil, a.Heartbeat(h.now())
	})
	if err != nil {
		return Remaining{}, err
	}

	if p.Fingerprint != nil {
		check, err := h.verifyDevice(ctx, VerifyDeviceParams{
			AttemptUUID: a.UUID,
			UserUUID:    p.UserUUID,
			Fingerprint: *p.Fingerprint,
			IsVPN:       p.IsVPN,
		})
		if err != nil {
			return Remaining{}, fmt.Errorf("failed to verify device: %w", err)
		}
		updated = check.Attempt
	}
	return remainingOf(&updated, ex, h.now()), nil
}

type CheckLivenessParams struct {
	AttemptUUID uuid.UUID
}

type Liveness struct {
	Missed    int
	Limit     int
	Violation *violation.Violation
	Attempt   attempt.Attempt
}

type checkLivenessHandler struct {
	store    attemptStore
	recorder violationRecorder
	fx       effects
	now      func() time.Time
}

func newCheckLivenessHandler(store attemptStore, recorder violationRecorder, fx effects, now func() time.Time) CheckLivenessCmd {
	return checkLivenessHandler{store: store, recorder: recorder, fx: fx, now: now}
}

// Handle records a heartbeat_miss once the participant has been silent
// for more intervals than the exam allows. The silence window restarts
// after each recorded miss.
func (h checkLivenessHandler) Handle(ctx context.Context, p CheckLivenessParams) (Liveness, error) {
	var res Liveness
	var dq bool
	a, err := h.store.update(ctx, p.AttemptUUID, func(ctx context.Context, a *attempt.Attempt, ex exam.Exam) ([]violation.Violation, error) {
		now := h.now()
		res.Limit = ex.AntiCheat.MissedHeartbeatsLimit
		if a.Status != attempt.StatusInProgress {
			return nil, errUnchanged
		}
		res.Missed = a.MissedHeartbeats(ex.AntiCheat.HeartbeatInterval(), now)
		if res.Missed <= res.Limit {
			return nil, errUnchanged
		}
		v, disqualified, err := h.recorder.record(ctx, a, ex, occurrence{
			rawType: string(violation.TypeHeartbeatMiss),
			details: fmt.Sprintf("%d heartbeats missed", res.Missed),
		}, now)
		if err != nil {
			return nil, err
		}
		if a.Status == attempt.StatusInProgress {
			a.LastHeartbeatAt = &now
		}
		res.Violation = &v
		dq = disqualified
		return []violation.Violation{v}, nil
	})
	if err != nil {
		return Liveness{}, err
	}
	res.Attempt = a
	if dq {
		h.fx.afterDisqualify(ctx, a)
	}
	return res, nil
}
