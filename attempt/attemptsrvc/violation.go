package attemptsrvc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/device"
	"github.com/programme-lv/proctor/exam"
	"github.com/programme-lv/proctor/logger"
	"github.com/programme-lv/proctor/violation"
)

type violationRecorder struct {
	findViolation func(ctx context.Context, attemptUUID uuid.UUID, t violation.Type) (*violation.Violation, error)
}

type occurrence struct {
	rawType    string
	deviceUUID *uuid.UUID
	details    string
}

// record adds one occurrence to the attempt's violation of that type,
// escalates it and disqualifies the attempt when the exam's limits say
// so. The caller stores the returned violation with the attempt.
func (r violationRecorder) record(ctx context.Context, a *attempt.Attempt, ex exam.Exam, o occurrence, now time.Time) (violation.Violation, bool, error) {
	if err := a.RequireInProgress("record a violation"); err != nil {
		return violation.Violation{}, false, err
	}
	t := violation.ParseType(o.rawType)
	stored, err := r.findViolation(ctx, a.UUID, t)
	if err != nil {
		return violation.Violation{}, false, fmt.Errorf("failed to find violation: %w", err)
	}
	v := violation.New(a.UUID, o.rawType, now)
	if stored != nil {
		v = *stored
	}
	if o.deviceUUID != nil {
		v.DeviceUUID = o.deviceUUID
	}
	if o.details != "" {
		v.Details = o.details
	}
	if err := v.Occur(now); err != nil {
		return violation.Violation{}, false, err
	}

	reason, dq := a.RegisterViolation(v, ex.AntiCheat)
	switch {
	case dq:
		if _, err := a.Disqualify(reason, now); err != nil {
			return violation.Violation{}, false, err
		}
		v.Action = violation.ActionDisqualified
	default:
		v.Action = violation.ActionWarningSent
	}

	logger.FromContext(ctx).Info("violation recorded",
		"type", v.Type, "count", v.Count, "severity", v.Severity, "action", v.Action)
	return v, dq, nil
}

type RecordViolationParams struct {
	AttemptUUID uuid.UUID
	// UserUUID restricts the call to the attempt's owner; uuid.Nil is
	// used by the proctoring backend itself.
	UserUUID   uuid.UUID
	Type       string
	DeviceUUID *uuid.UUID
	Details    string
}

type ViolationOutcome struct {
	Violation    violation.Violation
	Attempt      attempt.Attempt
	Disqualified bool
}

type recordViolationHandler struct {
	store                 attemptStore
	recorder              violationRecorder
	fx                    effects
	recordDeviceViolation func(ctx context.Context, id uuid.UUID) (device.Device, error)
	now                   func() time.Time
}

func newRecordViolationHandler(
	store attemptStore,
	recorder violationRecorder,
	fx effects,
	recordDeviceViolation func(ctx context.Context, id uuid.UUID) (device.Device, error),
	now func() time.Time,
) RecordViolationCmd {
	return recordViolationHandler{
		store:                 store,
		recorder:              recorder,
		fx:                    fx,
		recordDeviceViolation: recordDeviceViolation,
		now:                   now,
	}
}

func (h recordViolationHandler) Handle(ctx context.Context, p RecordViolationParams) (ViolationOutcome, error) {
	var out ViolationOutcome
	a, err := h.store.update(ctx, p.AttemptUUID, func(ctx context.Context, a *attempt.Attempt, ex exam.Exam) ([]violation.Violation, error) {
		if p.UserUUID != uuid.Nil {
			if err := requireOwner(a, p.UserUUID); err != nil {
				return nil, err
			}
		}
		v, dq, err := h.recorder.record(ctx, a, ex, occurrence{
			rawType:    p.Type,
			deviceUUID: p.DeviceUUID,
			details:    p.Details,
		}, h.now())
		if err != nil {
			return nil, err
		}
		out.Violation = v
		out.Disqualified = dq
		return []violation.Violation{v}, nil
	})
	if err != nil {
		return ViolationOutcome{}, err
	}
	out.Attempt = a

	if p.DeviceUUID != nil {
		if _, err := h.recordDeviceViolation(ctx, *p.DeviceUUID); err != nil {
			logger.FromContext(ctx).Warn("failed to lower device trust", "device_uuid", *p.DeviceUUID, "error", err)
		}
	}
	if out.Disqualified {
		h.fx.afterDisqualify(ctx, a)
	}
	return out, nil
}

type VerifyDeviceParams struct {
	AttemptUUID uuid.UUID
	UserUUID    uuid.UUID
	Fingerprint device.Fingerprint
	IsVPN       bool
}

type DeviceCheck struct {
	Similarity int
	Threshold  int
	Violations []violation.Violation
	Attempt    attempt.Attempt
}

type verifyDeviceHandler struct {
	store           attemptStore
	getActiveLock   func(ctx context.Context, attemptUUID uuid.UUID) (*device.Lock, error)
	getDevice       func(ctx context.Context, id uuid.UUID) (device.Device, error)
	recordViolation func(ctx context.Context, p RecordViolationParams) (ViolationOutcome, error)
}

func newVerifyDeviceHandler(
	store attemptStore,
	getActiveLock func(ctx context.Context, attemptUUID uuid.UUID) (*device.Lock, error),
	getDevice func(ctx context.Context, id uuid.UUID) (device.Device, error),
	recordViolation func(ctx context.Context, p RecordViolationParams) (ViolationOutcome, error),
) VerifyDeviceCmd {
	return verifyDeviceHandler{
		store:           store,
		getActiveLock:   getActiveLock,
		getDevice:       getDevice,
		recordViolation: recordViolation,
	}
}

// Handle compares the fingerprint the client reports now with the one
// of the device the attempt is locked to.
func (h verifyDeviceHandler) Handle(ctx context.Context, p VerifyDeviceParams) (DeviceCheck, error) {
	a, ex, err := h.store.load(ctx, p.AttemptUUID)
	if err != nil {
		return DeviceCheck{}, err
	}
	if err := requireOwner(a, p.UserUUID); err != nil {
		return DeviceCheck{}, err
	}
	if err := a.RequireInProgress("verify the device"); err != nil {
		return DeviceCheck{}, err
	}

	lock, err := h.getActiveLock(ctx, a.UUID)
	if err != nil {
		return DeviceCheck{}, fmt.Errorf("failed to get device lock: %w", err)
	}
	if lock == nil {
		return DeviceCheck{}, device.ErrDeviceNotFound()
	}
	locked, err := h.getDevice(ctx, lock.DeviceUUID)
	if err != nil {
		return DeviceCheck{}, err
	}

	res := DeviceCheck{
		Similarity: device.EvaluateMatch(locked.Fingerprint, p.Fingerprint),
		Threshold:  ex.AntiCheat.DeviceSimilarityThreshold,
		Attempt:    *a,
	}
	if res.Similarity < res.Threshold {
		out, err := h.recordViolation(ctx, RecordViolationParams{
			AttemptUUID: a.UUID,
			Type:        string(violation.TypeMultiDevice),
			DeviceUUID:  &lock.DeviceUUID,
			Details:     fmt.Sprintf("device similarity %d is below %d", res.Similarity, res.Threshold),
		})
		if err != nil {
			return DeviceCheck{}, err
		}
		res.Violations = append(res.Violations, out.Violation)
		res.Attempt = out.Attempt
	}
	if p.IsVPN && res.Attempt.Status == attempt.StatusInProgress {
		out, err := h.recordViolation(ctx, RecordViolationParams{
			AttemptUUID: a.UUID,
			Type:        string(violation.TypeVpnDetected),
			DeviceUUID:  &lock.DeviceUUID,
			Details:     "connection through a vpn",
		})
		if err != nil {
			return DeviceCheck{}, err
		}
		res.Violations = append(res.Violations, out.Violation)
		res.Attempt = out.Attempt
	}
	return res, nil
}
