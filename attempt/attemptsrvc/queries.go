package attemptsrvc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/exam"
	"github.com/programme-lv/proctor/logger"
	"github.com/programme-lv/proctor/violation"
)

type GetAttemptParams struct {
	AttemptUUID uuid.UUID
	// UserUUID limits the lookup to the owner's attempts; uuid.Nil
	// disables the check for proctors.
	UserUUID uuid.UUID
}

type getAttemptHandler struct {
	store attemptStore
}

func newGetAttemptHandler(store attemptStore) GetAttemptQuery {
	return getAttemptHandler{store: store}
}

func (h getAttemptHandler) Handle(ctx context.Context, p GetAttemptParams) (attempt.Attempt, error) {
	a, _, err := h.store.load(ctx, p.AttemptUUID)
	if err != nil {
		return attempt.Attempt{}, err
	}
	if p.UserUUID != uuid.Nil {
		if err := requireOwner(a, p.UserUUID); err != nil {
			return attempt.Attempt{}, err
		}
	}
	return *a, nil
}

type GetRemainingTimeParams struct {
	AttemptUUID uuid.UUID
	UserUUID    uuid.UUID
}

type getRemainingTimeHandler struct {
	store attemptStore
	now   func() time.Time
}

func newGetRemainingTimeHandler(store attemptStore, now func() time.Time) GetRemainingTimeQuery {
	return getRemainingTimeHandler{store: store, now: now}
}

func (h getRemainingTimeHandler) Handle(ctx context.Context, p GetRemainingTimeParams) (Remaining, error) {
	a, ex, err := h.store.load(ctx, p.AttemptUUID)
	if err != nil {
		return Remaining{}, err
	}
	if err := requireOwner(a, p.UserUUID); err != nil {
		return Remaining{}, err
	}
	return remainingOf(a, ex, h.now()), nil
}

type ListExpiredParams struct {
	// ExamID narrows the listing; empty means every exam.
	ExamID string
}

type listExpiredHandler struct {
	listInProgress func(ctx context.Context, examID string) ([]attempt.Attempt, error)
	getExam        func(ctx context.Context, examID string) (exam.Exam, error)
	now            func() time.Time
}

func newListExpiredHandler(
	listInProgress func(ctx context.Context, examID string) ([]attempt.Attempt, error),
	getExam func(ctx context.Context, examID string) (exam.Exam, error),
	now func() time.Time,
) ListExpiredQuery {
	return listExpiredHandler{listInProgress: listInProgress, getExam: getExam, now: now}
}

// Handle lists running attempts whose deadline has passed.
func (h listExpiredHandler) Handle(ctx context.Context, p ListExpiredParams) ([]attempt.Attempt, error) {
	running, err := h.listInProgress(ctx, p.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts in progress: %w", err)
	}
	now := h.now()
	exams := map[string]exam.Exam{}
	res := []attempt.Attempt{}
	for i := range running {
		a := &running[i]
		ex, ok := exams[a.ExamID]
		if !ok {
			ex, err = h.getExam(ctx, a.ExamID)
			if err != nil {
				logger.FromContext(ctx).Warn("skipping attempts of unknown exam",
					"exam_id", a.ExamID, "error", err)
				continue
			}
			exams[a.ExamID] = ex
		}
		if a.IsExpired(ex, now) {
			res = append(res, *a)
		}
	}
	return res, nil
}

type ListViolationsParams struct {
	AttemptUUID uuid.UUID
	UserUUID    uuid.UUID // uuid.Nil for proctors
}

type listViolationsHandler struct {
	store          attemptStore
	listViolations func(ctx context.Context, attemptUUID uuid.UUID) ([]violation.Violation, error)
}

func newListViolationsHandler(
	store attemptStore,
	listViolations func(ctx context.Context, attemptUUID uuid.UUID) ([]violation.Violation, error),
) ListViolationsQuery {
	return listViolationsHandler{store: store, listViolations: listViolations}
}

func (h listViolationsHandler) Handle(ctx context.Context, p ListViolationsParams) ([]violation.Violation, error) {
	a, _, err := h.store.load(ctx, p.AttemptUUID)
	if err != nil {
		return nil, err
	}
	if p.UserUUID != uuid.Nil {
		if err := requireOwner(a, p.UserUUID); err != nil {
			return nil, err
		}
	}
	vs, err := h.listViolations(ctx, a.UUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	return vs, nil
}
