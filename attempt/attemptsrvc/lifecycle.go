package attemptsrvc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/exam"
	"github.com/programme-lv/proctor/logger"
	"github.com/programme-lv/proctor/srvcerror"
	"github.com/programme-lv/proctor/violation"
)

type DisqualifyParams struct {
	AttemptUUID uuid.UUID
	Reason      string
}

type disqualifyHandler struct {
	store attemptStore
	fx    effects
	now   func() time.Time
}

func newDisqualifyHandler(store attemptStore, fx effects, now func() time.Time) DisqualifyCmd {
	return disqualifyHandler{store: store, fx: fx, now: now}
}

func (h disqualifyHandler) Handle(ctx context.Context, p DisqualifyParams) (attempt.Attempt, error) {
	if p.Reason == "" {
		return attempt.Attempt{}, srvcerror.ErrInvalidRequest("disqualification reason is required")
	}
	changed := false
	a, err := h.store.update(ctx, p.AttemptUUID, func(ctx context.Context, a *attempt.Attempt, ex exam.Exam) ([]violation.Violation, error) {
		var err error
		changed, err = a.Disqualify(p.Reason, h.now())
		if err != nil {
			return nil, err
		}
		if !changed {
			return nil, errUnchanged
		}
		return nil, nil
	})
	if err != nil {
		return attempt.Attempt{}, err
	}
	if changed {
		h.fx.afterDisqualify(ctx, a)
	}
	return a, nil
}

type SubmitAttemptParams struct {
	AttemptUUID uuid.UUID
	UserUUID    uuid.UUID
}

type submitAttemptHandler struct {
	store  attemptStore
	scorer attemptScorer
	fx     effects
	now    func() time.Time
}

func newSubmitAttemptHandler(store attemptStore, scorer attemptScorer, fx effects, now func() time.Time) SubmitAttemptCmd {
	return submitAttemptHandler{store: store, scorer: scorer, fx: fx, now: now}
}

// Handle hands the attempt in and scores it. Submitting again returns
// the stored result.
func (h submitAttemptHandler) Handle(ctx context.Context, p SubmitAttemptParams) (attempt.Attempt, error) {
	submitted := false
	a, err := h.store.update(ctx, p.AttemptUUID, func(ctx context.Context, a *attempt.Attempt, ex exam.Exam) ([]violation.Violation, error) {
		if err := requireOwner(a, p.UserUUID); err != nil {
			return nil, err
		}
		done, err := a.Submit(h.now())
		if err != nil {
			return nil, err
		}
		if done {
			return nil, errUnchanged
		}
		h.scorer.score(ctx, a, ex)
		a.Settle()
		submitted = true
		return nil, nil
	})
	if err != nil {
		return attempt.Attempt{}, err
	}
	if submitted {
		logger.FromContext(ctx).Info("attempt submitted",
			"attempt_uuid", a.UUID, "status", a.Status, "weighted_score", a.WeightedScore.String())
		h.fx.afterClose(ctx, a)
	}
	return a, nil
}

type ExpireAttemptParams struct {
	AttemptUUID uuid.UUID
}

type expireAttemptHandler struct {
	store  attemptStore
	scorer attemptScorer
	fx     effects
	now    func() time.Time
}

func newExpireAttemptHandler(store attemptStore, scorer attemptScorer, fx effects, now func() time.Time) ExpireAttemptCmd {
	return expireAttemptHandler{store: store, scorer: scorer, fx: fx, now: now}
}

// Handle force-closes an attempt past its deadline. Attempts that are
// no longer running are returned unchanged.
func (h expireAttemptHandler) Handle(ctx context.Context, p ExpireAttemptParams) (attempt.Attempt, error) {
	closed := false
	a, err := h.store.update(ctx, p.AttemptUUID, func(ctx context.Context, a *attempt.Attempt, ex exam.Exam) ([]violation.Violation, error) {
		if a.Status != attempt.StatusInProgress {
			return nil, errUnchanged
		}
		needsScoring, err := a.Expire(ex, h.now())
		if err != nil {
			return nil, err
		}
		if needsScoring {
			h.scorer.score(ctx, a, ex)
			a.Settle()
		}
		closed = true
		return nil, nil
	})
	if err != nil {
		return attempt.Attempt{}, err
	}
	if closed {
		logger.FromContext(ctx).Info("attempt expired", "attempt_uuid", a.UUID, "status", a.Status)
		h.fx.afterClose(ctx, a)
	}
	return a, nil
}

type AbandonAttemptParams struct {
	AttemptUUID uuid.UUID
	UserUUID    uuid.UUID
}

type abandonAttemptHandler struct {
	store attemptStore
	fx    effects
	now   func() time.Time
}

func newAbandonAttemptHandler(store attemptStore, fx effects, now func() time.Time) AbandonAttemptCmd {
	return abandonAttemptHandler{store: store, fx: fx, now: now}
}

func (h abandonAttemptHandler) Handle(ctx context.Context, p AbandonAttemptParams) (attempt.Attempt, error) {
	a, err := h.store.update(ctx, p.AttemptUUID, func(ctx context.Context, a *attempt.Attempt, ex exam.Exam) ([]violation.Violation, error) {
		if err := requireOwner(a, p.UserUUID); err != nil {
			return nil, err
		}
		return nil, a.Abandon(h.now())
	})
	if err != nil {
		return attempt.Attempt{}, err
	}
	h.fx.afterClose(ctx, a)
	return a, nil
}
