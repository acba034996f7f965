package attemptsrvc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/exam"
	"github.com/programme-lv/proctor/srvcerror"
	"github.com/programme-lv/proctor/violation"
	"github.com/shopspring/decimal"
)

type GradeAnswerParams struct {
	AttemptUUID uuid.UUID
	QuestionID  string
	Points      decimal.Decimal
	// Correct defaults to whether Points equals the question maximum.
	Correct *bool
	// Regrade must be set to change an answer that already has a grade.
	Regrade bool
}

type gradeAnswerHandler struct {
	store  attemptStore
	scorer attemptScorer
	fx     effects
	now    func() time.Time
}

func newGradeAnswerHandler(store attemptStore, scorer attemptScorer, fx effects, now func() time.Time) GradeAnswerCmd {
	return gradeAnswerHandler{store: store, scorer: scorer, fx: fx, now: now}
}

func (h gradeAnswerHandler) Handle(ctx context.Context, p GradeAnswerParams) (attempt.Attempt, error) {
	a, err := h.store.update(ctx, p.AttemptUUID, func(ctx context.Context, a *attempt.Attempt, ex exam.Exam) ([]violation.Violation, error) {
		if !a.Status.IsScored() {
			return nil, attempt.ErrInvalidTransition(a.Status, "grade an answer")
		}
		ans, q, err := findAnswer(a, ex, p.QuestionID)
		if err != nil {
			return nil, err
		}
		if ans.Graded && !p.Regrade {
			return nil, attempt.ErrAnswerAlreadyGraded()
		}
		maxPoints := q.MaxPointsDec()
		if p.Points.IsNegative() || p.Points.GreaterThan(maxPoints) {
			return nil, srvcerror.ErrInvalidRequest(
				fmt.Sprintf("points must be between 0 and %s", maxPoints.String()))
		}

		now := h.now()
		correct := p.Points.Equal(maxPoints)
		if p.Correct != nil {
			correct = *p.Correct
		}
		ans.PointsEarned = p.Points
		ans.IsCorrect = &correct
		ans.Graded = true
		ans.GradedAt = &now
		ans.RequiresManualGrading = false

		h.scorer.score(ctx, a, ex)
		if a.Status != attempt.StatusSubmitted {
			a.Settle()
		}
		return nil, nil
	})
	if err != nil {
		return attempt.Attempt{}, err
	}
	if a.Status == attempt.StatusGraded {
		h.fx.refreshLeaderboard(ctx, a.ExamID)
	}
	return a, nil
}

func findAnswer(a *attempt.Attempt, ex exam.Exam, questionID string) (*attempt.Answer, exam.Question, error) {
	for i := range a.Sections {
		sa := &a.Sections[i]
		ans := sa.Answer(questionID)
		if ans == nil {
			continue
		}
		def, ok := ex.Section(sa.SectionID)
		if !ok {
			break
		}
		q, ok := def.Question(questionID)
		if !ok {
			break
		}
		return ans, q, nil
	}
	return nil, exam.Question{}, attempt.ErrQuestionNotFound(questionID)
}

type CompleteGradingParams struct {
	AttemptUUID uuid.UUID
}

type completeGradingHandler struct {
	store  attemptStore
	scorer attemptScorer
	fx     effects
}

func newCompleteGradingHandler(store attemptStore, scorer attemptScorer, fx effects) CompleteGradingCmd {
	return completeGradingHandler{store: store, scorer: scorer, fx: fx}
}

// Handle closes grading of an attempt. A submitted attempt, such as one
// just reinstated, is scored first.
func (h completeGradingHandler) Handle(ctx context.Context, p CompleteGradingParams) (attempt.Attempt, error) {
	a, err := h.store.update(ctx, p.AttemptUUID, func(ctx context.Context, a *attempt.Attempt, ex exam.Exam) ([]violation.Violation, error) {
		switch a.Status {
		case attempt.StatusGraded:
			return nil, errUnchanged
		case attempt.StatusSubmitted:
			h.scorer.score(ctx, a, ex)
			a.Settle()
			return nil, nil
		case attempt.StatusGrading:
			pending := 0
			for _, sa := range a.Sections {
				pending += sa.PendingAnswers()
			}
			if pending > 0 {
				return nil, attempt.ErrGradingIncomplete(pending)
			}
			if h.scorer.score(ctx, a, ex) {
				return nil, attempt.ErrGradingIncomplete(0)
			}
			a.Settle()
			return nil, nil
		default:
			return nil, attempt.ErrInvalidTransition(a.Status, "complete grading")
		}
	})
	if err != nil {
		return attempt.Attempt{}, err
	}
	h.fx.refreshLeaderboard(ctx, a.ExamID)
	return a, nil
}

type ReinstateParams struct {
	AttemptUUID uuid.UUID
}

type reinstateHandler struct {
	store  attemptStore
	scorer attemptScorer
	fx     effects
}

func newReinstateHandler(store attemptStore, scorer attemptScorer, fx effects) ReinstateCmd {
	return reinstateHandler{store: store, scorer: scorer, fx: fx}
}

// Handle lifts a disqualification. The attempt is rescored but stays
// submitted until grading is completed; the caller refreshes the
// leaderboard.
func (h reinstateHandler) Handle(ctx context.Context, p ReinstateParams) (attempt.Attempt, error) {
	res, err := h.store.update(ctx, p.AttemptUUID, func(ctx context.Context, a *attempt.Attempt, ex exam.Exam) ([]violation.Violation, error) {
		if err := a.Reinstate(); err != nil {
			return nil, err
		}
		h.scorer.score(ctx, a, ex)
		return nil, nil
	})
	if err != nil {
		return attempt.Attempt{}, err
	}
	h.fx.afterReinstate(ctx, res)
	return res, nil
}
