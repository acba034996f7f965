package attemptsrvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/exam"
	"github.com/programme-lv/proctor/violation"
)

type SubmitAnswerParams struct {
	AttemptUUID  uuid.UUID
	UserUUID     uuid.UUID
	SectionID    string
	QuestionID   string
	Payload      json.RawMessage
	TimeSpentSec int
	Flagged      bool
}

type submitAnswerHandler struct {
	store attemptStore
	now   func() time.Time
}

func newSubmitAnswerHandler(store attemptStore, now func() time.Time) SubmitAnswerCmd {
	return submitAnswerHandler{store: store, now: now}
}

func (h submitAnswerHandler) Handle(ctx context.Context, p SubmitAnswerParams) (attempt.Answer, error) {
	var ans attempt.Answer
	_, err := h.store.update(ctx, p.AttemptUUID, func(ctx context.Context, a *attempt.Attempt, ex exam.Exam) ([]violation.Violation, error) {
		if err := requireOwner(a, p.UserUUID); err != nil {
			return nil, err
		}
		var err error
		ans, err = a.PutAnswer(ex, attempt.AnswerInput{
			SectionID:    p.SectionID,
			QuestionID:   p.QuestionID,
			Payload:      p.Payload,
			TimeSpentSec: p.TimeSpentSec,
			Flagged:      p.Flagged,
		}, h.now())
		return nil, err
	})
	if err != nil {
		return attempt.Answer{}, err
	}
	return ans, nil
}

type AdvanceSectionParams struct {
	AttemptUUID uuid.UUID
	UserUUID    uuid.UUID
}

type advanceSectionHandler struct {
	store attemptStore
	now   func() time.Time
}

func newAdvanceSectionHandler(store attemptStore, now func() time.Time) AdvanceSectionCmd {
	return advanceSectionHandler{store: store, now: now}
}

func (h advanceSectionHandler) Handle(ctx context.Context, p AdvanceSectionParams) (attempt.Attempt, error) {
	return h.store.update(ctx, p.AttemptUUID, func(ctx context.Context, a *attempt.Attempt, ex exam.Exam) ([]violation.Violation, error) {
		if err := requireOwner(a, p.UserUUID); err != nil {
			return nil, err
		}
		return nil, a.AdvanceSection(ex, h.now())
	})
}
