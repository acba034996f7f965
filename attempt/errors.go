package attempt

import (
	"fmt"
	"net/http"

	"github.com/programme-lv/proctor/srvcerror"
)

const ErrCodeAlreadyStarted = "already_started"

func ErrAlreadyStarted() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeAlreadyStarted,
		"the attempt has already been started",
	).SetHttpStatusCode(http.StatusConflict)
}

const ErrCodeNotStarted = "not_started"

func ErrNotStarted() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeNotStarted,
		"the attempt has not been started",
	).SetHttpStatusCode(http.StatusConflict)
}

const ErrCodeAttemptExpired = "attempt_expired"

func ErrAttemptExpired() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeAttemptExpired,
		"the time for this attempt has run out",
	).SetHttpStatusCode(http.StatusGone)
}

const ErrCodeSectionTimeOver = "section_time_over"

func ErrSectionTimeOver(sectionID string) *srvcerror.Error {
	return srvcerror.New(
		ErrCodeSectionTimeOver,
		fmt.Sprintf("the time for section %q has run out", sectionID),
	).SetHttpStatusCode(http.StatusGone)
}

const ErrCodeInvalidTransition = "invalid_transition"

func ErrInvalidTransition[S ~string](from S, action string) *srvcerror.Error {
	return srvcerror.New(
		ErrCodeInvalidTransition,
		fmt.Sprintf("cannot %s in state %s", action, from),
	).SetHttpStatusCode(http.StatusConflict)
}

const ErrCodeSectionNotConfigured = "section_not_configured"

func ErrSectionNotConfigured() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeSectionNotConfigured,
		"the exam has no sections configured",
	).SetHttpStatusCode(http.StatusUnprocessableEntity)
}

const ErrCodeSectionNotActive = "section_not_active"

func ErrSectionNotActive(sectionID string) *srvcerror.Error {
	return srvcerror.New(
		ErrCodeSectionNotActive,
		fmt.Sprintf("section %q is not the current section", sectionID),
	).SetHttpStatusCode(http.StatusConflict)
}

const ErrCodeRegistrationNotConfirmed = "registration_not_confirmed"

func ErrRegistrationNotConfirmed() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeRegistrationNotConfirmed,
		"the exam registration is not confirmed",
	).SetHttpStatusCode(http.StatusForbidden)
}

const ErrCodeAttemptNotFound = "attempt_not_found"

func ErrAttemptNotFound() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeAttemptNotFound,
		"attempt not found",
	).SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeQuestionNotFound = "question_not_found"

func ErrQuestionNotFound(questionID string) *srvcerror.Error {
	return srvcerror.New(
		ErrCodeQuestionNotFound,
		fmt.Sprintf("question %q not found", questionID),
	).SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeAnswerAlreadyGraded = "answer_already_graded"

func ErrAnswerAlreadyGraded() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeAnswerAlreadyGraded,
		"the answer has already been graded, request a re-grade to change it",
	).SetHttpStatusCode(http.StatusConflict)
}

const ErrCodeGradingIncomplete = "grading_incomplete"

func ErrGradingIncomplete(pending int) *srvcerror.Error {
	return srvcerror.New(
		ErrCodeGradingIncomplete,
		fmt.Sprintf("%d answers are still awaiting a grade", pending),
	).SetHttpStatusCode(http.StatusConflict)
}

func ErrNoOpenSection() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeInvalidTransition,
		"all sections are completed, submit the attempt",
	).SetHttpStatusCode(http.StatusConflict)
}

func ErrNotExpired() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeInvalidTransition,
		"the attempt has not run out of time yet",
	).SetHttpStatusCode(http.StatusConflict)
}
