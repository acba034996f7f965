package appeal

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/programme-lv/proctor/srvcerror"
)

// ErrOpenAppealExists is returned by repositories when a second open
// appeal is stored for the same violation.
var ErrOpenAppealExists = errors.New("violation already has an open appeal")

const ErrCodeAppealWindowClosed = "appeal_window_closed"

func ErrAppealWindowClosed(deadline time.Time) *srvcerror.Error {
	return srvcerror.New(
		ErrCodeAppealWindowClosed,
		fmt.Sprintf("appeals for this violation closed at %s", deadline.UTC().Format(time.RFC3339)),
	).SetHttpStatusCode(http.StatusForbidden)
}

const ErrCodeAppealNotFound = "appeal_not_found"

func ErrAppealNotFound() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeAppealNotFound,
		"appeal not found",
	).SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeViolationNotAppealable = "violation_not_appealable"

func ErrViolationNotAppealable(msg string) *srvcerror.Error {
	return srvcerror.New(
		ErrCodeViolationNotAppealable,
		msg,
	).SetHttpStatusCode(http.StatusUnprocessableEntity)
}

const ErrCodeViolationNotFound = "violation_not_found"

func ErrViolationNotFound() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeViolationNotFound,
		"violation not found",
	).SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeAppealAlreadyOpen = "appeal_already_open"

func ErrAppealAlreadyOpen() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeAppealAlreadyOpen,
		"an appeal against this violation is already open",
	).SetHttpStatusCode(http.StatusConflict)
}

const ErrCodeInvalidTransition = "invalid_transition"

func ErrInvalidTransition(from Status, action string) *srvcerror.Error {
	return srvcerror.New(
		ErrCodeInvalidTransition,
		fmt.Sprintf("cannot %s of an appeal in state %s", action, from),
	).SetHttpStatusCode(http.StatusConflict)
}

const ErrCodeEvidenceNotArchived = "evidence_not_archived"

func ErrEvidenceNotArchived() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeEvidenceNotArchived,
		"no evidence bundle was archived for this appeal",
	).SetHttpStatusCode(http.StatusNotFound)
}
