package exam

import (
	"fmt"
	"net/http"

	"github.com/programme-lv/proctor/srvcerror"
)

const ErrCodeExamNotFound = "exam_not_found"

func newErrExamNotFound(examID string) *srvcerror.Error {
	return srvcerror.New(
		ErrCodeExamNotFound,
		fmt.Sprintf("exam %q is not configured", examID),
	).SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeInvalidExamConfig = "invalid_exam_config"

func newErrInvalidExamConfig(details string) *srvcerror.Error {
	return srvcerror.New(
		ErrCodeInvalidExamConfig,
		fmt.Sprintf("invalid exam configuration: %s", details),
	).SetHttpStatusCode(http.StatusInternalServerError)
}
