package httpjson

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/programme-lv/proctor/srvcerror"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeValidJson is DecodeJson followed by struct tag validation.
func DecodeValidJson(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !DecodeJson(w, r, dst) {
		return false
	}
	if err := validate.Struct(dst); err != nil {
		WriteErrorJson(w, validationMessage(err), http.StatusBadRequest, srvcerror.ErrCodeInvalidRequest)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
