package attempthttp

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/programme-lv/proctor/attempt/attemptsrvc"
	"github.com/programme-lv/proctor/httpjson"
	"github.com/shopspring/decimal"
)

func (h *AttemptHttpHandler) ListExpired(w http.ResponseWriter, r *http.Request) {
	list, err := h.srvc.ListExpired.Handle(r.Context(), attemptsrvc.ListExpiredParams{
		ExamID: chi.URLParam(r, "examID"),
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	res := make([]Attempt, 0, len(list))
	for _, a := range list {
		res = append(res, mapAttempt(a))
	}
	httpjson.WriteSuccessJson(w, res)
}

type disqualifyRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

func (h *AttemptHttpHandler) Disqualify(w http.ResponseWriter, r *http.Request) {
	attemptUUID, err := attemptParam(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	var req disqualifyRequest
	if !httpjson.DecodeValidJson(w, r, &req) {
		return
	}
	a, err := h.srvc.Disqualify.Handle(r.Context(), attemptsrvc.DisqualifyParams{
		AttemptUUID: attemptUUID,
		Reason:      req.Reason,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapAttempt(a))
}

func (h *AttemptHttpHandler) ExpireAttempt(w http.ResponseWriter, r *http.Request) {
	attemptUUID, err := attemptParam(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	a, err := h.srvc.ExpireAttempt.Handle(r.Context(), attemptsrvc.ExpireAttemptParams{AttemptUUID: attemptUUID})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapAttempt(a))
}

func (h *AttemptHttpHandler) CompleteGrading(w http.ResponseWriter, r *http.Request) {
	attemptUUID, err := attemptParam(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	a, err := h.srvc.CompleteGrading.Handle(r.Context(), attemptsrvc.CompleteGradingParams{AttemptUUID: attemptUUID})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapAttempt(a))
}

func (h *AttemptHttpHandler) CheckLiveness(w http.ResponseWriter, r *http.Request) {
	attemptUUID, err := attemptParam(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	live, err := h.srvc.CheckLiveness.Handle(r.Context(), attemptsrvc.CheckLivenessParams{AttemptUUID: attemptUUID})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapLiveness(live))
}

type gradeAnswerRequest struct {
	Points  decimal.Decimal `json:"points"`
	Correct *bool           `json:"correct"`
	Regrade bool            `json:"regrade"`
}

func (h *AttemptHttpHandler) GradeAnswer(w http.ResponseWriter, r *http.Request) {
	attemptUUID, err := attemptParam(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	var req gradeAnswerRequest
	if !httpjson.DecodeJson(w, r, &req) {
		return
	}
	a, err := h.srvc.GradeAnswer.Handle(r.Context(), attemptsrvc.GradeAnswerParams{
		AttemptUUID: attemptUUID,
		QuestionID:  chi.URLParam(r, "questionID"),
		Points:      req.Points,
		Correct:     req.Correct,
		Regrade:     req.Regrade,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapAttempt(a))
}
