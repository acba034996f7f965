package attempthttp

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt/attemptsrvc"
	"github.com/programme-lv/proctor/auth"
	"github.com/programme-lv/proctor/device"
	"github.com/programme-lv/proctor/httpjson"
)

type startAttemptRequest struct {
	RegistrationID uuid.UUID          `json:"registration_id" validate:"required"`
	Fingerprint    device.Fingerprint `json:"fingerprint"`
	IsVPN          bool               `json:"is_vpn"`
}

func (h *AttemptHttpHandler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	user, _, err := auth.Caller(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	var req startAttemptRequest
	if !httpjson.DecodeValidJson(w, r, &req) {
		return
	}

	a, err := h.srvc.StartAttempt.Handle(r.Context(), attemptsrvc.StartAttemptParams{
		ExamID:         chi.URLParam(r, "examID"),
		UserUUID:       user,
		RegistrationID: req.RegistrationID,
		Fingerprint:    req.Fingerprint,
		UserAgent:      r.UserAgent(),
		IPAddress:      clientIP(r),
		IsVPN:          req.IsVPN,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	res := mapAttempt(a)
	res.SessionToken = a.SessionToken
	httpjson.WriteSuccessJson(w, res)
}

type submitAnswerRequest struct {
	SectionID    string          `json:"section_id" validate:"required"`
	QuestionID   string          `json:"question_id" validate:"required"`
	Payload      json.RawMessage `json:"payload" validate:"required"`
	TimeSpentSec int             `json:"time_spent_sec" validate:"gte=0"`
	Flagged      bool            `json:"flagged"`
}

func (h *AttemptHttpHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	user, attemptUUID, err := participantCall(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	var req submitAnswerRequest
	if !httpjson.DecodeValidJson(w, r, &req) {
		return
	}

	ans, err := h.srvc.SubmitAnswer.Handle(r.Context(), attemptsrvc.SubmitAnswerParams{
		AttemptUUID:  attemptUUID,
		UserUUID:     user,
		SectionID:    req.SectionID,
		QuestionID:   req.QuestionID,
		Payload:      req.Payload,
		TimeSpentSec: req.TimeSpentSec,
		Flagged:      req.Flagged,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapAnswer(ans))
}

func (h *AttemptHttpHandler) AdvanceSection(w http.ResponseWriter, r *http.Request) {
	user, attemptUUID, err := participantCall(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	a, err := h.srvc.AdvanceSection.Handle(r.Context(), attemptsrvc.AdvanceSectionParams{
		AttemptUUID: attemptUUID,
		UserUUID:    user,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapAttempt(a))
}

type recordViolationRequest struct {
	Type       string     `json:"type" validate:"required,max=64"`
	DeviceUUID *uuid.UUID `json:"device_uuid"`
	Details    string     `json:"details" validate:"max=2000"`
}

func (h *AttemptHttpHandler) RecordViolation(w http.ResponseWriter, r *http.Request) {
	user, attemptUUID, err := participantCall(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	var req recordViolationRequest
	if !httpjson.DecodeValidJson(w, r, &req) {
		return
	}

	out, err := h.srvc.RecordViolation.Handle(r.Context(), attemptsrvc.RecordViolationParams{
		AttemptUUID: attemptUUID,
		UserUUID:    user,
		Type:        req.Type,
		DeviceUUID:  req.DeviceUUID,
		Details:     req.Details,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapOutcome(out))
}

type heartbeatRequest struct {
	Fingerprint *device.Fingerprint `json:"fingerprint"`
	IsVPN       bool                `json:"is_vpn"`
}

func (h *AttemptHttpHandler) RecordHeartbeat(w http.ResponseWriter, r *http.Request) {
	user, attemptUUID, err := participantCall(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	var req heartbeatRequest
	if !httpjson.DecodeValidJson(w, r, &req) {
		return
	}

	rem, err := h.srvc.RecordHeartbeat.Handle(r.Context(), attemptsrvc.RecordHeartbeatParams{
		AttemptUUID: attemptUUID,
		UserUUID:    user,
		Fingerprint: req.Fingerprint,
		IsVPN:       req.IsVPN,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapRemaining(rem))
}

type verifyDeviceRequest struct {
	Fingerprint device.Fingerprint `json:"fingerprint"`
	IsVPN       bool               `json:"is_vpn"`
}

func (h *AttemptHttpHandler) VerifyDevice(w http.ResponseWriter, r *http.Request) {
	user, attemptUUID, err := participantCall(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	var req verifyDeviceRequest
	if !httpjson.DecodeValidJson(w, r, &req) {
		return
	}

	check, err := h.srvc.VerifyDevice.Handle(r.Context(), attemptsrvc.VerifyDeviceParams{
		AttemptUUID: attemptUUID,
		UserUUID:    user,
		Fingerprint: req.Fingerprint,
		IsVPN:       req.IsVPN,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapDeviceCheck(check))
}

func (h *AttemptHttpHandler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	user, attemptUUID, err := participantCall(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	a, err := h.srvc.SubmitAttempt.Handle(r.Context(), attemptsrvc.SubmitAttemptParams{
		AttemptUUID: attemptUUID,
		UserUUID:    user,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapAttempt(a))
}

func (h *AttemptHttpHandler) AbandonAttempt(w http.ResponseWriter, r *http.Request) {
	user, attemptUUID, err := participantCall(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	a, err := h.srvc.AbandonAttempt.Handle(r.Context(), attemptsrvc.AbandonAttemptParams{
		AttemptUUID: attemptUUID,
		UserUUID:    user,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapAttempt(a))
}

func (h *AttemptHttpHandler) GetRemainingTime(w http.ResponseWriter, r *http.Request) {
	user, attemptUUID, err := participantCall(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	rem, err := h.srvc.GetRemainingTime.Handle(r.Context(), attemptsrvc.GetRemainingTimeParams{
		AttemptUUID: attemptUUID,
		UserUUID:    user,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapRemaining(rem))
}

func (h *AttemptHttpHandler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	user, attemptUUID, err := readerCall(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	a, err := h.srvc.GetAttempt.Handle(r.Context(), attemptsrvc.GetAttemptParams{
		AttemptUUID: attemptUUID,
		UserUUID:    user,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapAttempt(a))
}

func (h *AttemptHttpHandler) ListViolations(w http.ResponseWriter, r *http.Request) {
	user, attemptUUID, err := readerCall(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	vs, err := h.srvc.ListViolations.Handle(r.Context(), attemptsrvc.ListViolationsParams{
		AttemptUUID: attemptUUID,
		UserUUID:    user,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapViolations(vs))
}
