package appealhttp

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/programme-lv/proctor/appeal"
	"github.com/programme-lv/proctor/auth"
	"github.com/programme-lv/proctor/httpjson"
	"github.com/programme-lv/proctor/srvcerror"
	"github.com/programme-lv/proctor/violation"
)

type AppealHttpHandler struct {
	srvc *appeal.AppealSrvc
}

func NewAppealHttpHandler(srvc *appeal.AppealSrvc) *AppealHttpHandler {
	return &AppealHttpHandler{srvc: srvc}
}

type Appeal struct {
	UUID           uuid.UUID  `json:"uuid"`
	AttemptUUID    uuid.UUID  `json:"attempt_uuid"`
	ViolationUUID  uuid.UUID  `json:"violation_uuid"`
	Status         string     `json:"status"`
	Reason         string     `json:"reason"`
	Evidence       string     `json:"evidence"`
	HasArchive     bool       `json:"evidence_archived"`
	Deadline       time.Time  `json:"deadline"`
	Resolution     *string    `json:"resolution"`
	ResolutionNote string     `json:"resolution_note"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at"`
}

func (h *AppealHttpHandler) RegisterRoutes(r *chi.Mux, jwtKey []byte) {
	r.Group(func(r chi.Router) {
		r.Use(auth.GetJwtAuthMiddleware(jwtKey))
		r.Use(auth.RequireRole(auth.RoleParticipant))
		r.Post("/violations/{violationID}/appeals", h.FileAppeal)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.GetJwtAuthMiddleware(jwtKey))
		r.Get("/appeals/{appealID}", h.GetAppeal)
		r.Get("/attempts/{attemptID}/appeals", h.ListAttemptAppeals)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.GetJwtAuthMiddleware(jwtKey))
		r.Use(auth.RequireRole(auth.RoleProctor))
		r.Get("/appeals", h.ListOpenAppeals)
		r.Get("/appeals/{appealID}/evidence", h.GetEvidence)
		r.Post("/appeals/{appealID}/review", h.StartReview)
		r.Post("/appeals/{appealID}/approve", h.ApproveAppeal)
		r.Post("/appeals/{appealID}/reject", h.RejectAppeal)
	})
}

func mapAppeal(a appeal.Appeal) Appeal {
	var resolution *string
	if a.Resolution != nil {
		s := string(*a.Resolution)
		resolution = &s
	}
	return Appeal{
		UUID:           a.UUID,
		AttemptUUID:    a.AttemptUUID,
		ViolationUUID:  a.ViolationUUID,
		Status:         string(a.Status),
		Reason:         a.Reason,
		Evidence:       a.Evidence,
		HasArchive:     a.EvidenceKey != nil,
		Deadline:       a.Deadline,
		Resolution:     resolution,
		ResolutionNote: a.ResolutionNote,
		CreatedAt:      a.CreatedAt,
		ResolvedAt:     a.ResolvedAt,
	}
}

func mapAppeals(list []appeal.Appeal) []Appeal {
	res := make([]Appeal, 0, len(list))
	for _, a := range list {
		res = append(res, mapAppeal(a))
	}
	return res
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, srvcerror.ErrInvalidRequest(name + " is not a valid uuid")
	}
	return id, nil
}

// scope limits participants to their own appeals. Proctors see all.
func scope(claims *auth.JwtClaims, caller uuid.UUID) uuid.UUID {
	if claims.HasRole(auth.RoleProctor) {
		return uuid.Nil
	}
	return caller
}

type fileAppealRequest struct {
	Reason   string `json:"reason" validate:"required,max=4000"`
	Evidence string `json:"evidence" validate:"max=20000"`
}

func (h *AppealHttpHandler) FileAppeal(w http.ResponseWriter, r *http.Request) {
	caller, _, err := auth.Caller(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	violationUUID, err := uuidParam(r, "violationID")
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	var req fileAppealRequest
	if !httpjson.DecodeValidJson(w, r, &req) {
		return
	}

	ap, err := h.srvc.FileAppeal.Handle(r.Context(), appeal.FileAppealParams{
		ViolationUUID: violationUUID,
		UserUUID:      caller,
		Reason:        req.Reason,
		Evidence:      req.Evidence,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapAppeal(ap))
}

func (h *AppealHttpHandler) GetAppeal(w http.ResponseWriter, r *http.Request) {
	caller, claims, err := auth.Caller(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	appealUUID, err := uuidParam(r, "appealID")
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	ap, err := h.srvc.GetAppeal.Handle(r.Context(), appeal.GetAppealParams{
		AppealUUID: appealUUID,
		UserUUID:   scope(claims, caller),
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapAppeal(ap))
}

func (h *AppealHttpHandler) ListAttemptAppeals(w http.ResponseWriter, r *http.Request) {
	caller, claims, err := auth.Caller(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	attemptUUID, err := uuidParam(r, "attemptID")
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	list, err := h.srvc.ListAppeals.Handle(r.Context(), appeal.ListAppealsParams{
		AttemptUUID: &attemptUUID,
		UserUUID:    scope(claims, caller),
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapAppeals(list))
}

// ListOpenAppeals is the review queue.
func (h *AppealHttpHandler) ListOpenAppeals(w http.ResponseWriter, r *http.Request) {
	list, err := h.srvc.ListAppeals.Handle(r.Context(), appeal.ListAppealsParams{})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapAppeals(list))
}

func (h *AppealHttpHandler) GetEvidence(w http.ResponseWriter, r *http.Request) {
	appealUUID, err := uuidParam(r, "appealID")
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	bundle, err := h.srvc.GetEvidence.Handle(r.Context(), appeal.GetEvidenceParams{AppealUUID: appealUUID})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, bundle)
}

func (h *AppealHttpHandler) StartReview(w http.ResponseWriter, r *http.Request) {
	reviewer, _, err := auth.Caller(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	appealUUID, err := uuidParam(r, "appealID")
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	ap, err := h.srvc.StartReview.Handle(r.Context(), appeal.StartReviewParams{
		AppealUUID:   appealUUID,
		ReviewerUUID: reviewer,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapAppeal(ap))
}

type approveRequest struct {
	Resolution string `json:"resolution" validate:"required,oneof=reinstated warning_reduced partial"`
	Note       string `json:"note" validate:"required,max=4000"`
}

func (h *AppealHttpHandler) ApproveAppeal(w http.ResponseWriter, r *http.Request) {
	reviewer, _, err := auth.Caller(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	appealUUID, err := uuidParam(r, "appealID")
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	var req approveRequest
	if !httpjson.DecodeValidJson(w, r, &req) {
		return
	}
	ap, err := h.srvc.ApproveAppeal.Handle(r.Context(), appeal.ApproveAppealParams{
		AppealUUID:   appealUUID,
		ReviewerUUID: reviewer,
		Resolution:   violation.Resolution(req.Resolution),
		Note:         req.Note,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapAppeal(ap))
}

type rejectRequest struct {
	Note string `json:"note" validate:"required,max=4000"`
}

func (h *AppealHttpHandler) RejectAppeal(w http.ResponseWriter, r *http.Request) {
	reviewer, _, err := auth.Caller(r)
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	appealUUID, err := uuidParam(r, "appealID")
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	var req rejectRequest
	if !httpjson.DecodeValidJson(w, r, &req) {
		return
	}
	ap, err := h.srvc.RejectAppeal.Handle(r.Context(), appeal.RejectAppealParams{
		AppealUUID:   appealUUID,
		ReviewerUUID: reviewer,
		Note:         req.Note,
	})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapAppeal(ap))
}
