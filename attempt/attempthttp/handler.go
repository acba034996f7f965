package attempthttp

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt/attemptsrvc"
	"github.com/programme-lv/proctor/auth"
	"github.com/programme-lv/proctor/srvcerror"
)

type AttemptHttpHandler struct {
	srvc *attemptsrvc.AttemptSrvc
}

func NewAttemptHttpHandler(srvc *attemptsrvc.AttemptSrvc) *AttemptHttpHandler {
	return &AttemptHttpHandler{srvc: srvc}
}

func (h *AttemptHttpHandler) RegisterRoutes(r *chi.Mux, jwtKey []byte) {
	r.Group(func(r chi.Router) {
		r.Use(auth.GetJwtAuthMiddleware(jwtKey))
		r.Use(auth.RequireRole(auth.RoleParticipant))
		r.Post("/exams/{examID}/attempts", h.StartAttempt)
		r.Post("/attempts/{attemptID}/answers", h.SubmitAnswer)
		r.Post("/attempts/{attemptID}/sections/advance", h.AdvanceSection)
		r.Post("/attempts/{attemptID}/violations", h.RecordViolation)
		r.Post("/attempts/{attemptID}/heartbeat", h.RecordHeartbeat)
		r.Post("/attempts/{attemptID}/device", h.VerifyDevice)
		r.Post("/attempts/{attemptID}/submit", h.SubmitAttempt)
		r.Post("/attempts/{attemptID}/abandon", h.AbandonAttempt)
		r.Get("/attempts/{attemptID}/remaining", h.GetRemainingTime)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.GetJwtAuthMiddleware(jwtKey))
		r.Get("/attempts/{attemptID}", h.GetAttempt)
		r.Get("/attempts/{attemptID}/violations", h.ListViolations)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.GetJwtAuthMiddleware(jwtKey))
		r.Use(auth.RequireRole(auth.RoleProctor))
		r.Get("/exams/{examID}/attempts/expired", h.ListExpired)
		r.Post("/attempts/{attemptID}/disqualify", h.Disqualify)
		r.Post("/attempts/{attemptID}/expire", h.ExpireAttempt)
		r.Post("/attempts/{attemptID}/liveness", h.CheckLiveness)
		r.Post("/attempts/{attemptID}/answers/{questionID}/grade", h.GradeAnswer)
		r.Post("/attempts/{attemptID}/grading/complete", h.CompleteGrading)
	})
}

func attemptParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "attemptID"))
	if err != nil {
		return uuid.Nil, srvcerror.ErrInvalidRequest("attemptID is not a valid uuid")
	}
	return id, nil
}

// participantCall resolves the calling participant and the attempt in
// the path.
func participantCall(r *http.Request) (user uuid.UUID, attemptUUID uuid.UUID, err error) {
	user, _, err = auth.Caller(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	attemptUUID, err = attemptParam(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return user, attemptUUID, nil
}

// readerCall is participantCall for read routes: proctors read any
// attempt, so their user is uuid.Nil.
func readerCall(r *http.Request) (user uuid.UUID, attemptUUID uuid.UUID, err error) {
	user, claims, err := auth.Caller(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if claims.HasRole(auth.RoleProctor) {
		user = uuid.Nil
	}
	attemptUUID, err = attemptParam(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return user, attemptUUID, nil
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
