package appeal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/evidence"
	"github.com/programme-lv/proctor/exam"
	"github.com/programme-lv/proctor/keylock"
	"github.com/programme-lv/proctor/logger"
	"github.com/programme-lv/proctor/notify"
	decorator "github.com/programme-lv/proctor/srvccqs"
	"github.com/programme-lv/proctor/violation"
)

type Deps struct {
	Repo Repo
	// Archive is optional; without it appeals carry no evidence key.
	Archive *evidence.Archive

	GetAttempt    func(ctx context.Context, id uuid.UUID) (*attempt.Attempt, error)
	GetViolation  func(ctx context.Context, id uuid.UUID) (*violation.Violation, error)
	SaveViolation func(ctx context.Context, v violation.Violation) error
	GetExam       func(ctx context.Context, examID string) (exam.Exam, error)
	// Reinstate lifts the disqualification of an attempt.
	Reinstate func(ctx context.Context, attemptUUID uuid.UUID) (attempt.Attempt, error)

	RecalcLeaderboard func(ctx context.Context, examID string) error
	Publish           func(ctx context.Context, e notify.Event)
	Now               func() time.Time
}

type (
	FileAppealCmd    decorator.CmdResHandler[FileAppealParams, Appeal]
	StartReviewCmd   decorator.CmdResHandler[StartReviewParams, Appeal]
	ApproveAppealCmd decorator.CmdResHandler[ApproveAppealParams, Appeal]
	RejectAppealCmd  decorator.CmdResHandler[RejectAppealParams, Appeal]

	GetAppealQuery   decorator.QueryHandler[GetAppealParams, Appeal]
	ListAppealsQuery decorator.QueryHandler[ListAppealsParams, []Appeal]
	GetEvidenceQuery decorator.QueryHandler[GetEvidenceParams, evidence.Bundle]
)

type AppealSrvc struct {
	FileAppeal    FileAppealCmd
	StartReview   StartReviewCmd
	ApproveAppeal ApproveAppealCmd
	RejectAppeal  RejectAppealCmd

	GetAppeal   GetAppealQuery
	ListAppeals ListAppealsQuery
	GetEvidence GetEvidenceQuery
}

func NewAppealSrvc(d Deps) *AppealSrvc {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	publish := d.Publish
	if publish == nil {
		publish = func(ctx context.Context, e notify.Event) {}
	}
	recalc := d.RecalcLeaderboard
	if recalc == nil {
		recalc = func(ctx context.Context, examID string) error { return nil }
	}

	res := resolver{
		locks:         keylock.New[uuid.UUID](),
		repo:          d.Repo,
		getAttempt:    d.GetAttempt,
		getViolation:  d.GetViolation,
		saveViolation: d.SaveViolation,
		reinstate:     d.Reinstate,
		recalc:        recalc,
		publish:       publish,
		now:           now,
	}

	s := &AppealSrvc{
		FileAppeal: fileAppealHandler{
			repo:         d.Repo,
			archive:      d.Archive,
			getAttempt:   d.GetAttempt,
			getViolation: d.GetViolation,
			getExam:      d.GetExam,
			now:          now,
		},
		StartReview:   startReviewHandler{res: res},
		ApproveAppeal: approveAppealHandler{res: res},
		RejectAppeal:  rejectAppealHandler{res: res},
		GetAppeal:     getAppealHandler{repo: d.Repo},
		ListAppeals:   listAppealsHandler{repo: d.Repo, getAttempt: d.GetAttempt},
		GetEvidence:   getEvidenceHandler{repo: d.Repo, archive: d.Archive},
	}
	s.FileAppeal = decorator.WithQueryTracing[FileAppealParams, Appeal]("FileAppeal", s.FileAppeal)
	s.StartReview = decorator.WithQueryTracing[StartReviewParams, Appeal]("StartAppealReview", s.StartReview)
	s.ApproveAppeal = decorator.WithQueryTracing[ApproveAppealParams, Appeal]("ApproveAppeal", s.ApproveAppeal)
	s.RejectAppeal = decorator.WithQueryTracing[RejectAppealParams, Appeal]("RejectAppeal", s.RejectAppeal)
	s.GetAppeal = decorator.WithQueryTracing[GetAppealParams, Appeal]("GetAppeal", s.GetAppeal)
	s.ListAppeals = decorator.WithQueryTracing[ListAppealsParams, []Appeal]("ListAppeals", s.ListAppeals)
	s.GetEvidence = decorator.WithQueryTracing[GetEvidenceParams, evidence.Bundle]("GetAppealEvidence", s.GetEvidence)
	return s
}

type FileAppealParams struct {
	ViolationUUID uuid.UUID
	UserUUID      uuid.UUID
	Reason        string
	Evidence      string
}

type fileAppealHandler struct {
	repo         Repo
	archive      *evidence.Archive
	getAttempt   func(ctx context.Context, id uuid.UUID) (*attempt.Attempt, error)
	getViolation func(ctx context.Context, id uuid.UUID) (*violation.Violation, error)
	getExam      func(ctx context.Context, examID string) (exam.Exam, error)
	now          func() time.Time
}

func (h fileAppealHandler) Handle(ctx context.Context, p FileAppealParams) (Appeal, error) {
	v, err := h.getViolation(ctx, p.ViolationUUID)
	if err != nil {
		return Appeal{}, fmt.Errorf("failed to get violation: %w", err)
	}
	if v == nil {
		return Appeal{}, ErrViolationNotFound()
	}
	a, err := h.getAttempt(ctx, v.AttemptUUID)
	if err != nil {
		return Appeal{}, fmt.Errorf("failed to get attempt: %w", err)
	}
	if a == nil || a.UserUUID != p.UserUUID {
		return Appeal{}, ErrViolationNotFound()
	}
	ctx = logger.WithAttemptID(ctx, a.UUID)
	ex, err := h.getExam(ctx, a.ExamID)
	if err != nil {
		return Appeal{}, fmt.Errorf("failed to get exam %s: %w", a.ExamID, err)
	}

	now := h.now()
	ap, err := File(*v, *a, FileParams{
		UserUUID: p.UserUUID,
		Reason:   p.Reason,
		Evidence: p.Evidence,
		Window:   ex.AntiCheat.AppealDeadline(),
	}, now)
	if err != nil {
		return Appeal{}, err
	}

	log := logger.FromContext(ctx)
	if h.archive != nil {
		key, err := h.archive.Save(ctx, evidence.NewBundle(ap.UUID, *a, *v, ap.Reason, ap.Evidence, now))
		if err != nil {
			// reviewers can still read the snapshot on the attempt
			log.Error("failed to archive appeal evidence", "appeal_uuid", ap.UUID, "error", err)
		} else {
			ap.EvidenceKey = &key
		}
	}

	err = h.repo.SaveAppeal(ctx, ap)
	if errors.Is(err, ErrOpenAppealExists) {
		return Appeal{}, ErrAppealAlreadyOpen()
	}
	if err != nil {
		return Appeal{}, fmt.Errorf("failed to save appeal: %w", err)
	}
	log.Info("appeal filed", "appeal_uuid", ap.UUID, "violation_uuid", v.UUID, "deadline", ap.Deadline)
	return ap, nil
}

// resolver serializes the review steps of one appeal and applies their
// consequences to the attempt and violation.
type resolver struct {
	locks         *keylock.Map[uuid.UUID]
	repo          Repo
	getAttempt    func(ctx context.Context, id uuid.UUID) (*attempt.Attempt, error)
	getViolation  func(ctx context.Context, id uuid.UUID) (*violation.Violation, error)
	saveViolation func(ctx context.Context, v violation.Violation) error
	reinstate     func(ctx context.Context, attemptUUID uuid.UUID) (attempt.Attempt, error)
	recalc        func(ctx context.Context, examID string) error
	publish       func(ctx context.Context, e notify.Event)
	now           func() time.Time
}

func (r resolver) update(ctx context.Context, id uuid.UUID, fn func(ap *Appeal) error) (Appeal, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	ap, err := r.repo.GetAppeal(ctx, id)
	if err != nil {
		return Appeal{}, fmt.Errorf("failed to get appeal: %w", err)
	}
	if ap == nil {
		return Appeal{}, ErrAppealNotFound()
	}
	if err := fn(ap); err != nil {
		return Appeal{}, err
	}
	if err := r.repo.SaveAppeal(ctx, *ap); err != nil {
		return Appeal{}, fmt.Errorf("failed to save appeal: %w", err)
	}
	return *ap, nil
}

// apply carries a decided appeal over to the violation and attempt.
// Each step is safe to repeat, so a failed resolution can be retried.
func (r resolver) apply(ctx context.Context, ap *Appeal) (examID string, err error) {
	v, err := r.getViolation(ctx, ap.ViolationUUID)
	if err != nil {
		return "", fmt.Errorf("failed to get violation: %w", err)
	}
	if v == nil {
		return "", ErrViolationNotFound()
	}
	a, err := r.getAttempt(ctx, ap.AttemptUUID)
	if err != nil {
		return "", fmt.Errorf("failed to get attempt: %w", err)
	}
	if a == nil {
		return "", attempt.ErrAttemptNotFound()
	}

	if *ap.Resolution == violation.ResolutionReinstated && a.Status == attempt.StatusDisqualified {
		if _, err := r.reinstate(ctx, a.UUID); err != nil {
			return "", fmt.Errorf("failed to reinstate attempt: %w", err)
		}
	}
	v.Resolve(*ap.Resolution, r.now())
	if err := r.saveViolation(ctx, *v); err != nil {
		return "", fmt.Errorf("failed to resolve violation: %w", err)
	}
	return a.ExamID, nil
}

func (r resolver) resolve(ctx context.Context, id uuid.UUID, decide func(ap *Appeal, now time.Time) error) (Appeal, error) {
	var examID string
	ap, err := r.update(ctx, id, func(ap *Appeal) error {
		if err := decide(ap, r.now()); err != nil {
			return err
		}
		ctx := logger.WithAttemptID(ctx, ap.AttemptUUID)
		var err error
		examID, err = r.apply(ctx, ap)
		return err
	})
	if err != nil {
		return Appeal{}, err
	}

	ctx = logger.WithAttemptID(ctx, ap.AttemptUUID)
	log := logger.FromContext(ctx)
	log.Info("appeal resolved", "appeal_uuid", ap.UUID, "status", ap.Status, "resolution", *ap.Resolution)
	if err := r.recalc(ctx, examID); err != nil {
		log.Error("failed to recalculate leaderboard", "exam_id", examID, "error", err)
	}
	r.publish(ctx, notify.AppealResolved{
		AppealUUID:  ap.UUID,
		AttemptUUID: ap.AttemptUUID,
		ExamID:      examID,
		UserUUID:    ap.UserUUID,
		Status:      string(ap.Status),
		Resolution:  string(*ap.Resolution),
		Note:        ap.ResolutionNote,
		At:          *ap.ResolvedAt,
	})
	return ap, nil
}

type StartReviewParams struct {
	AppealUUID   uuid.UUID
	ReviewerUUID uuid.UUID
}

type startReviewHandler struct {
	res resolver
}

func (h startReviewHandler) Handle(ctx context.Context, p StartReviewParams) (Appeal, error) {
	return h.res.update(ctx, p.AppealUUID, func(ap *Appeal) error {
		return ap.StartReview(p.ReviewerUUID)
	})
}

type ApproveAppealParams struct {
	AppealUUID   uuid.UUID
	ReviewerUUID uuid.UUID
	Resolution   violation.Resolution
	Note         string
}

type approveAppealHandler struct {
	res resolver
}

func (h approveAppealHandler) Handle(ctx context.Context, p ApproveAppealParams) (Appeal, error) {
	return h.res.resolve(ctx, p.AppealUUID, func(ap *Appeal, now time.Time) error {
		return ap.Approve(p.Resolution, p.Note, p.ReviewerUUID, now)
	})
}

type RejectAppealParams struct {
	AppealUUID   uuid.UUID
	ReviewerUUID uuid.UUID
	Note         string
}

type rejectAppealHandler struct {
	res resolver
}

func (h rejectAppealHandler) Handle(ctx context.Context, p RejectAppealParams) (Appeal, error) {
	return h.res.resolve(ctx, p.AppealUUID, func(ap *Appeal, now time.Time) error {
		return ap.Reject(p.Note, p.ReviewerUUID, now)
	})
}

type GetAppealParams struct {
	AppealUUID uuid.UUID
	// UserUUID restricts the lookup to the participant's own appeals;
	// uuid.Nil means unrestricted.
	UserUUID uuid.UUID
}

type getAppealHandler struct {
	repo Repo
}

func (h getAppealHandler) Handle(ctx context.Context, p GetAppealParams) (Appeal, error) {
	ap, err := h.repo.GetAppeal(ctx, p.AppealUUID)
	if err != nil {
		return Appeal{}, fmt.Errorf("failed to get appeal: %w", err)
	}
	if ap == nil || (p.UserUUID != uuid.Nil && ap.UserUUID != p.UserUUID) {
		return Appeal{}, ErrAppealNotFound()
	}
	return *ap, nil
}

type ListAppealsParams struct {
	// AttemptUUID nil lists every open appeal.
	AttemptUUID *uuid.UUID
	UserUUID    uuid.UUID
}

type listAppealsHandler struct {
	repo       Repo
	getAttempt func(ctx context.Context, id uuid.UUID) (*attempt.Attempt, error)
}

func (h listAppealsHandler) Handle(ctx context.Context, p ListAppealsParams) ([]Appeal, error) {
	if p.AttemptUUID == nil {
		return h.repo.ListOpen(ctx)
	}
	if p.UserUUID != uuid.Nil {
		a, err := h.getAttempt(ctx, *p.AttemptUUID)
		if err != nil {
			return nil, fmt.Errorf("failed to get attempt: %w", err)
		}
		if a == nil || a.UserUUID != p.UserUUID {
			return nil, attempt.ErrAttemptNotFound()
		}
	}
	return h.repo.ListAttemptAppeals(ctx, *p.AttemptUUID)
}

type GetEvidenceParams struct {
	AppealUUID uuid.UUID
}

type getEvidenceHandler struct {
	repo    Repo
	archive *evidence.Archive
}

func (h getEvidenceHandler) Handle(ctx context.Context, p GetEvidenceParams) (evidence.Bundle, error) {
	ap, err := h.repo.GetAppeal(ctx, p.AppealUUID)
	if err != nil {
		return evidence.Bundle{}, fmt.Errorf("failed to get appeal: %w", err)
	}
	if ap == nil {
		return evidence.Bundle{}, ErrAppealNotFound()
	}
	if ap.EvidenceKey == nil || h.archive == nil {
		return evidence.Bundle{}, ErrEvidenceNotArchived()
	}
	return h.archive.Load(ctx, *ap.EvidenceKey)
}
