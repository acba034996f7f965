// Package attemptsrvc runs the attempt state machine: every operation a
// participant, proctor or scheduler performs on an exam attempt.
package attemptsrvc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/device"
	"github.com/programme-lv/proctor/exam"
	"github.com/programme-lv/proctor/judge"
	"github.com/programme-lv/proctor/keylock"
	"github.com/programme-lv/proctor/notify"
	"github.com/programme-lv/proctor/registration"
	decorator "github.com/programme-lv/proctor/srvccqs"
	"github.com/programme-lv/proctor/violation"
)

type DeviceRegistry interface {
	Register(ctx context.Context, p device.RegisterParams) (device.Device, error)
	Get(ctx context.Context, id uuid.UUID) (device.Device, error)
	RecordViolation(ctx context.Context, id uuid.UUID) (device.Device, error)
}

type LockRepo interface {
	AcquireLock(ctx context.Context, attemptUUID uuid.UUID, deviceUUID uuid.UUID, now time.Time) (device.Lock, error)
	GetActiveLock(ctx context.Context, attemptUUID uuid.UUID) (*device.Lock, error)
	ReleaseLock(ctx context.Context, attemptUUID uuid.UUID, status device.LockStatus, now time.Time) error
}

type Deps struct {
	Repo          attempt.Repo
	Exams         exam.Provider
	Registrations registration.Registry
	Devices       DeviceRegistry
	Locks         LockRepo
	Judge         judge.Judge

	// Publish must not block; see notify.Dispatcher.
	Publish           func(ctx context.Context, e notify.Event)
	RecalcLeaderboard func(ctx context.Context, examID string) error
	Now               func() time.Time
}

type (
	StartAttemptCmd    decorator.CmdResHandler[StartAttemptParams, attempt.Attempt]
	SubmitAnswerCmd    decorator.CmdResHandler[SubmitAnswerParams, attempt.Answer]
	AdvanceSectionCmd  decorator.CmdResHandler[AdvanceSectionParams, attempt.Attempt]
	RecordViolationCmd decorator.CmdResHandler[RecordViolationParams, ViolationOutcome]
	VerifyDeviceCmd    decorator.CmdResHandler[VerifyDeviceParams, DeviceCheck]
	RecordHeartbeatCmd decorator.CmdResHandler[RecordHeartbeatParams, Remaining]
	CheckLivenessCmd   decorator.CmdResHandler[CheckLivenessParams, Liveness]
	DisqualifyCmd      decorator.CmdResHandler[DisqualifyParams, attempt.Attempt]
	SubmitAttemptCmd   decorator.CmdResHandler[SubmitAttemptParams, attempt.Attempt]
	GradeAnswerCmd     decorator.CmdResHandler[GradeAnswerParams, attempt.Attempt]
	CompleteGradingCmd decorator.CmdResHandler[CompleteGradingParams, attempt.Attempt]
	ReinstateCmd       decorator.CmdResHandler[ReinstateParams, attempt.Attempt]
	ExpireAttemptCmd   decorator.CmdResHandler[ExpireAttemptParams, attempt.Attempt]
	AbandonAttemptCmd  decorator.CmdResHandler[AbandonAttemptParams, attempt.Attempt]

	GetAttemptQuery       decorator.QueryHandler[GetAttemptParams, attempt.Attempt]
	GetRemainingTimeQuery decorator.QueryHandler[GetRemainingTimeParams, Remaining]
	ListExpiredQuery      decorator.QueryHandler[ListExpiredParams, []attempt.Attempt]
	ListViolationsQuery   decorator.QueryHandler[ListViolationsParams, []violation.Violation]
)

type AttemptSrvc struct {
	StartAttempt    StartAttemptCmd
	SubmitAnswer    SubmitAnswerCmd
	AdvanceSection  AdvanceSectionCmd
	RecordViolation RecordViolationCmd
	VerifyDevice    VerifyDeviceCmd
	RecordHeartbeat RecordHeartbeatCmd
	CheckLiveness   CheckLivenessCmd
	Disqualify      DisqualifyCmd
	SubmitAttempt   SubmitAttemptCmd
	GradeAnswer     GradeAnswerCmd
	CompleteGrading CompleteGradingCmd
	Reinstate       ReinstateCmd
	ExpireAttempt   ExpireAttemptCmd
	AbandonAttempt  AbandonAttemptCmd

	GetAttempt       GetAttemptQuery
	GetRemainingTime GetRemainingTimeQuery
	ListExpired      ListExpiredQuery
	ListViolations   ListViolationsQuery
}

func NewAttemptSrvc(d Deps) *AttemptSrvc {
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

	store := attemptStore{
		locks:       keylock.New[uuid.UUID](),
		getAttempt:  d.Repo.GetAttempt,
		saveAttempt: d.Repo.SaveAttempt,
		getExam:     d.Exams.GetExam,
	}
	scorer := attemptScorer{evaluate: d.Judge.Evaluate, now: now}
	fx := effects{
		disqualifyRegistration: d.Registrations.Disqualify,
		reinstateRegistration:  d.Registrations.Reinstate,
		releaseLock:            d.Locks.ReleaseLock,
		recalcLeaderboard:      recalc,
		publish:                publish,
		now:                    now,
	}
	recorder := violationRecorder{findViolation: d.Repo.FindViolation}

	recordViolation := newRecordViolationHandler(store, recorder, fx, d.Devices.RecordViolation, now)
	expire := newExpireAttemptHandler(store, scorer, fx, now)

	s := &AttemptSrvc{
		StartAttempt: newStartAttemptHandler(store,
			d.Registrations.IsConfirmed, d.Devices.Register,
			d.Locks.AcquireLock, d.Locks.ReleaseLock, now),
		SubmitAnswer:    newSubmitAnswerHandler(store, now),
		AdvanceSection:  newAdvanceSectionHandler(store, now),
		RecordViolation: recordViolation,
		VerifyDevice: newVerifyDeviceHandler(store,
			d.Locks.GetActiveLock, d.Devices.Get, recordViolation.Handle),
		CheckLiveness:   newCheckLivenessHandler(store, recorder, fx, now),
		Disqualify:      newDisqualifyHandler(store, fx, now),
		SubmitAttempt:   newSubmitAttemptHandler(store, scorer, fx, now),
		GradeAnswer:     newGradeAnswerHandler(store, scorer, fx, now),
		CompleteGrading: newCompleteGradingHandler(store, scorer, fx),
		Reinstate:       newReinstateHandler(store, scorer, fx),
		ExpireAttempt:   expire,
		AbandonAttempt:  newAbandonAttemptHandler(store, fx, now),

		GetAttempt:       newGetAttemptHandler(store),
		GetRemainingTime: newGetRemainingTimeHandler(store, now),
		ListExpired:      newListExpiredHandler(d.Repo.ListInProgress, d.Exams.GetExam, now),
		ListViolations:   newListViolationsHandler(store, d.Repo.ListViolations),
	}
	s.RecordHeartbeat = newRecordHeartbeatHandler(store, s.VerifyDevice.Handle, expire.Handle, now)

	s.StartAttempt = decorator.WithQueryTracing[StartAttemptParams, attempt.Attempt]("StartAttempt", s.StartAttempt)
	s.SubmitAnswer = decorator.WithQueryTracing[SubmitAnswerParams, attempt.Answer]("SubmitAnswer", s.SubmitAnswer)
	s.AdvanceSection = decorator.WithQueryTracing[AdvanceSectionParams, attempt.Attempt]("AdvanceSection", s.AdvanceSection)
	s.RecordViolation = decorator.WithQueryTracing[RecordViolationParams, ViolationOutcome]("RecordViolation", s.RecordViolation)
	s.VerifyDevice = decorator.WithQueryTracing[VerifyDeviceParams, DeviceCheck]("VerifyDevice", s.VerifyDevice)
	s.RecordHeartbeat = decorator.WithQueryTracing[RecordHeartbeatParams, Remaining]("RecordHeartbeat", s.RecordHeartbeat)
	s.CheckLiveness = decorator.WithQueryTracing[CheckLivenessParams, Liveness]("CheckLiveness", s.CheckLiveness)
	s.Disqualify = decorator.WithQueryTracing[DisqualifyParams, attempt.Attempt]("Disqualify", s.Disqualify)
	s.SubmitAttempt = decorator.WithQueryTracing[SubmitAttemptParams, attempt.Attempt]("SubmitAttempt", s.SubmitAttempt)
	s.GradeAnswer = decorator.WithQueryTracing[GradeAnswerParams, attempt.Attempt]("GradeAnswer", s.GradeAnswer)
	s.CompleteGrading = decorator.WithQueryTracing[CompleteGradingParams, attempt.Attempt]("CompleteGrading", s.CompleteGrading)
	s.Reinstate = decorator.WithQueryTracing[ReinstateParams, attempt.Attempt]("Reinstate", s.Reinstate)
	s.ExpireAttempt = decorator.WithQueryTracing[ExpireAttemptParams, attempt.Attempt]("ExpireAttempt", s.ExpireAttempt)
	s.AbandonAttempt = decorator.WithQueryTracing[AbandonAttemptParams, attempt.Attempt]("AbandonAttempt", s.AbandonAttempt)
	s.GetAttempt = decorator.WithQueryTracing[GetAttemptParams, attempt.Attempt]("GetAttempt", s.GetAttempt)
	s.GetRemainingTime = decorator.WithQueryTracing[GetRemainingTimeParams, Remaining]("GetRemainingTime", s.GetRemainingTime)
	s.ListExpired = decorator.WithQueryTracing[ListExpiredParams, []attempt.Attempt]("ListExpired", s.ListExpired)
	s.ListViolations = decorator.WithQueryTracing[ListViolationsParams, []violation.Violation]("ListViolations", s.ListViolations)
	return s
}

// requireOwner hides attempts of other participants.
func requireOwner(a *attempt.Attempt, userUUID uuid.UUID) error {
	if a.UserUUID != userUUID {
		return attempt.ErrAttemptNotFound()
	}
	return nil
}
