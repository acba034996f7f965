package attemptsrvc_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/attempt/attemptsrvc"
	"github.com/programme-lv/proctor/device"
	"github.com/programme-lv/proctor/exam"
	"github.com/programme-lv/proctor/exam/examtest"
	"github.com/programme-lv/proctor/judge"
	"github.com/programme-lv/proctor/notify"
	"github.com/programme-lv/proctor/registration"
	"github.com/programme-lv/proctor/srvcerror"
	"github.com/programme-lv/proctor/violation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

var laptop = device.Fingerprint{
	ScreenResolution: "1920x1080",
	Timezone:         "Europe/Riga",
	Canvas:           "c4nv4s",
	WebGL:            "angle-intel",
	Audio:            "124.04",
	FontHash:         "f0n75",
	Platform:         "Linux x86_64",
}

var phone = device.Fingerprint{
	ScreenResolution: "390x844",
	Timezone:         "Europe/Riga",
	Canvas:           "0ther",
	WebGL:            "apple-gpu",
	Audio:            "35.73",
	FontHash:         "10s",
	Platform:         "iPhone",
}

type testEnv struct {
	srvc  *attemptsrvc.AttemptSrvc
	repo  *attempt.InMemRepo
	regs  *registration.InMemRegistry
	locks *device.InMemLockRepo

	mu      sync.Mutex
	now     time.Time
	events  []notify.Event
	recalcs []string
}

func newTestEnv(t *testing.T, j judge.Judge, exams ...exam.Exam) *testEnv {
	t.Helper()
	if len(exams) == 0 {
		exams = []exam.Exam{examtest.TwoSections()}
	}
	if j == nil {
		j = halfPassingJudge()
	}
	e := &testEnv{
		repo:  attempt.NewInMemRepo(),
		regs:  registration.NewInMemRegistry(),
		locks: device.NewInMemLockRepo(),
		now:   t0,
	}
	e.srvc = attemptsrvc.NewAttemptSrvc(attemptsrvc.Deps{
		Repo:          e.repo,
		Exams:         exam.NewStaticProvider(exams...),
		Registrations: e.regs,
		Devices:       device.NewRegistry(device.NewInMemDeviceRepo()),
		Locks:         e.locks,
		Judge:         j,
		Publish: func(ctx context.Context, ev notify.Event) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.events = append(e.events, ev)
		},
		RecalcLeaderboard: func(ctx context.Context, examID string) error {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.recalcs = append(e.recalcs, examID)
			return nil
		},
		Now: e.clock,
	})
	return e
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func (e *testEnv) register(examID string, status registration.Status) (userUUID, regUUID uuid.UUID) {
	userUUID, regUUID = uuid.New(), uuid.New()
	e.regs.Put(registration.Registration{
		UUID:     regUUID,
		ExamID:   examID,
		UserUUID: userUUID,
		Status:   status,
	})
	return userUUID, regUUID
}

func (e *testEnv) start(t *testing.T, examID string) attempt.Attempt {
	t.Helper()
	user, reg := e.register(examID, registration.StatusConfirmed)
	a, err := e.srvc.StartAttempt.Handle(context.Background(), attemptsrvc.StartAttemptParams{
		ExamID:         examID,
		UserUUID:       user,
		RegistrationID: reg,
		Fingerprint:    laptop,
	})
	require.NoError(t, err)
	return a
}

func (e *testEnv) answer(t *testing.T, a attempt.Attempt, sectionID, questionID, payload string) {
	t.Helper()
	_, err := e.srvc.SubmitAnswer.Handle(context.Background(), attemptsrvc.SubmitAnswerParams{
		AttemptUUID:  a.UUID,
		UserUUID:     a.UserUUID,
		SectionID:    sectionID,
		QuestionID:   questionID,
		Payload:      json.RawMessage(payload),
		TimeSpentSec: 60,
	})
	require.NoError(t, err)
}

// answerAll answers both quiz questions correctly and sends a program.
func (e *testEnv) answerAll(t *testing.T, a attempt.Attempt) {
	t.Helper()
	ctx := context.Background()
	e.answer(t, a, "quiz", "q1", `"b"`)
	e.answer(t, a, "quiz", "q2", `3.14`)
	_, err := e.srvc.AdvanceSection.Handle(ctx, attemptsrvc.AdvanceSectionParams{AttemptUUID: a.UUID, UserUUID: a.UserUUID})
	require.NoError(t, err)
	e.answer(t, a, "code", "aplusb", `{"language":"cpp17","source":"int main(){}"}`)
}

func (e *testEnv) violation(t *testing.T, a attempt.Attempt, typ violation.Type) attemptsrvc.ViolationOutcome {
	t.Helper()
	out, err := e.srvc.RecordViolation.Handle(context.Background(), attemptsrvc.RecordViolationParams{
		AttemptUUID: a.UUID,
		UserUUID:    a.UserUUID,
		Type:        string(typ),
	})
	require.NoError(t, err)
	return out
}

func halfPassingJudge() judge.Judge {
	return judge.Func(func(ctx context.Context, req judge.Request) (judge.Result, error) {
		return judge.Result{
			Status:      judge.StatusPartial,
			PassedCount: len(req.TestCases) / 2,
			TotalCount:  len(req.TestCases),
		}, nil
	})
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, srvcerror.HasCode(err, code), "expected %s, got %v", code, err)
}

func TestStartAttempt(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	a := e.start(t, examtest.ExamID)
	assert.Equal(t, attempt.StatusInProgress, a.Status)
	assert.Equal(t, t0, *a.StartedAt)
	require.Len(t, a.Sections, 2)
	assert.Equal(t, 1, a.Version)

	lock, err := e.locks.GetActiveLock(ctx, a.UUID)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, device.DeviceID(a.UserUUID, laptop), lock.DeviceUUID)

	_, err = e.srvc.StartAttempt.Handle(ctx, attemptsrvc.StartAttemptParams{
		ExamID:         examtest.ExamID,
		UserUUID:       a.UserUUID,
		RegistrationID: a.RegistrationID,
		Fingerprint:    laptop,
	})
	requireCode(t, err, attempt.ErrCodeAlreadyStarted)
}

func TestStartAttempt_RegistrationNotConfirmed(t *testing.T) {
	e := newTestEnv(t, nil)
	user, reg := e.register(examtest.ExamID, registration.StatusPending)

	_, err := e.srvc.StartAttempt.Handle(context.Background(), attemptsrvc.StartAttemptParams{
		ExamID:         examtest.ExamID,
		UserUUID:       user,
		RegistrationID: reg,
		Fingerprint:    laptop,
	})
	requireCode(t, err, attempt.ErrCodeRegistrationNotConfirmed)

	stored, err := e.repo.GetAttempt(context.Background(), attempt.AttemptID(examtest.ExamID, user))
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestStartAttempt_ForeignRegistration(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	owner, otherExamReg := e.register("olymp-r2", registration.StatusConfirmed)
	_, sameExamReg := e.register(examtest.ExamID, registration.StatusConfirmed)
	intruder := uuid.New()

	for _, tc := range []struct {
		name  string
		user  uuid.UUID
		regID uuid.UUID
	}{
		{name: "registration for another exam", user: owner, regID: otherExamReg},
		{name: "another participant's registration", user: intruder, regID: sameExamReg},
		{name: "another participant on another exam", user: intruder, regID: otherExamReg},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.srvc.StartAttempt.Handle(ctx, attemptsrvc.StartAttemptParams{
				ExamID:         examtest.ExamID,
				UserUUID:       tc.user,
				RegistrationID: tc.regID,
				Fingerprint:    laptop,
			})
			requireCode(t, err, attempt.ErrCodeRegistrationNotConfirmed)

			stored, err := e.repo.GetAttempt(ctx, attempt.AttemptID(examtest.ExamID, tc.user))
			require.NoError(t, err)
			assert.Nil(t, stored)
		})
	}

	for _, id := range []uuid.UUID{otherExamReg, sameExamReg} {
		reg, ok := e.regs.Get(id)
		require.True(t, ok)
		assert.Equal(t, registration.StatusConfirmed, reg.Status)
	}
}

func TestStartAttempt_ExamWithoutSections(t *testing.T) {
	empty := examtest.TwoSections()
	empty.ID = "empty"
	empty.Sections = nil
	e := newTestEnv(t, nil, empty)
	user, reg := e.register("empty", registration.StatusConfirmed)

	_, err := e.srvc.StartAttempt.Handle(context.Background(), attemptsrvc.StartAttemptParams{
		ExamID:         "empty",
		UserUUID:       user,
		RegistrationID: reg,
		Fingerprint:    laptop,
	})
	requireCode(t, err, attempt.ErrCodeSectionNotConfigured)
}

func TestStartAttempt_DeviceConflict(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	user, reg := e.register(examtest.ExamID, registration.StatusConfirmed)

	id := attempt.AttemptID(examtest.ExamID, user)
	_, err := e.locks.AcquireLock(ctx, id, device.DeviceID(user, phone), t0)
	require.NoError(t, err)

	_, err = e.srvc.StartAttempt.Handle(ctx, attemptsrvc.StartAttemptParams{
		ExamID:         examtest.ExamID,
		UserUUID:       user,
		RegistrationID: reg,
		Fingerprint:    laptop,
	})
	requireCode(t, err, device.ErrCodeDeviceConflict)

	stored, err := e.repo.GetAttempt(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, stored, "nothing is written when the lock is refused")
}

func TestSubmitAnswer_OtherParticipant(t *testing.T) {
	e := newTestEnv(t, nil)
	a := e.start(t, examtest.ExamID)

	_, err := e.srvc.SubmitAnswer.Handle(context.Background(), attemptsrvc.SubmitAnswerParams{
		AttemptUUID: a.UUID,
		UserUUID:    uuid.New(),
		SectionID:   "quiz",
		QuestionID:  "q1",
		Payload:     json.RawMessage(`"b"`),
	})
	requireCode(t, err, attempt.ErrCodeAttemptNotFound)
}

func TestSubmitAttempt_ScoresAllSections(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	a := e.start(t, examtest.ExamID)
	e.answerAll(t, a)
	e.advance(90 * time.Minute)

	res, err := e.srvc.SubmitAttempt.Handle(ctx, attemptsrvc.SubmitAttemptParams{AttemptUUID: a.UUID, UserUUID: a.UserUUID})
	require.NoError(t, err)

	assert.Equal(t, attempt.StatusGraded, res.Status)
	assert.Equal(t, t0.Add(90*time.Minute), *res.CompletedAt)
	assert.Equal(t, "300", res.RawScore.String())
	assert.Equal(t, "500", res.MaxScore.String())
	assert.Equal(t, "60", res.WeightedScore.String())
	assert.Equal(t, "60", res.ScorePercent.String())
	assert.False(t, res.RequiresManualGrading)

	sum := decimal.Zero
	for _, s := range res.Sections {
		sum = sum.Add(s.WeightedScore)
		assert.Equal(t, attempt.SectionGraded, s.Status)
	}
	assert.True(t, sum.Equal(res.WeightedScore))
	assert.Equal(t, "20", res.Sections[0].WeightedScore.String())
	assert.Equal(t, "40", res.Sections[1].WeightedScore.String())
	assert.Equal(t, 2, res.Sections[0].CorrectCount)

	lock, err := e.locks.GetActiveLock(ctx, a.UUID)
	require.NoError(t, err)
	assert.Nil(t, lock)
	assert.Equal(t, []string{examtest.ExamID}, e.recalcs)

	again, err := e.srvc.SubmitAttempt.Handle(ctx, attemptsrvc.SubmitAttemptParams{AttemptUUID: a.UUID, UserUUID: a.UserUUID})
	require.NoError(t, err)
	assert.Equal(t, res.Version, again.Version, "second submit writes nothing")
	assert.Len(t, e.recalcs, 1)
}

func TestSubmitAttempt_NotStartedAndClosed(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	a := e.start(t, examtest.ExamID)

	_, err := e.srvc.AbandonAttempt.Handle(ctx, attemptsrvc.AbandonAttemptParams{AttemptUUID: a.UUID, UserUUID: a.UserUUID})
	require.NoError(t, err)

	_, err = e.srvc.SubmitAttempt.Handle(ctx, attemptsrvc.SubmitAttemptParams{AttemptUUID: a.UUID, UserUUID: a.UserUUID})
	requireCode(t, err, attempt.ErrCodeInvalidTransition)
}

func TestSubmitAttempt_JudgeFailureDefersToManualGrading(t *testing.T) {
	e := newTestEnv(t, judge.Unavailable())
	ctx := context.Background()
	a := e.start(t, examtest.ExamID)
	e.answerAll(t, a)

	res, err := e.srvc.SubmitAttempt.Handle(ctx, attemptsrvc.SubmitAttemptParams{AttemptUUID: a.UUID, UserUUID: a.UserUUID})
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusGrading, res.Status)
	assert.True(t, res.RequiresManualGrading)
	assert.True(t, res.WeightedScore.IsZero(), "totals are never partially aggregated")
	assert.True(t, res.Sections[1].RequiresManualGrading)
	assert.Equal(t, attempt.SectionGrading, res.Sections[1].Status)

	graded, err := e.srvc.GradeAnswer.Handle(ctx, attemptsrvc.GradeAnswerParams{
		AttemptUUID: a.UUID,
		QuestionID:  "aplusb",
		Points:      decimal.NewFromInt(400),
	})
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusGraded, graded.Status)
	assert.Equal(t, "100", graded.WeightedScore.String())
}

func TestGradeAnswer_EssayFlow(t *testing.T) {
	ex := examtest.WithEssay()
	e := newTestEnv(t, nil, ex)
	ctx := context.Background()
	a := e.start(t, ex.ID)
	e.answerAll(t, a)
	_, err := e.srvc.AdvanceSection.Handle(ctx, attemptsrvc.AdvanceSectionParams{AttemptUUID: a.UUID, UserUUID: a.UserUUID})
	require.NoError(t, err)
	e.answer(t, a, "essay", "e1", `"Olympiads reward curiosity."`)

	res, err := e.srvc.SubmitAttempt.Handle(ctx, attemptsrvc.SubmitAttemptParams{AttemptUUID: a.UUID, UserUUID: a.UserUUID})
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusGrading, res.Status)
	assert.True(t, res.RequiresManualGrading)

	_, err = e.srvc.CompleteGrading.Handle(ctx, attemptsrvc.CompleteGradingParams{AttemptUUID: a.UUID})
	requireCode(t, err, attempt.ErrCodeGradingIncomplete)

	_, err = e.srvc.GradeAnswer.Handle(ctx, attemptsrvc.GradeAnswerParams{
		AttemptUUID: a.UUID,
		QuestionID:  "e1",
		Points:      decimal.NewFromInt(51),
	})
	requireCode(t, err, srvcerror.ErrCodeInvalidRequest)

	res, err = e.srvc.GradeAnswer.Handle(ctx, attemptsrvc.GradeAnswerParams{
		AttemptUUID: a.UUID,
		QuestionID:  "e1",
		Points:      decimal.NewFromInt(30),
	})
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusGraded, res.Status)
	assert.Equal(t, "330", res.RawScore.String())

	_, err = e.srvc.GradeAnswer.Handle(ctx, attemptsrvc.GradeAnswerParams{
		AttemptUUID: a.UUID,
		QuestionID:  "e1",
		Points:      decimal.NewFromInt(45),
	})
	requireCode(t, err, attempt.ErrCodeAnswerAlreadyGraded)

	res, err = e.srvc.GradeAnswer.Handle(ctx, attemptsrvc.GradeAnswerParams{
		AttemptUUID: a.UUID,
		QuestionID:  "e1",
		Points:      decimal.NewFromInt(45),
		Regrade:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "345", res.RawScore.String())
}

func TestRecordViolation_TabSwitchLimit(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	a := e.start(t, examtest.ExamID)
	e.answer(t, a, "quiz", "q1", `"b"`)

	for range 3 {
		out := e.violation(t, a, violation.TypeTabSwitch)
		assert.False(t, out.Disqualified)
	}
	out := e.violation(t, a, violation.TypeTabSwitch)
	require.True(t, out.Disqualified)

	res := out.Attempt
	assert.Equal(t, attempt.StatusDisqualified, res.Status)
	assert.True(t, res.IsDisqualified)
	require.NotNil(t, res.DisqualifiedReason)
	assert.Contains(t, *res.DisqualifiedReason, "tab switch")
	assert.Equal(t, 4, res.TabSwitches)
	require.Len(t, res.DisqualificationSnapshot, 1)
	assert.Equal(t, "q1", res.DisqualificationSnapshot[0].QuestionID)

	assert.Equal(t, 4, out.Violation.Count)
	assert.Equal(t, violation.SeverityMedium, out.Violation.Severity)
	assert.Equal(t, violation.ActionDisqualified, out.Violation.Action)

	reg, ok := e.regs.Get(a.RegistrationID)
	require.True(t, ok)
	assert.Equal(t, registration.StatusDisqualified, reg.Status)

	lock, err := e.locks.GetActiveLock(ctx, a.UUID)
	require.NoError(t, err)
	assert.Nil(t, lock)

	require.Len(t, e.events, 1)
	dq, ok := e.events[0].(notify.AttemptDisqualified)
	require.True(t, ok)
	assert.Equal(t, a.UUID, dq.AttemptUUID)
	assert.Equal(t, []string{examtest.ExamID}, e.recalcs)

	_, err = e.srvc.RecordViolation.Handle(ctx, attemptsrvc.RecordViolationParams{
		AttemptUUID: a.UUID,
		UserUUID:    a.UserUUID,
		Type:        string(violation.TypeTabSwitch),
	})
	requireCode(t, err, attempt.ErrCodeInvalidTransition)

	vs, err := e.srvc.ListViolations.Handle(ctx, attemptsrvc.ListViolationsParams{AttemptUUID: a.UUID})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, 4, vs[0].Count)
}

func TestRecordViolation_FullscreenExitLimit(t *testing.T) {
	e := newTestEnv(t, nil)
	a := e.start(t, examtest.ExamID)
	allowed := examtest.TwoSections().AntiCheat.MaxFullscreenExits

	for i := range allowed {
		out := e.violation(t, a, violation.TypeFullscreenExit)
		assert.False(t, out.Disqualified)
		assert.Equal(t, i+1, out.Attempt.FullscreenExits)
	}
	out := e.violation(t, a, violation.TypeFullscreenExit)
	assert.True(t, out.Disqualified)
	assert.Equal(t, violation.ActionDisqualified, out.Violation.Action)
	assert.Equal(t, attempt.StatusDisqualified, out.Attempt.Status)
	require.NotNil(t, out.Attempt.DisqualifiedReason)
	assert.Contains(t, *out.Attempt.DisqualifiedReason, "fullscreen exit limit exceeded")
	assert.Zero(t, out.Attempt.TabSwitches)

	reg, ok := e.regs.Get(a.RegistrationID)
	require.True(t, ok)
	assert.Equal(t, registration.StatusDisqualified, reg.Status)
}

func TestRecordViolation_VpnDisqualifiesImmediately(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	a := e.start(t, examtest.ExamID)

	out := e.violation(t, a, violation.TypeVpnDetected)
	assert.True(t, out.Disqualified)
	assert.Equal(t, 1, out.Violation.Count)
	assert.Equal(t, violation.SeverityCritical, out.Violation.Severity)
	assert.Equal(t, violation.ActionDisqualified, out.Violation.Action)
	assert.Equal(t, attempt.StatusDisqualified, out.Attempt.Status)
	require.NotNil(t, out.Attempt.DisqualifiedReason)
	assert.Equal(t, "critical violation: vpn usage", *out.Attempt.DisqualifiedReason)
	require.NoError(t, out.Attempt.CheckInvariant())

	lock, err := e.locks.GetActiveLock(ctx, a.UUID)
	require.NoError(t, err)
	assert.Nil(t, lock)
	assert.Equal(t, []string{examtest.ExamID}, e.recalcs)
}

func TestRecordViolation_UnknownTypeOnlyWarns(t *testing.T) {
	e := newTestEnv(t, nil)
	a := e.start(t, examtest.ExamID)

	var out attemptsrvc.ViolationOutcome
	for range 6 {
		out = e.violation(t, a, "copy_paste")
	}
	assert.False(t, out.Disqualified)
	assert.Equal(t, violation.TypeOther, out.Violation.Type)
	assert.Equal(t, violation.SeverityHigh, out.Violation.Severity)
	assert.Equal(t, violation.ActionWarningSent, out.Violation.Action, "the attempt keeps running")
	assert.Equal(t, 6, out.Attempt.Warnings)
	assert.Zero(t, out.Attempt.TabSwitches)
	assert.Equal(t, attempt.StatusInProgress, out.Attempt.Status)
}

func TestDisqualify_Idempotent(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	a := e.start(t, examtest.ExamID)

	first, err := e.srvc.Disqualify.Handle(ctx, attemptsrvc.DisqualifyParams{AttemptUUID: a.UUID, Reason: "impersonation"})
	require.NoError(t, err)
	second, err := e.srvc.Disqualify.Handle(ctx, attemptsrvc.DisqualifyParams{AttemptUUID: a.UUID, Reason: "other"})
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, "impersonation", *second.DisqualifiedReason)
	assert.Len(t, e.events, 1)
	require.NoError(t, second.CheckInvariant())
}

func TestVerifyDevice_OtherDeviceDisqualifies(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	a := e.start(t, examtest.ExamID)

	same, err := e.srvc.VerifyDevice.Handle(ctx, attemptsrvc.VerifyDeviceParams{
		AttemptUUID: a.UUID,
		UserUUID:    a.UserUUID,
		Fingerprint: laptop,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, same.Similarity)
	assert.Empty(t, same.Violations)

	other, err := e.srvc.VerifyDevice.Handle(ctx, attemptsrvc.VerifyDeviceParams{
		AttemptUUID: a.UUID,
		UserUUID:    a.UserUUID,
		Fingerprint: phone,
	})
	require.NoError(t, err)
	assert.Less(t, other.Similarity, other.Threshold)
	require.Len(t, other.Violations, 1)
	assert.Equal(t, violation.TypeMultiDevice, other.Violations[0].Type)
	assert.Equal(t, violation.SeverityCritical, other.Violations[0].Severity)
	assert.Equal(t, attempt.StatusDisqualified, other.Attempt.Status)
	assert.Equal(t, "critical violation: multiple devices", *other.Attempt.DisqualifiedReason)
}

func TestRecordHeartbeat(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	a := e.start(t, examtest.ExamID)
	e.advance(10 * time.Minute)

	rem, err := e.srvc.RecordHeartbeat.Handle(ctx, attemptsrvc.RecordHeartbeatParams{
		AttemptUUID: a.UUID,
		UserUUID:    a.UserUUID,
		Fingerprint: &laptop,
	})
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusInProgress, rem.Status)
	assert.Equal(t, 170*time.Minute, rem.Total)
	require.NotNil(t, rem.Section)
	assert.Equal(t, 50*time.Minute, *rem.Section)
	assert.False(t, rem.Expired)

	stored, err := e.srvc.GetAttempt.Handle(ctx, attemptsrvc.GetAttemptParams{AttemptUUID: a.UUID})
	require.NoError(t, err)
	assert.Equal(t, t0.Add(10*time.Minute), *stored.LastHeartbeatAt)
}

func TestRecordHeartbeat_AfterDeadlineExpires(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	a := e.start(t, examtest.ExamID)
	e.answer(t, a, "quiz", "q1", `"b"`)
	e.advance(181 * time.Minute)

	rem, err := e.srvc.RecordHeartbeat.Handle(ctx, attemptsrvc.RecordHeartbeatParams{AttemptUUID: a.UUID, UserUUID: a.UserUUID})
	require.NoError(t, err)
	assert.True(t, rem.Expired)
	assert.Equal(t, attempt.StatusGraded, rem.Status)
	assert.Zero(t, rem.Total)

	stored, err := e.srvc.GetAttempt.Handle(ctx, attemptsrvc.GetAttemptParams{AttemptUUID: a.UUID})
	require.NoError(t, err)
	assert.Equal(t, t0.Add(180*time.Minute), *stored.CompletedAt, "frozen at the deadline")
	assert.Equal(t, "8", stored.WeightedScore.String())
}

func TestExpireAttempt(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	idle := e.start(t, examtest.ExamID)
	busy := e.start(t, examtest.ExamID)
	e.answer(t, busy, "quiz", "q2", `3.14`)

	_, err := e.srvc.ExpireAttempt.Handle(ctx, attemptsrvc.ExpireAttemptParams{AttemptUUID: idle.UUID})
	requireCode(t, err, attempt.ErrCodeInvalidTransition)

	e.advance(3*time.Hour + time.Second)
	expired, err := e.srvc.ListExpired.Handle(ctx, attemptsrvc.ListExpiredParams{})
	require.NoError(t, err)
	assert.Len(t, expired, 2)

	res, err := e.srvc.ExpireAttempt.Handle(ctx, attemptsrvc.ExpireAttemptParams{AttemptUUID: idle.UUID})
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusExpired, res.Status)

	res, err = e.srvc.ExpireAttempt.Handle(ctx, attemptsrvc.ExpireAttemptParams{AttemptUUID: busy.UUID})
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusGraded, res.Status)
	assert.Equal(t, "60", res.RawScore.String())

	expired, err = e.srvc.ListExpired.Handle(ctx, attemptsrvc.ListExpiredParams{ExamID: examtest.ExamID})
	require.NoError(t, err)
	assert.Empty(t, expired)

	again, err := e.srvc.ExpireAttempt.Handle(ctx, attemptsrvc.ExpireAttemptParams{AttemptUUID: busy.UUID})
	require.NoError(t, err)
	assert.Equal(t, res.Version, again.Version)
}

func TestCheckLiveness(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	a := e.start(t, examtest.ExamID)

	e.advance(90 * time.Second)
	live, err := e.srvc.CheckLiveness.Handle(ctx, attemptsrvc.CheckLivenessParams{AttemptUUID: a.UUID})
	require.NoError(t, err)
	assert.Equal(t, 3, live.Missed)
	assert.Nil(t, live.Violation)

	e.advance(30 * time.Second)
	live, err = e.srvc.CheckLiveness.Handle(ctx, attemptsrvc.CheckLivenessParams{AttemptUUID: a.UUID})
	require.NoError(t, err)
	require.NotNil(t, live.Violation)
	assert.Equal(t, violation.TypeHeartbeatMiss, live.Violation.Type)
	assert.Equal(t, 1, live.Attempt.HeartbeatMisses)
	assert.Equal(t, attempt.StatusInProgress, live.Attempt.Status)

	live, err = e.srvc.CheckLiveness.Handle(ctx, attemptsrvc.CheckLivenessParams{AttemptUUID: a.UUID})
	require.NoError(t, err)
	assert.Zero(t, live.Missed)
	assert.Nil(t, live.Violation)
}

func TestReinstate(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	a := e.start(t, examtest.ExamID)
	e.answer(t, a, "quiz", "q1", `"b"`)
	e.advance(20 * time.Minute)

	_, err := e.srvc.Disqualify.Handle(ctx, attemptsrvc.DisqualifyParams{AttemptUUID: a.UUID, Reason: "false positive"})
	require.NoError(t, err)
	e.advance(time.Hour)

	res, err := e.srvc.Reinstate.Handle(ctx, attemptsrvc.ReinstateParams{AttemptUUID: a.UUID})
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusSubmitted, res.Status)
	assert.False(t, res.IsDisqualified)
	assert.Nil(t, res.DisqualifiedReason)
	assert.Equal(t, t0.Add(20*time.Minute), *res.CompletedAt)
	assert.Equal(t, "8", res.WeightedScore.String())
	reg, ok := e.regs.Get(a.RegistrationID)
	require.True(t, ok)
	assert.Equal(t, registration.StatusConfirmed, reg.Status)

	res, err = e.srvc.CompleteGrading.Handle(ctx, attemptsrvc.CompleteGradingParams{AttemptUUID: a.UUID})
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusGraded, res.Status)

	_, err = e.srvc.Reinstate.Handle(ctx, attemptsrvc.ReinstateParams{AttemptUUID: a.UUID})
	requireCode(t, err, attempt.ErrCodeInvalidTransition)
}

func TestGetRemainingTime(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	a := e.start(t, examtest.ExamID)
	e.advance(75 * time.Minute)

	rem, err := e.srvc.GetRemainingTime.Handle(ctx, attemptsrvc.GetRemainingTimeParams{AttemptUUID: a.UUID, UserUUID: a.UserUUID})
	require.NoError(t, err)
	assert.Equal(t, 105*time.Minute, rem.Total)
	require.NotNil(t, rem.Section)
	assert.Zero(t, *rem.Section)

	_, err = e.srvc.GetRemainingTime.Handle(ctx, attemptsrvc.GetRemainingTimeParams{AttemptUUID: a.UUID, UserUUID: uuid.New()})
	requireCode(t, err, attempt.ErrCodeAttemptNotFound)
}

func TestConcurrentViolationsAreSerialized(t *testing.T) {
	e := newTestEnv(t, nil)
	a := e.start(t, examtest.ExamID)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.srvc.RecordViolation.Handle(context.Background(), attemptsrvc.RecordViolationParams{
				AttemptUUID: a.UUID,
				Type:        string(violation.TypeDevtoolsOpen),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.False(t, errors.Is(err, attempt.ErrVersionConflict))
		require.NoError(t, err)
	}

	stored, err := e.srvc.GetAttempt.Handle(context.Background(), attemptsrvc.GetAttemptParams{AttemptUUID: a.UUID})
	require.NoError(t, err)
	assert.Equal(t, 10, stored.Warnings)
	assert.Equal(t, 11, stored.Version)
}

func TestSubmitAndDisqualifyRaceSettlesOnce(t *testing.T) {
	for range 20 {
		e := newTestEnv(t, nil)
		a := e.start(t, examtest.ExamID)
		e.answer(t, a, "quiz", "q1", `"b"`)

		var wg sync.WaitGroup
		var submitErr, dqErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, submitErr = e.srvc.SubmitAttempt.Handle(context.Background(), attemptsrvc.SubmitAttemptParams{
				AttemptUUID: a.UUID,
				UserUUID:    a.UserUUID,
			})
		}()
		go func() {
			defer wg.Done()
			_, dqErr = e.srvc.Disqualify.Handle(context.Background(), attemptsrvc.DisqualifyParams{
				AttemptUUID: a.UUID,
				Reason:      "impersonation",
			})
		}()
		wg.Wait()

		stored, err := e.srvc.GetAttempt.Handle(context.Background(), attemptsrvc.GetAttemptParams{AttemptUUID: a.UUID})
		require.NoError(t, err)
		require.NoError(t, stored.CheckInvariant())
		require.False(t, errors.Is(submitErr, attempt.ErrVersionConflict))
		require.False(t, errors.Is(dqErr, attempt.ErrVersionConflict))

		switch stored.Status {
		case attempt.StatusDisqualified:
			require.NoError(t, dqErr)
			requireCode(t, submitErr, attempt.ErrCodeInvalidTransition)
			assert.Equal(t, "impersonation", *stored.DisqualifiedReason)
		case attempt.StatusGraded:
			require.NoError(t, submitErr)
			requireCode(t, dqErr, attempt.ErrCodeInvalidTransition)
			assert.False(t, stored.IsDisqualified)
		default:
			t.Fatalf("unexpected final status %s", stored.Status)
		}
	}
}
