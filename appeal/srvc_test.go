package appeal_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/appeal"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/attempt/attemptsrvc"
	"github.com/programme-lv/proctor/device"
	"github.com/programme-lv/proctor/evidence"
	"github.com/programme-lv/proctor/exam"
	"github.com/programme-lv/proctor/exam/examtest"
	"github.com/programme-lv/proctor/judge"
	"github.com/programme-lv/proctor/leaderboard"
	"github.com/programme-lv/proctor/notify"
	"github.com/programme-lv/proctor/registration"
	"github.com/programme-lv/proctor/violation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var laptop = device.Fingerprint{
	ScreenResolution: "1920x1080",
	Timezone:         "Europe/Riga",
	Canvas:           "c4nv4s",
	WebGL:            "angle-intel",
	Audio:            "124.04",
	FontHash:         "f0n75",
	Platform:         "Linux x86_64",
}

// env wires the attempt, leaderboard and appeal services over in-memory
// stores the way the server does.
type env struct {
	attempts *attemptsrvc.AttemptSrvc
	board    *leaderboard.LeaderboardSrvc
	appeals  *appeal.AppealSrvc
	repo     *attempt.InMemRepo
	regs     *registration.InMemRegistry
	store    *evidence.InMemStore

	mu     sync.Mutex
	now    time.Time
	events []notify.Event
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		repo:  attempt.NewInMemRepo(),
		regs:  registration.NewInMemRegistry(),
		store: evidence.NewInMemStore(),
		now:   t0,
	}
	exams := exam.NewStaticProvider(examtest.TwoSections())
	publish := func(ctx context.Context, ev notify.Event) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.events = append(e.events, ev)
	}
	e.board = leaderboard.NewLeaderboardSrvc(leaderboard.Deps{
		Repo:         leaderboard.NewInMemRepo(),
		ListAttempts: e.repo.ListExamAttempts,
		SetRanks:     e.repo.SetRanks,
		Publish:      publish,
		Now:          e.clock,
	})
	e.attempts = attemptsrvc.NewAttemptSrvc(attemptsrvc.Deps{
		Repo:          e.repo,
		Exams:         exams,
		Registrations: e.regs,
		Devices:       device.NewRegistry(device.NewInMemDeviceRepo()),
		Locks:         device.NewInMemLockRepo(),
		Judge: judge.Func(func(ctx context.Context, req judge.Request) (judge.Result, error) {
			return judge.Result{Status: judge.StatusPartial, PassedCount: 1, TotalCount: len(req.TestCases)}, nil
		}),
		Publish:           publish,
		RecalcLeaderboard: e.board.RecalculateFor,
		Now:               e.clock,
	})
	e.appeals = appeal.NewAppealSrvc(appeal.Deps{
		Repo:          appeal.NewInMemRepo(),
		Archive:       evidence.NewArchive(e.store),
		GetAttempt:    e.repo.GetAttempt,
		GetViolation:  e.repo.GetViolation,
		SaveViolation: e.repo.SaveViolation,
		GetExam:       exams.GetExam,
		Reinstate: func(ctx context.Context, id uuid.UUID) (attempt.Attempt, error) {
			return e.attempts.Reinstate.Handle(ctx, attemptsrvc.ReinstateParams{AttemptUUID: id})
		},
		RecalcLeaderboard: e.board.RecalculateFor,
		Publish:           publish,
		Now:               e.clock,
	})
	return e
}

func (e *env) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *env) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func (e *env) eventsOf(typ string) []notify.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var res []notify.Event
	for _, ev := range e.events {
		if ev.Type() == typ {
			res = append(res, ev)
		}
	}
	return res
}

func (e *env) start(t *testing.T) attempt.Attempt {
	t.Helper()
	user, reg := uuid.New(), uuid.New()
	e.regs.Put(registration.Registration{UUID: reg, ExamID: examtest.ExamID, UserUUID: user, Status: registration.StatusConfirmed})
	a, err := e.attempts.StartAttempt.Handle(context.Background(), attemptsrvc.StartAttemptParams{
		ExamID:         examtest.ExamID,
		UserUUID:       user,
		RegistrationID: reg,
		Fingerprint:    laptop,
	})
	require.NoError(t, err)
	return a
}

func (e *env) answerQ1(t *testing.T, a attempt.Attempt) {
	t.Helper()
	_, err := e.attempts.SubmitAnswer.Handle(context.Background(), attemptsrvc.SubmitAnswerParams{
		AttemptUUID:  a.UUID,
		UserUUID:     a.UserUUID,
		SectionID:    "quiz",
		QuestionID:   "q1",
		Payload:      json.RawMessage(`"b"`),
		TimeSpentSec: 60,
	})
	require.NoError(t, err)
}

// disqualifyByTabSwitches returns the violation that disqualified a.
func (e *env) disqualifyByTabSwitches(t *testing.T, a attempt.Attempt) violation.Violation {
	t.Helper()
	var out attemptsrvc.ViolationOutcome
	for range 4 {
		var err error
		out, err = e.attempts.RecordViolation.Handle(context.Background(), attemptsrvc.RecordViolationParams{
			AttemptUUID: a.UUID,
			UserUUID:    a.UserUUID,
			Type:        string(violation.TypeTabSwitch),
		})
		require.NoError(t, err)
	}
	require.True(t, out.Disqualified)
	return out.Violation
}

func (e *env) fileAppeal(t *testing.T, a attempt.Attempt, v violation.Violation) appeal.Appeal {
	t.Helper()
	ap, err := e.appeals.FileAppeal.Handle(context.Background(), appeal.FileAppealParams{
		ViolationUUID: v.UUID,
		UserUUID:      a.UserUUID,
		Reason:        "a notification popup stole focus",
	})
	require.NoError(t, err)
	return ap
}

func boardEntry(t *testing.T, e *env, attemptUUID uuid.UUID) leaderboard.Entry {
	t.Helper()
	entries, err := e.board.GetBoard.Handle(context.Background(), leaderboard.GetBoardParams{ExamID: examtest.ExamID})
	require.NoError(t, err)
	for _, en := range entries {
		if en.AttemptUUID == attemptUUID {
			return en
		}
	}
	require.FailNow(t, "attempt is not on the board")
	return leaderboard.Entry{}
}

func TestApproveReinstatedRestoresLeaderboardEntry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	reviewer := uuid.New()

	rival := e.start(t)
	e.answerQ1(t, rival)
	_, err := e.attempts.SubmitAttempt.Handle(ctx, attemptsrvc.SubmitAttemptParams{AttemptUUID: rival.UUID, UserUUID: rival.UserUUID})
	require.NoError(t, err)

	a := e.start(t)
	e.answerQ1(t, a)
	e.advance(10 * time.Minute)
	v := e.disqualifyByTabSwitches(t, a)

	entry := boardEntry(t, e, a.UUID)
	assert.True(t, entry.Disqualified)
	assert.Nil(t, entry.Rank)

	e.advance(2 * time.Hour)
	ap := e.fileAppeal(t, a, v)
	assert.Equal(t, appeal.StatusPending, ap.Status)
	require.NotNil(t, ap.EvidenceKey)

	bundle, err := e.appeals.GetEvidence.Handle(ctx, appeal.GetEvidenceParams{AppealUUID: ap.UUID})
	require.NoError(t, err)
	require.Len(t, bundle.Answers, 1)
	assert.Equal(t, "q1", bundle.Answers[0].QuestionID)
	assert.Equal(t, v.UUID, bundle.Violation.UUID)
	assert.Contains(t, bundle.DisqualifiedReason, "tab switch")

	_, err = e.appeals.FileAppeal.Handle(ctx, appeal.FileAppealParams{ViolationUUID: v.UUID, UserUUID: a.UserUUID, Reason: "again"})
	requireCode(t, err, appeal.ErrCodeAppealAlreadyOpen)

	_, err = e.appeals.FileAppeal.Handle(ctx, appeal.FileAppealParams{ViolationUUID: v.UUID, UserUUID: rival.UserUUID, Reason: "not mine"})
	requireCode(t, err, appeal.ErrCodeViolationNotFound)

	_, err = e.appeals.StartReview.Handle(ctx, appeal.StartReviewParams{AppealUUID: ap.UUID, ReviewerUUID: reviewer})
	require.NoError(t, err)
	e.advance(time.Hour)
	ap, err = e.appeals.ApproveAppeal.Handle(ctx, appeal.ApproveAppealParams{
		AppealUUID:   ap.UUID,
		ReviewerUUID: reviewer,
		Resolution:   violation.ResolutionReinstated,
		Note:         "focus loss came from a system dialog",
	})
	require.NoError(t, err)
	assert.Equal(t, appeal.StatusApproved, ap.Status)

	got, err := e.attempts.GetAttempt.Handle(ctx, attemptsrvc.GetAttemptParams{AttemptUUID: a.UUID})
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusSubmitted, got.Status)
	assert.False(t, got.IsDisqualified)
	assert.Nil(t, got.DisqualifiedReason)

	resolved, err := e.repo.GetViolation(ctx, v.UUID)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, violation.ResolutionReinstated, *resolved.Resolution)

	reg, ok := e.regs.Get(a.RegistrationID)
	require.True(t, ok)
	assert.Equal(t, registration.StatusConfirmed, reg.Status)

	entry = boardEntry(t, e, a.UUID)
	assert.False(t, entry.Disqualified)
	require.NotNil(t, entry.Rank)
	assert.Equal(t, "8", entry.WeightedScore.String())

	events := e.eventsOf(notify.TypeAppealResolved)
	require.Len(t, events, 1)
	res := events[0].(notify.AppealResolved)
	assert.Equal(t, "reinstated", res.Resolution)
	assert.Equal(t, examtest.ExamID, res.ExamID)
	assert.Equal(t, "focus loss came from a system dialog", res.Note)

	_, err = e.appeals.RejectAppeal.Handle(ctx, appeal.RejectAppealParams{AppealUUID: ap.UUID, ReviewerUUID: reviewer, Note: "late"})
	requireCode(t, err, appeal.ErrCodeInvalidTransition)
}

func TestRejectUpholdsDisqualification(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	reviewer := uuid.New()

	a := e.start(t)
	v := e.disqualifyByTabSwitches(t, a)
	ap := e.fileAppeal(t, a, v)

	_, err := e.appeals.StartReview.Handle(ctx, appeal.StartReviewParams{AppealUUID: ap.UUID, ReviewerUUID: reviewer})
	require.NoError(t, err)
	ap, err = e.appeals.RejectAppeal.Handle(ctx, appeal.RejectAppealParams{
		AppealUUID:   ap.UUID,
		ReviewerUUID: reviewer,
		Note:         "screen recording shows a second browser window",
	})
	require.NoError(t, err)
	assert.Equal(t, appeal.StatusRejected, ap.Status)
	assert.Equal(t, violation.ResolutionUpheld, *ap.Resolution)

	got, err := e.attempts.GetAttempt.Handle(ctx, attemptsrvc.GetAttemptParams{AttemptUUID: a.UUID})
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusDisqualified, got.Status)

	upheld, err := e.repo.GetViolation(ctx, v.UUID)
	require.NoError(t, err)
	assert.True(t, upheld.Resolved)
	assert.Equal(t, violation.ResolutionUpheld, *upheld.Resolution)

	_, err = e.appeals.FileAppeal.Handle(ctx, appeal.FileAppealParams{ViolationUUID: v.UUID, UserUUID: a.UserUUID, Reason: "please"})
	requireCode(t, err, appeal.ErrCodeViolationNotAppealable)
	assert.Len(t, e.eventsOf(notify.TypeAppealResolved), 1)
}

func TestFileAppeal_After25HoursIsClosed(t *testing.T) {
	e := newEnv(t)
	a := e.start(t)
	v := e.disqualifyByTabSwitches(t, a)

	e.advance(25 * time.Hour)
	_, err := e.appeals.FileAppeal.Handle(context.Background(), appeal.FileAppealParams{
		ViolationUUID: v.UUID,
		UserUUID:      a.UserUUID,
		Reason:        "I was on a slow connection",
	})
	requireCode(t, err, appeal.ErrCodeAppealWindowClosed)
	assert.Empty(t, e.store.Keys())
}

func TestApprovalWithoutReinstatementKeepsDisqualification(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	reviewer := uuid.New()

	a := e.start(t)
	v := e.disqualifyByTabSwitches(t, a)
	ap := e.fileAppeal(t, a, v)
	_, err := e.appeals.StartReview.Handle(ctx, appeal.StartReviewParams{AppealUUID: ap.UUID, ReviewerUUID: reviewer})
	require.NoError(t, err)
	_, err = e.appeals.ApproveAppeal.Handle(ctx, appeal.ApproveAppealParams{
		AppealUUID:   ap.UUID,
		ReviewerUUID: reviewer,
		Resolution:   violation.ResolutionWarningReduced,
		Note:         "recorded as a warning for future rounds",
	})
	require.NoError(t, err)

	got, err := e.attempts.GetAttempt.Handle(ctx, attemptsrvc.GetAttemptParams{AttemptUUID: a.UUID})
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusDisqualified, got.Status)

	list, err := e.appeals.ListAppeals.Handle(ctx, appeal.ListAppealsParams{AttemptUUID: &a.UUID, UserUUID: a.UserUUID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, appeal.StatusApproved, list[0].Status)

	_, err = e.appeals.GetAppeal.Handle(ctx, appeal.GetAppealParams{AppealUUID: ap.UUID, UserUUID: uuid.New()})
	requireCode(t, err, appeal.ErrCodeAppealNotFound)
}
