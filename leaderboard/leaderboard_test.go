package leaderboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/leaderboard"
	"github.com/programme-lv/proctor/notify"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func secs(n int) *int {
	return &n
}

func entry(name string, weighted int64, timeSpent *int) leaderboard.Entry {
	return leaderboard.Entry{
		AttemptUUID:   uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)),
		WeightedScore: decimal.NewFromInt(weighted),
		TimeSpentSec:  timeSpent,
	}
}

func ranksByUUID(entries []leaderboard.Entry) map[uuid.UUID]*int {
	res := map[uuid.UUID]*int{}
	for _, e := range entries {
		res[e.AttemptUUID] = e.Rank
	}
	return res
}

func TestRank_CompetitionRankingWithTies(t *testing.T) {
	a := entry("a", 90, secs(100))
	b := entry("b", 90, secs(100))
	c := entry("c", 80, secs(50))
	d := entry("d", 90, secs(120))
	e := entry("e", 90, nil)
	f := entry("f", 70, secs(10))

	ranked := leaderboard.Rank([]leaderboard.Entry{f, e, d, c, b, a})
	got := ranksByUUID(ranked)

	assert.Equal(t, 1, *got[a.AttemptUUID])
	assert.Equal(t, 1, *got[b.AttemptUUID])
	assert.Equal(t, 3, *got[d.AttemptUUID], "next distinct entry continues from its index")
	assert.Equal(t, 4, *got[e.AttemptUUID], "missing time ranks slowest among equal scores")
	assert.Equal(t, 5, *got[c.AttemptUUID])
	assert.Equal(t, 6, *got[f.AttemptUUID])

	again := leaderboard.Rank(ranked)
	assert.Equal(t, ranked, again)
}

func TestRank_NilTimesTie(t *testing.T) {
	a := entry("a", 50, nil)
	b := entry("b", 50, nil)
	ranked := leaderboard.Rank([]leaderboard.Entry{a, b})
	assert.Equal(t, 1, *ranked[0].Rank)
	assert.Equal(t, 1, *ranked[1].Rank)
}

func TestRank_PercentileAndRankChange(t *testing.T) {
	a := entry("a", 100, secs(10))
	b := entry("b", 90, secs(10))
	c := entry("c", 90, secs(10))
	d := entry("d", 10, secs(10))
	a.PrevRank = secs(2)
	b.PrevRank = secs(1)
	dq := entry("dq", 120, secs(5))
	dq.Disqualified = true
	dq.PrevRank = secs(1)

	ranked := leaderboard.Rank([]leaderboard.Entry{dq, d, c, b, a})
	require.Len(t, ranked, 5)

	byUUID := map[uuid.UUID]leaderboard.Entry{}
	for _, e := range ranked {
		byUUID[e.AttemptUUID] = e
	}
	assert.Equal(t, "100", byUUID[a.AttemptUUID].Percentile.String())
	assert.Equal(t, "75", byUUID[b.AttemptUUID].Percentile.String())
	assert.Equal(t, "75", byUUID[c.AttemptUUID].Percentile.String())
	assert.Equal(t, "25", byUUID[d.AttemptUUID].Percentile.String())

	assert.Equal(t, 1, byUUID[a.AttemptUUID].RankChange)
	assert.Equal(t, -1, byUUID[b.AttemptUUID].RankChange)
	assert.Zero(t, byUUID[c.AttemptUUID].RankChange)

	last := ranked[len(ranked)-1]
	assert.Equal(t, dq.AttemptUUID, last.AttemptUUID)
	assert.Nil(t, last.Rank)
	assert.Nil(t, last.Percentile)
	assert.Zero(t, last.RankChange)
}

func scoredAttempt(t *testing.T, examID string, weighted int64, spent time.Duration, status attempt.Status) attempt.Attempt {
	t.Helper()
	a := attempt.New(examID, uuid.New(), uuid.New(), t0)
	started := t0
	completed := t0.Add(spent)
	a.StartedAt = &started
	a.CompletedAt = &completed
	a.Status = status
	a.WeightedScore = decimal.NewFromInt(weighted)
	if status == attempt.StatusDisqualified {
		reason := "tab switch limit exceeded"
		a.IsDisqualified = true
		a.DisqualifiedReason = &reason
	}
	return a
}

func TestProject(t *testing.T) {
	running := attempt.New("x", uuid.New(), uuid.New(), t0)
	running.Status = attempt.StatusInProgress
	graded := scoredAttempt(t, "x", 70, time.Hour, attempt.StatusGraded)
	dq := scoredAttempt(t, "x", 90, time.Hour, attempt.StatusDisqualified)
	expired := scoredAttempt(t, "x", 0, 3*time.Hour, attempt.StatusExpired)

	entries := leaderboard.Project([]attempt.Attempt{running, graded, dq, expired}, nil, t0)
	require.Len(t, entries, 2)
	assert.Equal(t, graded.UUID, entries[0].AttemptUUID)
	assert.Equal(t, 3600, *entries[0].TimeSpentSec)
	assert.True(t, entries[1].Disqualified)
}

type fixture struct {
	srvc     *leaderboard.LeaderboardSrvc
	attempts *attempt.InMemRepo
	events   []notify.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{attempts: attempt.NewInMemRepo()}
	f.srvc = leaderboard.NewLeaderboardSrvc(leaderboard.Deps{
		Repo:         leaderboard.NewInMemRepo(),
		ListAttempts: f.attempts.ListExamAttempts,
		SetRanks:     f.attempts.SetRanks,
		Publish: func(ctx context.Context, e notify.Event) {
			f.events = append(f.events, e)
		},
		CacheTTL: time.Minute,
		Now:      func() time.Time { return t0 },
	})
	return f
}

func (f *fixture) save(t *testing.T, a attempt.Attempt) attempt.Attempt {
	t.Helper()
	require.NoError(t, f.attempts.SaveAttempt(context.Background(), &a))
	return a
}

func TestRecalculate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.save(t, scoredAttempt(t, "olymp-r1", 80, time.Hour, attempt.StatusGraded))
	second := f.save(t, scoredAttempt(t, "olymp-r1", 60, time.Hour, attempt.StatusGraded))
	f.save(t, scoredAttempt(t, "other", 100, time.Hour, attempt.StatusGraded))

	entries, err := f.srvc.Recalculate.Handle(ctx, leaderboard.RecalculateParams{ExamID: "olymp-r1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.UUID, entries[0].AttemptUUID)

	again, err := f.srvc.Recalculate.Handle(ctx, leaderboard.RecalculateParams{ExamID: "olymp-r1"})
	require.NoError(t, err)
	for i := range entries {
		assert.Equal(t, *entries[i].Rank, *again[i].Rank)
		assert.Equal(t, *entries[i].Rank, *again[i].PrevRank)
		assert.Zero(t, again[i].RankChange)
	}

	stored, err := f.attempts.GetAttempt(ctx, second.UUID)
	require.NoError(t, err)
	require.NotNil(t, stored.Rank)
	assert.Equal(t, 2, *stored.Rank)
	assert.Equal(t, "50", stored.Percentile.String())
	assert.Equal(t, second.Version, stored.Version)

	require.Len(t, f.events, 2)
	upd, ok := f.events[0].(notify.LeaderboardUpdated)
	require.True(t, ok)
	assert.Equal(t, "olymp-r1", upd.ExamID)
	assert.Equal(t, 2, upd.Entries)
}

func TestRecalculate_DisqualificationAndReinstatement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader := f.save(t, scoredAttempt(t, "olymp-r1", 90, time.Hour, attempt.StatusSubmitted))
	f.save(t, scoredAttempt(t, "olymp-r1", 50, time.Hour, attempt.StatusGraded))

	_, err := f.srvc.Recalculate.Handle(ctx, leaderboard.RecalculateParams{ExamID: "olymp-r1"})
	require.NoError(t, err)

	_, err = leader.Disqualify("vpn usage", t0)
	require.NoError(t, err)
	leader = f.save(t, leader)
	entries, err := f.srvc.Recalculate.Handle(ctx, leaderboard.RecalculateParams{ExamID: "olymp-r1"})
	require.NoError(t, err)
	assert.Equal(t, 1, *entries[0].Rank)
	assert.Equal(t, 1, entries[0].RankChange)
	assert.True(t, entries[1].Disqualified)
	assert.Nil(t, entries[1].Rank)

	require.NoError(t, leader.Reinstate())
	f.save(t, leader)
	entries, err = f.srvc.Recalculate.Handle(ctx, leaderboard.RecalculateParams{ExamID: "olymp-r1"})
	require.NoError(t, err)
	assert.Equal(t, leader.UUID, entries[0].AttemptUUID)
	assert.Equal(t, 1, *entries[0].Rank)
	assert.False(t, entries[0].Disqualified)
}

func TestGetBoard_ServesCachedUntilRecalculated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.save(t, scoredAttempt(t, "olymp-r1", 90, time.Hour, attempt.StatusGraded))
	require.NoError(t, f.srvc.RecalculateFor(ctx, "olymp-r1"))

	board, err := f.srvc.GetBoard.Handle(ctx, leaderboard.GetBoardParams{ExamID: "olymp-r1"})
	require.NoError(t, err)
	assert.Len(t, board, 1)

	f.save(t, scoredAttempt(t, "olymp-r1", 10, time.Hour, attempt.StatusGraded))
	board, err = f.srvc.GetBoard.Handle(ctx, leaderboard.GetBoardParams{ExamID: "olymp-r1"})
	require.NoError(t, err)
	assert.Len(t, board, 1, "board changes only through recalculation")

	require.NoError(t, f.srvc.RecalculateFor(ctx, "olymp-r1"))
	board, err = f.srvc.GetBoard.Handle(ctx, leaderboard.GetBoardParams{ExamID: "olymp-r1"})
	require.NoError(t, err)
	assert.Len(t, board, 2)
}
