package lbhttp_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/auth"
	"github.com/programme-lv/proctor/leaderboard"
	"github.com/programme-lv/proctor/leaderboard/lbhttp"
	"github.com/programme-lv/proctor/notify"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtKey = []byte("test-key")

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type fixture struct {
	attempts *attempt.InMemRepo
	srvc     *leaderboard.LeaderboardSrvc
	server   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := notify.NewBus()
	f := &fixture{attempts: attempt.NewInMemRepo()}
	f.srvc = leaderboard.NewLeaderboardSrvc(leaderboard.Deps{
		Repo:         leaderboard.NewInMemRepo(),
		ListAttempts: f.attempts.ListExamAttempts,
		SetRanks:     f.attempts.SetRanks,
		Publish: func(ctx context.Context, e notify.Event) {
			_ = bus.Notify(ctx, e)
		},
		Now: func() time.Time { return t0 },
	})
	h := lbhttp.NewLeaderboardHttpHandler(f.srvc, bus)
	r := chi.NewRouter()
	h.RegisterRoutes(r, jwtKey)
	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) addGraded(t *testing.T, weighted string, spent time.Duration) attempt.Attempt {
	t.Helper()
	a := attempt.New("olymp-r1", uuid.New(), uuid.New(), t0)
	started, completed := t0, t0.Add(spent)
	a.StartedAt = &started
	a.CompletedAt = &completed
	a.Status = attempt.StatusGraded
	a.WeightedScore = decimal.RequireFromString(weighted)
	a.MaxScore = decimal.NewFromInt(100)
	require.NoError(t, f.attempts.SaveAttempt(context.Background(), &a))
	return a
}

type boardResponse struct {
	Status string       `json:"status"`
	Data   lbhttp.Board `json:"data"`
}

func TestGetBoard(t *testing.T) {
	f := newFixture(t)
	leader := f.addGraded(t, "66.666666", time.Hour)
	f.addGraded(t, "40", time.Hour)
	_, err := f.srvc.Recalculate.Handle(context.Background(), leaderboard.RecalculateParams{ExamID: "olymp-r1"})
	require.NoError(t, err)

	resp, err := http.Get(f.server.URL + "/exams/olymp-r1/leaderboard")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body boardResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "success", body.Status)
	require.Len(t, body.Data.Entries, 2)
	first := body.Data.Entries[0]
	assert.Equal(t, leader.UUID, first.AttemptUUID)
	require.NotNil(t, first.Rank)
	assert.Equal(t, 1, *first.Rank)
	assert.Equal(t, "66.67", first.WeightedScore)
	require.NotNil(t, first.Percentile)
	assert.Equal(t, "100", *first.Percentile)
	require.NotNil(t, first.TimeSpentSec)
	assert.Equal(t, 3600, *first.TimeSpentSec)
}

func TestRecalculateEndpoint(t *testing.T) {
	f := newFixture(t)
	f.addGraded(t, "10", time.Hour)

	recalc := func(roles ...auth.Role) *http.Response {
		req, err := http.NewRequest(http.MethodPost, f.server.URL+"/exams/olymp-r1/leaderboard/recalculate", nil)
		require.NoError(t, err)
		token, err := auth.GenerateJWT("admin", uuid.New(), roles, time.Hour, jwtKey)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	denied := recalc(auth.RoleParticipant)
	denied.Body.Close()
	assert.Equal(t, http.StatusForbidden, denied.StatusCode)

	resp := recalc(auth.RoleAdmin)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body boardResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Data.Entries, 1)
}

func readEvent(t *testing.T, sc *bufio.Scanner) lbhttp.Board {
	t.Helper()
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var b lbhttp.Board
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &b))
		return b
	}
	require.FailNow(t, "stream ended", "%v", sc.Err())
	return lbhttp.Board{}
}

func TestListenToBoardUpdates(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/exams/olymp-r1/leaderboard/listen", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	initial := readEvent(t, sc)
	assert.Empty(t, initial.Entries)

	// other exams do not wake the stream
	_, err = f.srvc.Recalculate.Handle(ctx, leaderboard.RecalculateParams{ExamID: "olymp-r2"})
	require.NoError(t, err)

	f.addGraded(t, "50", time.Hour)
	_, err = f.srvc.Recalculate.Handle(ctx, leaderboard.RecalculateParams{ExamID: "olymp-r1"})
	require.NoError(t, err)

	updated := readEvent(t, sc)
	assert.Equal(t, "olymp-r1", updated.ExamID)
	require.Len(t, updated.Entries, 1)
	assert.Equal(t, "50", updated.Entries[0].WeightedScore)
}
