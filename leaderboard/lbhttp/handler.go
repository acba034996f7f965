package lbhttp

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/programme-lv/proctor/auth"
	"github.com/programme-lv/proctor/httpjson"
	"github.com/programme-lv/proctor/leaderboard"
	"github.com/programme-lv/proctor/notify"
	"github.com/programme-lv/proctor/scoring"
)

type LeaderboardHttpHandler struct {
	srvc *leaderboard.LeaderboardSrvc
	// subscribe is nil when the server runs without an event bus
	subscribe func() (<-chan notify.Event, func())

	keepAlive time.Duration
}

func NewLeaderboardHttpHandler(srvc *leaderboard.LeaderboardSrvc, bus *notify.Bus) *LeaderboardHttpHandler {
	h := &LeaderboardHttpHandler{srvc: srvc, keepAlive: 15 * time.Second}
	if bus != nil {
		h.subscribe = bus.Subscribe
	}
	return h
}

func (h *LeaderboardHttpHandler) RegisterRoutes(r *chi.Mux, jwtKey []byte) {
	r.Get("/exams/{examID}/leaderboard", h.GetBoard)
	r.Get("/exams/{examID}/leaderboard/listen", h.ListenToBoardUpdates)
	r.Group(func(r chi.Router) {
		r.Use(auth.GetJwtAuthMiddleware(jwtKey))
		r.Use(auth.RequireRole(auth.RoleAdmin))
		r.Post("/exams/{examID}/leaderboard/recalculate", h.Recalculate)
	})
}

type BoardEntry struct {
	Rank          *int      `json:"rank"`
	PrevRank      *int      `json:"prev_rank"`
	RankChange    int       `json:"rank_change"`
	AttemptUUID   uuid.UUID `json:"attempt_uuid"`
	UserUUID      uuid.UUID `json:"user_uuid"`
	Status        string    `json:"status"`
	RawScore      string    `json:"raw_score"`
	WeightedScore string    `json:"weighted_score"`
	MaxScore      string    `json:"max_score"`
	ScorePercent  string    `json:"score_percent"`
	Percentile    *string   `json:"percentile"`
	TimeSpentSec  *int      `json:"time_spent_sec"`
	Disqualified  bool      `json:"disqualified"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Board struct {
	ExamID  string       `json:"exam_id"`
	Entries []BoardEntry `json:"entries"`
}

func mapBoard(examID string, entries []leaderboard.Entry) Board {
	res := Board{ExamID: examID, Entries: make([]BoardEntry, 0, len(entries))}
	for _, e := range entries {
		var percentile *string
		if e.Percentile != nil {
			s := scoring.Round2(*e.Percentile).String()
			percentile = &s
		}
		res.Entries = append(res.Entries, BoardEntry{
			Rank:          e.Rank,
			PrevRank:      e.PrevRank,
			RankChange:    e.RankChange,
			AttemptUUID:   e.AttemptUUID,
			UserUUID:      e.UserUUID,
			Status:        string(e.Status),
			RawScore:      scoring.Round2(e.RawScore).String(),
			WeightedScore: scoring.Round2(e.WeightedScore).String(),
			MaxScore:      scoring.Round2(e.MaxScore).String(),
			ScorePercent:  scoring.Round2(e.ScorePercent).String(),
			Percentile:    percentile,
			TimeSpentSec:  e.TimeSpentSec,
			Disqualified:  e.Disqualified,
			UpdatedAt:     e.UpdatedAt,
		})
	}
	return res
}

func (h *LeaderboardHttpHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	entries, err := h.srvc.GetBoard.Handle(r.Context(), leaderboard.GetBoardParams{ExamID: examID})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapBoard(examID, entries))
}

func (h *LeaderboardHttpHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	entries, err := h.srvc.Recalculate.Handle(r.Context(), leaderboard.RecalculateParams{ExamID: examID})
	if err != nil {
		httpjson.HandleError(slog.Default(), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapBoard(examID, entries))
}
