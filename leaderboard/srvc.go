package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/keylock"
	"github.com/programme-lv/proctor/logger"
	"github.com/programme-lv/proctor/notify"
	decorator "github.com/programme-lv/proctor/srvccqs"
)

type Deps struct {
	Repo Repo
	// ListAttempts and SetRanks are served by the attempt repository.
	ListAttempts func(ctx context.Context, examID string) ([]attempt.Attempt, error)
	SetRanks     func(ctx context.Context, ranks []attempt.RankUpdate) error
	Publish      func(ctx context.Context, e notify.Event)
	// CacheTTL bounds how stale a served board may be; zero disables
	// caching.
	CacheTTL time.Duration
	Now      func() time.Time
}

type (
	RecalculateCmd decorator.CmdResHandler[RecalculateParams, []Entry]
	RefreshCmd     decorator.CmdHandler[RecalculateParams]
	GetBoardQuery  decorator.QueryHandler[GetBoardParams, []Entry]
)

type LeaderboardSrvc struct {
	Recalculate RecalculateCmd
	// Refresh recalculates without returning the board. Attempt and
	// appeal services call it after a scored attempt changes.
	Refresh  RefreshCmd
	GetBoard GetBoardQuery
}

func NewLeaderboardSrvc(d Deps) *LeaderboardSrvc {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	publish := d.Publish
	if publish == nil {
		publish = func(ctx context.Context, e notify.Event) {}
	}
	var boards *cache.Cache
	if d.CacheTTL > 0 {
		boards = cache.New(d.CacheTTL, 2*d.CacheTTL)
	}

	s := &LeaderboardSrvc{
		Recalculate: recalculateHandler{
			locks:        keylock.New[string](),
			repo:         d.Repo,
			listAttempts: d.ListAttempts,
			setRanks:     d.SetRanks,
			publish:      publish,
			boards:       boards,
			now:          now,
		},
		GetBoard: getBoardHandler{repo: d.Repo, boards: boards},
	}
	s.Recalculate = decorator.WithQueryTracing[RecalculateParams, []Entry]("RecalculateLeaderboard", s.Recalculate)
	s.GetBoard = decorator.WithQueryTracing[GetBoardParams, []Entry]("GetLeaderboard", s.GetBoard)
	s.Refresh = decorator.WithTracing[RecalculateParams]("RefreshLeaderboard",
		decorator.CmdHandlerFunc[RecalculateParams](func(ctx context.Context, p RecalculateParams) error {
			_, err := s.Recalculate.Handle(ctx, p)
			return err
		}))
	return s
}

// RecalculateFor is Refresh in the shape of the attempt and appeal
// services' callback.
func (s *LeaderboardSrvc) RecalculateFor(ctx context.Context, examID string) error {
	return s.Refresh.Handle(ctx, RecalculateParams{ExamID: examID})
}

type RecalculateParams struct {
	ExamID string
}

type recalculateHandler struct {
	locks        *keylock.Map[string]
	repo         Repo
	listAttempts func(ctx context.Context, examID string) ([]attempt.Attempt, error)
	setRanks     func(ctx context.Context, ranks []attempt.RankUpdate) error
	publish      func(ctx context.Context, e notify.Event)
	boards       *cache.Cache
	now          func() time.Time
}

// Handle rebuilds the exam's board from the current attempt records.
// Running it twice without attempt changes yields the same ranks.
func (h recalculateHandler) Handle(ctx context.Context, p RecalculateParams) ([]Entry, error) {
	unlock := h.locks.Lock(p.ExamID)
	defer unlock()
	ctx = logger.WithExamID(ctx, p.ExamID)

	entries, err := h.repo.Rebuild(ctx, p.ExamID, func(ctx context.Context, prev []Entry) ([]Entry, error) {
		attempts, err := h.listAttempts(ctx, p.ExamID)
		if err != nil {
			return nil, fmt.Errorf("failed to list attempts: %w", err)
		}
		return Build(attempts, prev, h.now()), nil
	})
	if err != nil {
		return nil, err
	}
	if h.boards != nil {
		h.boards.Delete(p.ExamID)
	}

	// ranks on attempt records are a convenience copy; the board stays
	// valid if this fails
	if err := h.setRanks(ctx, RankUpdates(entries)); err != nil {
		logger.FromContext(ctx).Warn("failed to copy ranks to attempts", "error", err)
	}

	logger.FromContext(ctx).Info("leaderboard recalculated", "entries", len(entries))
	h.publish(ctx, notify.LeaderboardUpdated{
		ExamID:  p.ExamID,
		Entries: len(entries),
		At:      h.now(),
	})
	return entries, nil
}

type GetBoardParams struct {
	ExamID string
}

type getBoardHandler struct {
	repo   Repo
	boards *cache.Cache
}

func (h getBoardHandler) Handle(ctx context.Context, p GetBoardParams) ([]Entry, error) {
	if h.boards != nil {
		if cached, ok := h.boards.Get(p.ExamID); ok {
			return cached.([]Entry), nil
		}
	}
	entries, err := h.repo.ListEntries(ctx, p.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboard: %w", err)
	}
	if h.boards != nil {
		h.boards.SetDefault(p.ExamID, entries)
	}
	return entries, nil
}
