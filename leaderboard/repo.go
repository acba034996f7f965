package leaderboard

import (
	"context"
	"slices"
	"sync"
)

// BuildFunc computes a new board from the previous one.
type BuildFunc func(ctx context.Context, prev []Entry) ([]Entry, error)

type Repo interface {
	// Rebuild runs build while holding the exam's board exclusively and
	// replaces the stored board with its result. Nothing is written
	// when build fails.
	Rebuild(ctx context.Context, examID string, build BuildFunc) ([]Entry, error)
	// ListEntries returns the board in rank order.
	ListEntries(ctx context.Context, examID string) ([]Entry, error)
}

type InMemRepo struct {
	mu     sync.Mutex
	boards map[string][]Entry
}

func NewInMemRepo() *InMemRepo {
	return &InMemRepo{boards: map[string][]Entry{}}
}

func (r *InMemRepo) Rebuild(ctx context.Context, examID string, build BuildFunc) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, err := build(ctx, slices.Clone(r.boards[examID]))
	if err != nil {
		return nil, err
	}
	r.boards[examID] = slices.Clone(next)
	return next, nil
}

func (r *InMemRepo) ListEntries(ctx context.Context, examID string) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.boards[examID]), nil
}
