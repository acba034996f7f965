package appeal

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

type Repo interface {
	// GetAppeal returns nil without an error when the appeal is unknown.
	GetAppeal(ctx context.Context, id uuid.UUID) (*Appeal, error)
	// SaveAppeal inserts or replaces an appeal. At most one appeal per
	// violation may be open, else ErrOpenAppealExists.
	SaveAppeal(ctx context.Context, a Appeal) error
	ListAttemptAppeals(ctx context.Context, attemptUUID uuid.UUID) ([]Appeal, error)
	ListOpen(ctx context.Context) ([]Appeal, error)
}

type InMemRepo struct {
	mu      sync.Mutex
	appeals map[uuid.UUID]Appeal
}

func NewInMemRepo() *InMemRepo {
	return &InMemRepo{appeals: map[uuid.UUID]Appeal{}}
}

func (r *InMemRepo) GetAppeal(ctx context.Context, id uuid.UUID) (*Appeal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appeals[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *InMemRepo) SaveAppeal(ctx context.Context, a Appeal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.Status.IsOpen() {
		for _, other := range r.appeals {
			if other.UUID != a.UUID && other.ViolationUUID == a.ViolationUUID && other.Status.IsOpen() {
				return ErrOpenAppealExists
			}
		}
	}
	r.appeals[a.UUID] = a
	return nil
}

func (r *InMemRepo) ListAttemptAppeals(ctx context.Context, attemptUUID uuid.UUID) ([]Appeal, error) {
	return r.list(func(a Appeal) bool { return a.AttemptUUID == attemptUUID }), nil
}

func (r *InMemRepo) ListOpen(ctx context.Context) ([]Appeal, error) {
	return r.list(func(a Appeal) bool { return a.Status.IsOpen() }), nil
}

func (r *InMemRepo) list(keep func(Appeal) bool) []Appeal {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := []Appeal{}
	for _, a := range r.appeals {
		if keep(a) {
			res = append(res, a)
		}
	}
	slices.SortFunc(res, func(a, b Appeal) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.UUID[:], b.UUID[:])
	})
	return res
}
