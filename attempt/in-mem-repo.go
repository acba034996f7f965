package attempt

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/violation"
)

type InMemRepo struct {
	mu         sync.Mutex
	attempts   map[uuid.UUID]Attempt
	violations map[uuid.UUID]violation.Violation
}

func NewInMemRepo() *InMemRepo {
	return &InMemRepo{
		attempts:   map[uuid.UUID]Attempt{},
		violations: map[uuid.UUID]violation.Violation{},
	}
}

func (r *InMemRepo) GetAttempt(ctx context.Context, id uuid.UUID) (*Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return nil, nil
	}
	c := a.Clone()
	return &c, nil
}

func (r *InMemRepo) SaveAttempt(ctx context.Context, a *Attempt, vs ...violation.Violation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.attempts[a.UUID]
	if (ok && stored.Version != a.Version) || (!ok && a.Version != 0) {
		return ErrVersionConflict
	}
	for _, v := range vs {
		if err := r.checkViolationSlot(v); err != nil {
			return err
		}
	}
	a.Version++
	r.attempts[a.UUID] = a.Clone()
	for _, v := range vs {
		r.violations[v.UUID] = v
	}
	return nil
}

// checkViolationSlot keeps one violation record per attempt and type.
func (r *InMemRepo) checkViolationSlot(v violation.Violation) error {
	for _, other := range r.violations {
		if other.AttemptUUID == v.AttemptUUID && other.Type == v.Type && other.UUID != v.UUID {
			return ErrVersionConflict
		}
	}
	return nil
}

func (r *InMemRepo) ListExamAttempts(ctx context.Context, examID string) ([]Attempt, error) {
	return r.list(func(a Attempt) bool { return a.ExamID == examID }), nil
}

func (r *InMemRepo) ListInProgress(ctx context.Context, examID string) ([]Attempt, error) {
	return r.list(func(a Attempt) bool {
		return a.Status == StatusInProgress && (examID == "" || a.ExamID == examID)
	}), nil
}

func (r *InMemRepo) list(keep func(Attempt) bool) []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := []Attempt{}
	for _, a := range r.attempts {
		if keep(a) {
			res = append(res, a.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res
}

func (r *InMemRepo) SetRanks(ctx context.Context, ranks []RankUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range ranks {
		a, ok := r.attempts[u.AttemptUUID]
		if !ok {
			continue
		}
		a.Rank = u.Rank
		a.Percentile = u.Percentile
		r.attempts[u.AttemptUUID] = a
	}
	return nil
}

func (r *InMemRepo) GetViolation(ctx context.Context, id uuid.UUID) (*violation.Violation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.violations[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r *InMemRepo) FindViolation(ctx context.Context, attemptUUID uuid.UUID, t violation.Type) (*violation.Violation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.violations {
		if v.AttemptUUID == attemptUUID && v.Type == t {
			return &v, nil
		}
	}
	return nil, nil
}

func (r *InMemRepo) ListViolations(ctx context.Context, attemptUUID uuid.UUID) ([]violation.Violation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := []violation.Violation{}
	for _, v := range r.violations {
		if v.AttemptUUID == attemptUUID {
			res = append(res, v)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

func (r *InMemRepo) SaveViolation(ctx context.Context, v violation.Violation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkViolationSlot(v); err != nil {
		return err
	}
	r.violations[v.UUID] = v
	return nil
}
