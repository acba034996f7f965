package attemptsrvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/exam"
	"github.com/programme-lv/proctor/keylock"
	"github.com/programme-lv/proctor/logger"
	"github.com/programme-lv/proctor/srvcerror"
	"github.com/programme-lv/proctor/violation"
)

// errUnchanged lets a mutation end without writing anything.
var errUnchanged = errors.New("attempt unchanged")

// attemptStore is the single write path for attempts. Writers of one
// attempt are serialized in process by a keyed mutex and across
// processes by the version check of the repository.
type attemptStore struct {
	locks       *keylock.Map[uuid.UUID]
	getAttempt  func(ctx context.Context, id uuid.UUID) (*attempt.Attempt, error)
	saveAttempt func(ctx context.Context, a *attempt.Attempt, vs ...violation.Violation) error
	getExam     func(ctx context.Context, examID string) (exam.Exam, error)
}

// mutation changes the attempt in place and returns violations that must
// be stored together with it.
type mutation func(ctx context.Context, a *attempt.Attempt, ex exam.Exam) ([]violation.Violation, error)

func (s attemptStore) load(ctx context.Context, id uuid.UUID) (*attempt.Attempt, exam.Exam, error) {
	a, err := s.getAttempt(ctx, id)
	if err != nil {
		return nil, exam.Exam{}, fmt.Errorf("failed to get attempt: %w", err)
	}
	if a == nil {
		return nil, exam.Exam{}, attempt.ErrAttemptNotFound()
	}
	ex, err := s.getExam(ctx, a.ExamID)
	if err != nil {
		return nil, exam.Exam{}, fmt.Errorf("failed to get exam %s: %w", a.ExamID, err)
	}
	return a, ex, nil
}

// update runs fn on the current state of the attempt and persists the
// result. Nothing is written when fn fails.
func (s attemptStore) update(ctx context.Context, id uuid.UUID, fn mutation) (attempt.Attempt, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	ctx = logger.WithAttemptID(ctx, id)

	a, ex, err := s.load(ctx, id)
	if err != nil {
		return attempt.Attempt{}, err
	}
	vs, err := fn(ctx, a, ex)
	if errors.Is(err, errUnchanged) {
		return *a, nil
	}
	if err != nil {
		return attempt.Attempt{}, err
	}
	if err := s.save(ctx, a, vs...); err != nil {
		return attempt.Attempt{}, err
	}
	return *a, nil
}

func (s attemptStore) save(ctx context.Context, a *attempt.Attempt, vs ...violation.Violation) error {
	if err := a.CheckInvariant(); err != nil {
		return srvcerror.ErrInternalSE().SetDebug(err)
	}
	err := s.saveAttempt(ctx, a, vs...)
	if errors.Is(err, attempt.ErrVersionConflict) {
		return srvcerror.ErrConcurrentModification().SetDebug(err)
	}
	if err != nil {
		return fmt.Errorf("failed to save attempt: %w", err)
	}
	return nil
}
