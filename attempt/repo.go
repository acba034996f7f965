package attempt

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/violation"
	"github.com/shopspring/decimal"
)

var ErrVersionConflict = errors.New("attempt was modified concurrently")

// RankUpdate mirrors a leaderboard placement onto the attempt record.
type RankUpdate struct {
	AttemptUUID uuid.UUID
	Rank        *int
	Percentile  *decimal.Decimal
}

type Repo interface {
	// GetAttempt returns nil without an error when the attempt is unknown.
	GetAttempt(ctx context.Context, id uuid.UUID) (*Attempt, error)
	// SaveAttempt stores the whole attempt aggregate together with the
	// given violations in one transaction. The write only succeeds if the
	// stored version still equals a.Version (0 for a new attempt), after
	// which a.Version is incremented.
	SaveAttempt(ctx context.Context, a *Attempt, vs ...violation.Violation) error
	// ListExamAttempts returns attempts of one exam without their answers.
	ListExamAttempts(ctx context.Context, examID string) ([]Attempt, error)
	// ListInProgress lists running attempts; an empty examID means all exams.
	ListInProgress(ctx context.Context, examID string) ([]Attempt, error)
	// SetRanks writes derived leaderboard data without touching versions.
	SetRanks(ctx context.Context, ranks []RankUpdate) error

	GetViolation(ctx context.Context, id uuid.UUID) (*violation.Violation, error)
	FindViolation(ctx context.Context, attemptUUID uuid.UUID, t violation.Type) (*violation.Violation, error)
	ListViolations(ctx context.Context, attemptUUID uuid.UUID) ([]violation.Violation, error)
	SaveViolation(ctx context.Context, v violation.Violation) error
}
