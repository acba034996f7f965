// Package registration is the engine's view of exam registrations,
// which are owned by the enrollment part of the platform.
package registration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusConfirmed    Status = "confirmed"
	StatusCancelled    Status = "cancelled"
	StatusDisqualified Status = "disqualified"
)

type Registration struct {
	UUID               uuid.UUID
	ExamID             string
	UserUUID           uuid.UUID
	Status             Status
	DisqualifiedReason *string
	UpdatedAt          time.Time
}

type Registry interface {
	// IsConfirmed reports whether the registration is confirmed and
	// belongs to the given participant and exam.
	IsConfirmed(ctx context.Context, id uuid.UUID, examID string, userUUID uuid.UUID) (bool, error)
	// Disqualify marks the registration as disqualified with a reason.
	Disqualify(ctx context.Context, id uuid.UUID, reason string) error
	// Reinstate confirms a disqualified registration again after a
	// successful appeal. Other registrations are left as they are.
	Reinstate(ctx context.Context, id uuid.UUID) error
}
