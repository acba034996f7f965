// Package appeal lets a disqualified participant contest the violation
// that disqualified them.
package appeal

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/srvcerror"
	"github.com/programme-lv/proctor/violation"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
)

func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusUnderReview
}

type Appeal struct {
	UUID          uuid.UUID
	AttemptUUID   uuid.UUID
	ViolationUUID uuid.UUID
	UserUUID      uuid.UUID

	Reason   string
	Evidence string
	// EvidenceKey locates the archived evidence bundle, nil until archived.
	EvidenceKey *string

	Status         Status
	Deadline       time.Time
	Resolution     *violation.Resolution
	ResolutionNote string
	ReviewerUUID   *uuid.UUID

	CreatedAt  time.Time
	ResolvedAt *time.Time
}

type FileParams struct {
	UserUUID uuid.UUID
	Reason   string
	Evidence string
	// Window is how long after the violation an appeal may be filed.
	Window time.Duration
}

// File opens an appeal against a violation that disqualified the
// attempt. The window counts from the creation of the violation.
func File(v violation.Violation, a attempt.Attempt, p FileParams, now time.Time) (Appeal, error) {
	if v.AttemptUUID != a.UUID {
		return Appeal{}, ErrViolationNotAppealable("the violation belongs to another attempt")
	}
	if v.Action != violation.ActionDisqualified || a.Status != attempt.StatusDisqualified {
		return Appeal{}, ErrViolationNotAppealable("only a violation that disqualified the attempt can be appealed")
	}
	if v.Resolved {
		return Appeal{}, ErrViolationNotAppealable("the violation has already been resolved")
	}
	reason := strings.TrimSpace(p.Reason)
	if reason == "" {
		return Appeal{}, srvcerror.ErrInvalidRequest("the appeal needs a reason")
	}
	deadline := v.CreatedAt.Add(p.Window)
	if now.After(deadline) {
		return Appeal{}, ErrAppealWindowClosed(deadline)
	}
	return Appeal{
		UUID:          uuid.New(),
		AttemptUUID:   a.UUID,
		ViolationUUID: v.UUID,
		UserUUID:      p.UserUUID,
		Reason:        reason,
		Evidence:      p.Evidence,
		Status:        StatusPending,
		Deadline:      deadline,
		CreatedAt:     now,
	}, nil
}

func (ap *Appeal) StartReview(reviewer uuid.UUID) error {
	if ap.Status != StatusPending {
		return ErrInvalidTransition(ap.Status, "start the review")
	}
	ap.Status = StatusUnderReview
	ap.ReviewerUUID = &reviewer
	return nil
}

// Approve closes the review in the participant's favour. Only
// ResolutionReinstated lifts the disqualification; the other
// resolutions record intent.
func (ap *Appeal) Approve(r violation.Resolution, note string, reviewer uuid.UUID, now time.Time) error {
	switch r {
	case violation.ResolutionReinstated, violation.ResolutionWarningReduced, violation.ResolutionPartial:
	default:
		return srvcerror.ErrInvalidRequest("an approval must reinstate, reduce to a warning or partially accept")
	}
	return ap.resolve(StatusApproved, r, note, reviewer, now)
}

// Reject upholds the disqualification.
func (ap *Appeal) Reject(note string, reviewer uuid.UUID, now time.Time) error {
	return ap.resolve(StatusRejected, violation.ResolutionUpheld, note, reviewer, now)
}

func (ap *Appeal) resolve(s Status, r violation.Resolution, note string, reviewer uuid.UUID, now time.Time) error {
	if ap.Status != StatusUnderReview {
		return ErrInvalidTransition(ap.Status, "resolve the appeal")
	}
	if strings.TrimSpace(note) == "" {
		return srvcerror.ErrInvalidRequest("the resolution needs a note for the participant")
	}
	ap.Status = s
	ap.Resolution = &r
	ap.ResolutionNote = note
	ap.ReviewerUUID = &reviewer
	ap.ResolvedAt = &now
	return nil
}
