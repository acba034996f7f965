// Package notify carries engine events to other parts of the platform.
// Delivery is fire-and-forget: a failed notification never undoes the
// state change that caused it.
package notify

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeAttemptDisqualified = "attempt.disqualified"
	TypeAppealResolved      = "appeal.resolved"
	TypeLeaderboardUpdated  = "leaderboard.updated"
)

type Event interface {
	Type() string
}

type AttemptDisqualified struct {
	AttemptUUID uuid.UUID `json:"attempt_uuid"`
	ExamID      string    `json:"exam_id"`
	UserUUID    uuid.UUID `json:"user_uuid"`
	Reason      string    `json:"reason"`
	At          time.Time `json:"at"`
}

func (e AttemptDisqualified) Type() string {
	return TypeAttemptDisqualified
}

type AppealResolved struct {
	AppealUUID  uuid.UUID `json:"appeal_uuid"`
	AttemptUUID uuid.UUID `json:"attempt_uuid"`
	ExamID      string    `json:"exam_id"`
	UserUUID    uuid.UUID `json:"user_uuid"`
	Status      string    `json:"status"`
	Resolution  string    `json:"resolution"`
	Note        string    `json:"note"`
	At          time.Time `json:"at"`
}

func (e AppealResolved) Type() string {
	return TypeAppealResolved
}

type LeaderboardUpdated struct {
	ExamID  string    `json:"exam_id"`
	Entries int       `json:"entries"`
	At      time.Time `json:"at"`
}

func (e LeaderboardUpdated) Type() string {
	return TypeLeaderboardUpdated
}
