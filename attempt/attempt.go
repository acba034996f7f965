package attempt

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/exam"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusNotStarted   Status = "not_started"
	StatusInProgress   Status = "in_progress"
	StatusSubmitted    Status = "submitted"
	StatusGrading      Status = "grading"
	StatusGraded       Status = "graded"
	StatusDisqualified Status = "disqualified"
	StatusExpired      Status = "expired"
	StatusAbandoned    Status = "abandoned"
)

// IsScored is true once answers have been handed in for scoring.
func (s Status) IsScored() bool {
	return s == StatusSubmitted || s == StatusGrading || s == StatusGraded
}

type SectionStatus string

const (
	SectionNotStarted SectionStatus = "not_started"
	SectionInProgress SectionStatus = "in_progress"
	SectionCompleted  SectionStatus = "completed"
	SectionGrading    SectionStatus = "grading"
	SectionGraded     SectionStatus = "graded"
)

var attemptNamespace = uuid.MustParse("0b8e3c52-4f0a-4d8e-8f6b-1c2d3e4f5a6b")

// AttemptID is deterministic: a participant gets exactly one attempt per exam.
func AttemptID(examID string, userUUID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(attemptNamespace, []byte(examID+":"+userUUID.String()))
}

type Attempt struct {
	UUID           uuid.UUID
	ExamID         string
	UserUUID       uuid.UUID
	RegistrationID uuid.UUID
	SessionToken   string

	Status      Status
	StartedAt   *time.Time
	CompletedAt *time.Time

	// CurrSectionIdx indexes Sections; equal to len(Sections) once the
	// last section has been completed.
	CurrSectionIdx int
	Sections       []SectionAttempt

	RawScore      decimal.Decimal
	WeightedScore decimal.Decimal
	MaxScore      decimal.Decimal
	ScorePercent  decimal.Decimal

	TabSwitches     int
	FullscreenExits int
	HeartbeatMisses int
	Warnings        int

	IsDisqualified           bool
	DisqualifiedReason       *string
	DisqualifiedAt           *time.Time
	DisqualificationSnapshot []AnswerSnapshot

	Rank       *int
	Percentile *decimal.Decimal

	RequiresManualGrading bool

	// LastHeartbeatAt is the reference point for liveness checks.
	LastHeartbeatAt *time.Time

	Version   int
	CreatedAt time.Time
}

type SectionAttempt struct {
	UUID        uuid.UUID
	AttemptUUID uuid.UUID
	SectionID   string
	SectionType exam.SectionType
	Order       int
	Status      SectionStatus

	StartedAt       *time.Time
	CompletedAt     *time.Time
	DurationUsedSec int

	RawScore      decimal.Decimal
	WeightedScore decimal.Decimal
	MaxScore      decimal.Decimal
	ScorePercent  decimal.Decimal
	Passed        bool

	AnsweredCount         int
	CorrectCount          int
	RequiresManualGrading bool

	Answers []Answer
}

type Answer struct {
	UUID       uuid.UUID
	QuestionID string
	Payload    json.RawMessage

	IsCorrect    *bool
	PointsEarned decimal.Decimal
	MaxPoints    decimal.Decimal
	TimeSpentSec int

	FlaggedForReview      bool
	RequiresManualGrading bool
	Graded                bool
	GradedAt              *time.Time
	SubmittedAt           time.Time
}

// AnswerSnapshot is what gets frozen at disqualification for appeal review.
type AnswerSnapshot struct {
	SectionID    string          `json:"section_id"`
	QuestionID   string          `json:"question_id"`
	Payload      json.RawMessage `json:"payload"`
	TimeSpentSec int             `json:"time_spent_sec"`
}

func New(examID string, userUUID uuid.UUID, registrationID uuid.UUID, now time.Time) Attempt {
	return Attempt{
		UUID:           AttemptID(examID, userUUID),
		ExamID:         examID,
		UserUUID:       userUUID,
		RegistrationID: registrationID,
		Status:         StatusNotStarted,
		CreatedAt:      now,
	}
}

func newSessionToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// CurrentSection returns nil when no section is open.
func (a *Attempt) CurrentSection() *SectionAttempt {
	if a.CurrSectionIdx < 0 || a.CurrSectionIdx >= len(a.Sections) {
		return nil
	}
	return &a.Sections[a.CurrSectionIdx]
}

func (a *Attempt) Section(id string) *SectionAttempt {
	for i := range a.Sections {
		if a.Sections[i].SectionID == id {
			return &a.Sections[i]
		}
	}
	return nil
}

// Answers lists answers of every section in section order.
func (a *Attempt) Answers() []Answer {
	var res []Answer
	for _, s := range a.Sections {
		res = append(res, s.Answers...)
	}
	return res
}

// TimeSpentSec is nil until the attempt has been completed.
func (a *Attempt) TimeSpentSec() *int {
	if a.StartedAt == nil || a.CompletedAt == nil {
		return nil
	}
	sec := int(a.CompletedAt.Sub(*a.StartedAt) / time.Second)
	return &sec
}

// Clone deep copies the attempt so no slice is shared.
func (a Attempt) Clone() Attempt {
	c := a
	c.Sections = slices.Clone(a.Sections)
	for i := range c.Sections {
		c.Sections[i] = c.Sections[i].Clone()
	}
	c.DisqualificationSnapshot = slices.Clone(a.DisqualificationSnapshot)
	return c
}

func (s SectionAttempt) Clone() SectionAttempt {
	c := s
	c.Answers = slices.Clone(s.Answers)
	for i := range c.Answers {
		c.Answers[i].Payload = slices.Clone(c.Answers[i].Payload)
	}
	return c
}

func (s *SectionAttempt) Answer(questionID string) *Answer {
	for i := range s.Answers {
		if s.Answers[i].QuestionID == questionID {
			return &s.Answers[i]
		}
	}
	return nil
}

// PendingAnswers counts answers still waiting for a grade.
func (s *SectionAttempt) PendingAnswers() int {
	n := 0
	for _, ans := range s.Answers {
		if !ans.Graded {
			n++
		}
	}
	return n
}
