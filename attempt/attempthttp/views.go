package attempthttp

import (
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/attempt/attemptsrvc"
	"github.com/programme-lv/proctor/scoring"
	"github.com/programme-lv/proctor/violation"
	"github.com/shopspring/decimal"
)

type Counters struct {
	TabSwitches     int `json:"tab_switches"`
	FullscreenExits int `json:"fullscreen_exits"`
	HeartbeatMisses int `json:"heartbeat_misses"`
	Warnings        int `json:"warnings"`
}

type Section struct {
	SectionID     string `json:"section_id"`
	Status        string `json:"status"`
	RawScore      string `json:"raw_score"`
	WeightedScore string `json:"weighted_score"`
	MaxScore      string `json:"max_score"`
	ScorePercent  string `json:"score_percent"`
	Passed        bool   `json:"passed"`
	AnsweredCount int    `json:"answered_count"`
	CorrectCount  int    `json:"correct_count"`
}

type Attempt struct {
	UUID           uuid.UUID  `json:"uuid"`
	ExamID         string     `json:"exam_id"`
	Status         string     `json:"status"`
	SessionToken   string     `json:"session_token,omitempty"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	CurrentSection *string    `json:"current_section"`
	Sections       []Section  `json:"sections"`
	Counters       Counters   `json:"counters"`

	RawScore      string `json:"raw_score"`
	WeightedScore string `json:"weighted_score"`
	MaxScore      string `json:"max_score"`
	ScorePercent  string `json:"score_percent"`

	Disqualified       bool    `json:"disqualified"`
	DisqualifiedReason *string `json:"disqualified_reason"`
	Rank               *int    `json:"rank"`
	Percentile         *string `json:"percentile"`
	ManualGrading      bool    `json:"requires_manual_grading"`
}

func display(d decimal.Decimal) string {
	return scoring.Round2(d).String()
}

func mapAttempt(a attempt.Attempt) Attempt {
	res := Attempt{
		UUID:        a.UUID,
		ExamID:      a.ExamID,
		Status:      string(a.Status),
		StartedAt:   a.StartedAt,
		CompletedAt: a.CompletedAt,
		Sections:    make([]Section, 0, len(a.Sections)),
		Counters: Counters{
			TabSwitches:     a.TabSwitches,
			FullscreenExits: a.FullscreenExits,
			HeartbeatMisses: a.HeartbeatMisses,
			Warnings:        a.Warnings,
		},
		RawScore:           display(a.RawScore),
		WeightedScore:      display(a.WeightedScore),
		MaxScore:           display(a.MaxScore),
		ScorePercent:       display(a.ScorePercent),
		Disqualified:       a.IsDisqualified,
		DisqualifiedReason: a.DisqualifiedReason,
		Rank:               a.Rank,
		ManualGrading:      a.RequiresManualGrading,
	}
	if curr := a.CurrentSection(); curr != nil && a.Status == attempt.StatusInProgress {
		res.CurrentSection = &curr.SectionID
	}
	if a.Percentile != nil {
		p := display(*a.Percentile)
		res.Percentile = &p
	}
	for _, s := range a.Sections {
		res.Sections = append(res.Sections, Section{
			SectionID:     s.SectionID,
			Status:        string(s.Status),
			RawScore:      display(s.RawScore),
			WeightedScore: display(s.WeightedScore),
			MaxScore:      display(s.MaxScore),
			ScorePercent:  display(s.ScorePercent),
			Passed:        s.Passed,
			AnsweredCount: s.AnsweredCount,
			CorrectCount:  s.CorrectCount,
		})
	}
	return res
}

type Violation struct {
	UUID      uuid.UUID `json:"uuid"`
	Type      string    `json:"type"`
	Count     int       `json:"count"`
	Severity  string    `json:"severity"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Resolved  bool      `json:"resolved"`
	CreatedAt time.Time `json:"created_at"`
}

func mapViolation(v violation.Violation) Violation {
	return Violation{
		UUID:      v.UUID,
		Type:      string(v.Type),
		Count:     v.Count,
		Severity:  string(v.Severity),
		Action:    string(v.Action),
		Details:   v.Details,
		Resolved:  v.Resolved,
		CreatedAt: v.CreatedAt,
	}
}

func mapViolations(vs []violation.Violation) []Violation {
	res := make([]Violation, 0, len(vs))
	for _, v := range vs {
		res = append(res, mapViolation(v))
	}
	return res
}

// ViolationOutcome is what the client renders as a live warning.
type ViolationOutcome struct {
	Violation          Violation `json:"violation"`
	AttemptStatus      string    `json:"attempt_status"`
	Counters           Counters  `json:"counters"`
	Disqualified       bool      `json:"disqualified"`
	DisqualifiedReason *string   `json:"disqualified_reason"`
}

func mapOutcome(o attemptsrvc.ViolationOutcome) ViolationOutcome {
	a := mapAttempt(o.Attempt)
	return ViolationOutcome{
		Violation:          mapViolation(o.Violation),
		AttemptStatus:      a.Status,
		Counters:           a.Counters,
		Disqualified:       o.Disqualified,
		DisqualifiedReason: a.DisqualifiedReason,
	}
}

type Remaining struct {
	Status     string `json:"status"`
	TotalSec   int64  `json:"total_sec"`
	SectionSec *int64 `json:"section_sec"`
	Expired    bool   `json:"expired"`
}

func mapRemaining(r attemptsrvc.Remaining) Remaining {
	res := Remaining{
		Status:   string(r.Status),
		TotalSec: int64(r.Total / time.Second),
		Expired:  r.Expired,
	}
	if r.Section != nil {
		sec := int64(*r.Section / time.Second)
		res.SectionSec = &sec
	}
	return res
}

type DeviceCheck struct {
	Similarity    int         `json:"similarity"`
	Threshold     int         `json:"threshold"`
	Violations    []Violation `json:"violations"`
	AttemptStatus string      `json:"attempt_status"`
	Counters      Counters    `json:"counters"`
}

func mapDeviceCheck(c attemptsrvc.DeviceCheck) DeviceCheck {
	a := mapAttempt(c.Attempt)
	return DeviceCheck{
		Similarity:    c.Similarity,
		Threshold:     c.Threshold,
		Violations:    mapViolations(c.Violations),
		AttemptStatus: a.Status,
		Counters:      a.Counters,
	}
}

type Liveness struct {
	Missed        int        `json:"missed"`
	Limit         int        `json:"limit"`
	Violation     *Violation `json:"violation"`
	AttemptStatus string     `json:"attempt_status"`
}

func mapLiveness(l attemptsrvc.Liveness) Liveness {
	res := Liveness{Missed: l.Missed, Limit: l.Limit, AttemptStatus: string(l.Attempt.Status)}
	if l.Violation != nil {
		v := mapViolation(*l.Violation)
		res.Violation = &v
	}
	return res
}

type Answer struct {
	UUID         uuid.UUID `json:"uuid"`
	QuestionID   string    `json:"question_id"`
	TimeSpentSec int       `json:"time_spent_sec"`
	Flagged      bool      `json:"flagged"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

func mapAnswer(a attempt.Answer) Answer {
	return Answer{
		UUID:         a.UUID,
		QuestionID:   a.QuestionID,
		TimeSpentSec: a.TimeSpentSec,
		Flagged:      a.FlaggedForReview,
		SubmittedAt:  a.SubmittedAt,
	}
}
