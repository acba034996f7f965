package attempt

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/exam"
	"github.com/programme-lv/proctor/violation"
)

func ptr[T any](v T) *T {
	return &v
}

// Start opens the attempt and its first section. Each configured
// section gets a section attempt with the maximum score copied from
// its definition.
func (a *Attempt) Start(ex exam.Exam, now time.Time) error {
	if a.StartedAt != nil || a.Status != StatusNotStarted {
		return ErrAlreadyStarted()
	}
	sections := ex.OrderedSections()
	if len(sections) == 0 {
		return ErrSectionNotConfigured()
	}

	a.StartedAt = ptr(now)
	a.LastHeartbeatAt = ptr(now)
	a.Status = StatusInProgress
	a.SessionToken = newSessionToken()
	a.Sections = make([]SectionAttempt, 0, len(sections))
	for i, s := range sections {
		a.Sections = append(a.Sections, SectionAttempt{
			UUID:        uuid.New(),
			AttemptUUID: a.UUID,
			SectionID:   s.ID,
			SectionType: s.Type,
			Order:       i,
			Status:      SectionNotStarted,
			MaxScore:    s.MaxPointsDec(),
		})
	}
	a.CurrSectionIdx = 0
	a.Sections[0].begin(now)
	return nil
}

func (s *SectionAttempt) begin(now time.Time) {
	s.StartedAt = ptr(now)
	s.Status = SectionInProgress
}

func (s *SectionAttempt) complete(now time.Time) error {
	if s.CompletedAt != nil {
		return ErrInvalidTransition(s.Status, "complete the section")
	}
	s.CompletedAt = ptr(now)
	if s.StartedAt != nil && now.After(*s.StartedAt) {
		s.DurationUsedSec = int(now.Sub(*s.StartedAt) / time.Second)
	}
	s.Status = SectionCompleted
	return nil
}

// RequireInProgress rejects work on an attempt that is not running.
func (a *Attempt) RequireInProgress(action string) error {
	switch a.Status {
	case StatusInProgress:
		return nil
	case StatusNotStarted:
		return ErrNotStarted()
	default:
		return ErrInvalidTransition(a.Status, action)
	}
}

type AnswerInput struct {
	SectionID    string
	QuestionID   string
	Payload      json.RawMessage
	TimeSpentSec int
	Flagged      bool
}

// PutAnswer stores or replaces an answer in the current section.
func (a *Attempt) PutAnswer(ex exam.Exam, in AnswerInput, now time.Time) (Answer, error) {
	if err := a.RequireInProgress("answer"); err != nil {
		return Answer{}, err
	}
	if a.IsExpired(ex, now) {
		return Answer{}, ErrAttemptExpired()
	}
	cur := a.CurrentSection()
	if cur == nil || cur.SectionID != in.SectionID {
		return Answer{}, ErrSectionNotActive(in.SectionID)
	}
	if rem, limited := a.SectionTimeRemaining(ex, now); limited && rem <= 0 {
		return Answer{}, ErrSectionTimeOver(in.SectionID)
	}
	def, ok := ex.Section(in.SectionID)
	if !ok {
		return Answer{}, ErrSectionNotActive(in.SectionID)
	}
	q, ok := def.Question(in.QuestionID)
	if !ok {
		return Answer{}, ErrQuestionNotFound(in.QuestionID)
	}

	ans := Answer{
		UUID:                  uuid.New(),
		QuestionID:            q.ID,
		Payload:               slices.Clone(in.Payload),
		MaxPoints:             q.MaxPointsDec(),
		TimeSpentSec:          max(in.TimeSpentSec, 0),
		FlaggedForReview:      in.Flagged,
		RequiresManualGrading: q.Type.NeedsManualGrading(),
		SubmittedAt:           now,
	}
	if prev := cur.Answer(q.ID); prev != nil {
		if prev.Graded {
			return Answer{}, ErrAnswerAlreadyGraded()
		}
		ans.UUID = prev.UUID
		*prev = ans
	} else {
		cur.Answers = append(cur.Answers, ans)
	}
	cur.AnsweredCount = len(cur.Answers)
	return ans, nil
}

// AdvanceSection completes the current section and opens the next one.
// Advancing from the last section leaves no section open.
func (a *Attempt) AdvanceSection(ex exam.Exam, now time.Time) error {
	if err := a.RequireInProgress("advance the section"); err != nil {
		return err
	}
	if a.IsExpired(ex, now) {
		return ErrAttemptExpired()
	}
	cur := a.CurrentSection()
	if cur == nil {
		return ErrNoOpenSection()
	}
	if err := cur.complete(now); err != nil {
		return err
	}
	a.CurrSectionIdx++
	if next := a.CurrentSection(); next != nil {
		next.begin(now)
	}
	return nil
}

// freeze closes the attempt clock and every open section at t.
func (a *Attempt) freeze(t time.Time) {
	a.CompletedAt = ptr(t)
	for i := range a.Sections {
		if a.Sections[i].CompletedAt == nil {
			_ = a.Sections[i].complete(t)
		}
	}
	a.CurrSectionIdx = len(a.Sections)
}

// Submit hands the attempt in for scoring. It reports done=true when
// the attempt was handed in before and nothing needs to happen.
func (a *Attempt) Submit(now time.Time) (done bool, err error) {
	if a.Status.IsScored() {
		return true, nil
	}
	if err := a.RequireInProgress("submit the attempt"); err != nil {
		return false, err
	}
	a.freeze(now)
	a.Status = StatusSubmitted
	return false, nil
}

// Expire force-closes an attempt whose time has run out. An attempt
// without answers ends as expired; otherwise it is submitted at its
// deadline and needs scoring.
func (a *Attempt) Expire(ex exam.Exam, now time.Time) (needsScoring bool, err error) {
	if err := a.RequireInProgress("expire the attempt"); err != nil {
		return false, err
	}
	if !a.IsExpired(ex, now) {
		return false, ErrNotExpired()
	}
	a.freeze(a.StartedAt.Add(ex.TotalDuration()))
	if len(a.Answers()) == 0 {
		a.Status = StatusExpired
		return false, nil
	}
	a.Status = StatusSubmitted
	return true, nil
}

func (a *Attempt) Abandon(now time.Time) error {
	switch a.Status {
	case StatusNotStarted:
	case StatusInProgress:
		a.freeze(now)
	default:
		return ErrInvalidTransition(a.Status, "abandon the attempt")
	}
	a.Status = StatusAbandoned
	return nil
}

// Settle moves a scored attempt to graded, or to grading while any
// section still needs a manual grade.
func (a *Attempt) Settle() {
	a.RequiresManualGrading = false
	for _, s := range a.Sections {
		if s.RequiresManualGrading {
			a.RequiresManualGrading = true
		}
	}
	if a.RequiresManualGrading {
		a.Status = StatusGrading
	} else {
		a.Status = StatusGraded
	}
}

// Disqualify is a no-op returning changed=false on an already
// disqualified attempt.
func (a *Attempt) Disqualify(reason string, now time.Time) (changed bool, err error) {
	switch a.Status {
	case StatusDisqualified:
		return false, nil
	case StatusInProgress, StatusSubmitted, StatusGrading:
	default:
		return false, ErrInvalidTransition(a.Status, "disqualify the attempt")
	}

	a.DisqualificationSnapshot = a.snapshotAnswers()
	a.IsDisqualified = true
	a.DisqualifiedReason = ptr(reason)
	a.DisqualifiedAt = ptr(now)
	a.Status = StatusDisqualified
	return true, nil
}

func (a *Attempt) snapshotAnswers() []AnswerSnapshot {
	res := []AnswerSnapshot{}
	for _, s := range a.Sections {
		for _, ans := range s.Answers {
			res = append(res, AnswerSnapshot{
				SectionID:    s.SectionID,
				QuestionID:   ans.QuestionID,
				Payload:      slices.Clone(ans.Payload),
				TimeSpentSec: ans.TimeSpentSec,
			})
		}
	}
	return res
}

// Reinstate reverses a disqualification. The attempt re-enters the
// grading flow as submitted; an attempt stopped mid-exam is frozen at
// the moment it was disqualified.
func (a *Attempt) Reinstate() error {
	if a.Status != StatusDisqualified {
		return ErrInvalidTransition(a.Status, "reinstate the attempt")
	}
	if a.CompletedAt == nil && a.StartedAt != nil {
		at := *a.StartedAt
		if a.DisqualifiedAt != nil {
			at = *a.DisqualifiedAt
		}
		a.freeze(at)
	}
	a.IsDisqualified = false
	a.DisqualifiedReason = nil
	a.Status = StatusSubmitted
	return nil
}

// Heartbeat marks the participant as alive.
func (a *Attempt) Heartbeat(now time.Time) error {
	if err := a.RequireInProgress("send a heartbeat"); err != nil {
		return err
	}
	a.LastHeartbeatAt = ptr(now)
	return nil
}

// RegisterViolation bumps the counter fed by the violation's type and
// reports whether the exam's limits now demand disqualification.
func (a *Attempt) RegisterViolation(v violation.Violation, ac exam.AntiCheat) (reason string, disqualify bool) {
	policy := v.Type.Policy()
	switch policy.Counter {
	case violation.CounterTabSwitches:
		a.TabSwitches++
	case violation.CounterFullscreenExits:
		a.FullscreenExits++
	case violation.CounterHeartbeatMisses:
		a.HeartbeatMisses++
	default:
		a.Warnings++
	}

	if policy.ImmediateDisqualify && v.Severity == violation.SeverityCritical {
		return fmt.Sprintf("critical violation: %s", policy.Label), true
	}
	switch policy.Counter {
	case violation.CounterTabSwitches:
		if a.TabSwitches > ac.MaxTabSwitches {
			return limitReason(policy.Label, a.TabSwitches, ac.MaxTabSwitches), true
		}
	case violation.CounterFullscreenExits:
		if a.FullscreenExits > ac.MaxFullscreenExits {
			return limitReason(policy.Label, a.FullscreenExits, ac.MaxFullscreenExits), true
		}
	}
	return "", false
}

func limitReason(label string, count, allowed int) string {
	return fmt.Sprintf("%s limit exceeded: %d occurrences, %d allowed", label, count, allowed)
}

// CheckInvariant verifies the rules every stored attempt obeys.
func (a *Attempt) CheckInvariant() error {
	if a.IsDisqualified != (a.Status == StatusDisqualified) {
		return fmt.Errorf("attempt %s: disqualified flag %v with status %s", a.UUID, a.IsDisqualified, a.Status)
	}
	if a.IsDisqualified && a.DisqualifiedReason == nil {
		return fmt.Errorf("attempt %s: disqualified without a reason", a.UUID)
	}
	if a.StartedAt == nil && len(a.Sections) > 0 {
		return fmt.Errorf("attempt %s: sections exist before start", a.UUID)
	}
	if a.StartedAt == nil && a.Status != StatusNotStarted && a.Status != StatusAbandoned {
		return fmt.Errorf("attempt %s: status %s without start time", a.UUID, a.Status)
	}
	return nil
}
