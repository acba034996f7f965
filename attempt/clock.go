package attempt

import (
	"time"

	"github.com/programme-lv/proctor/exam"
)

// The functions below only compare stored timestamps with now. Nothing
// in this package runs timers; callers decide when to enforce expiry.

func (a *Attempt) Deadline(ex exam.Exam) (time.Time, bool) {
	if a.StartedAt == nil {
		return time.Time{}, false
	}
	return a.StartedAt.Add(ex.TotalDuration()), true
}

func (a *Attempt) IsExpired(ex exam.Exam, now time.Time) bool {
	deadline, ok := a.Deadline(ex)
	return ok && now.After(deadline)
}

// TimeRemaining is the full exam duration before start and zero once
// the attempt is no longer running.
func (a *Attempt) TimeRemaining(ex exam.Exam, now time.Time) time.Duration {
	deadline, ok := a.Deadline(ex)
	if !ok {
		return ex.TotalDuration()
	}
	if a.Status != StatusInProgress {
		return 0
	}
	return max(deadline.Sub(now), 0)
}

// SectionTimeRemaining reports limited=false when the current section
// has no duration of its own or no section is open. The result never
// exceeds the time left on the whole attempt.
func (a *Attempt) SectionTimeRemaining(ex exam.Exam, now time.Time) (rem time.Duration, limited bool) {
	cur := a.CurrentSection()
	if cur == nil || cur.StartedAt == nil || a.Status != StatusInProgress {
		return 0, false
	}
	def, ok := ex.Section(cur.SectionID)
	if !ok || def.DurationMin <= 0 {
		return 0, false
	}
	rem = max(cur.StartedAt.Add(def.Duration()).Sub(now), 0)
	return min(rem, a.TimeRemaining(ex, now)), true
}

// MissedHeartbeats counts whole heartbeat intervals elapsed since the
// last heartbeat, or since start when none arrived yet.
func (a *Attempt) MissedHeartbeats(interval time.Duration, now time.Time) int {
	ref := a.LastHeartbeatAt
	if ref == nil {
		ref = a.StartedAt
	}
	if ref == nil || interval <= 0 || !now.After(*ref) {
		return 0
	}
	return int(now.Sub(*ref) / interval)
}
