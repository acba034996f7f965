package violation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeTabSwitch      Type = "tab_switch"
	TypeFullscreenExit Type = "fullscreen_exit"
	TypeMultiDevice    Type = "multi_device"
	TypeDevtoolsOpen   Type = "devtools_open"
	TypeHeartbeatMiss  Type = "heartbeat_miss"
	TypeVpnDetected    Type = "vpn_detected"
	// TypeOther stands for every type the engine does not recognise.
	TypeOther Type = "other"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityWarning:  0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

func (s Severity) AtLeast(o Severity) bool {
	return severityRank[s] >= severityRank[o]
}

type Action string

const (
	ActionWarningSent  Action = "warning_sent"
	ActionExamPaused   Action = "exam_paused"
	ActionDisqualified Action = "disqualified"
	ActionIgnored      Action = "ignored"
)

type Resolution string

const (
	ResolutionUpheld         Resolution = "upheld"
	ResolutionReinstated     Resolution = "reinstated"
	ResolutionWarningReduced Resolution = "warning_reduced"
	ResolutionPartial        Resolution = "partial"
)

// Violation is one detected integrity event kind on one attempt.
// Repeated occurrences of the same type bump Count; Count and Severity
// only grow until the violation is resolved.
type Violation struct {
	UUID        uuid.UUID
	AttemptUUID uuid.UUID
	DeviceUUID  *uuid.UUID
	Type        Type
	RawType     string // as reported by the client
	Count       int
	Severity    Severity
	Action      Action
	Details     string
	Resolved    bool
	Resolution  *Resolution
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func New(attemptUUID uuid.UUID, rawType string, now time.Time) Violation {
	t := ParseType(rawType)
	return Violation{
		UUID:        uuid.New(),
		AttemptUUID: attemptUUID,
		Type:        t,
		RawType:     rawType,
		Count:       0,
		Severity:    SeverityWarning,
		Action:      ActionWarningSent,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Occur records one more occurrence and re-derives severity.
func (v *Violation) Occur(now time.Time) error {
	if v.Resolved {
		return fmt.Errorf("violation %s is resolved", v.UUID)
	}
	v.Count++
	sev := DetermineSeverity(v.Type, v.Count)
	if sev.AtLeast(v.Severity) {
		v.Severity = sev
	}
	v.UpdatedAt = now
	return nil
}

func (v *Violation) Resolve(r Resolution, now time.Time) {
	v.Resolution = &r
	v.Resolved = r == ResolutionUpheld || r == ResolutionReinstated
	v.UpdatedAt = now
}
