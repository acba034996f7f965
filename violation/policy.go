package violation

// Counter names the attempt counter a violation type feeds.
type Counter int

const (
	CounterWarnings Counter = iota
	CounterTabSwitches
	CounterFullscreenExits
	CounterHeartbeatMisses
)

type Policy struct {
	// Label is used in human readable disqualification reasons.
	Label   string
	Counter Counter
	// Fixed, when set, overrides count based escalation.
	Fixed *Severity
	// ImmediateDisqualify triggers disqualification on the first critical
	// occurrence without consulting any threshold.
	ImmediateDisqualify bool
}

func fixed(s Severity) *Severity {
	return &s
}

var policies = map[Type]Policy{
	TypeTabSwitch: {
		Label:   "tab switch",
		Counter: CounterTabSwitches,
	},
	TypeFullscreenExit: {
		Label:   "fullscreen exit",
		Counter: CounterFullscreenExits,
	},
	TypeMultiDevice: {
		Label:               "multiple devices",
		Counter:             CounterWarnings,
		Fixed:               fixed(SeverityCritical),
		ImmediateDisqualify: true,
	},
	TypeDevtoolsOpen: {
		Label:   "developer tools",
		Counter: CounterWarnings,
	},
	TypeHeartbeatMiss: {
		Label:   "missed heartbeat",
		Counter: CounterHeartbeatMisses,
	},
	TypeVpnDetected: {
		Label:               "vpn usage",
		Counter:             CounterWarnings,
		Fixed:               fixed(SeverityCritical),
		ImmediateDisqualify: true,
	},
	TypeOther: {
		Label:   "integrity warning",
		Counter: CounterWarnings,
	},
}

// AllTypes lists every member of the closed variant.
func AllTypes() []Type {
	return []Type{
		TypeTabSwitch,
		TypeFullscreenExit,
		TypeMultiDevice,
		TypeDevtoolsOpen,
		TypeHeartbeatMiss,
		TypeVpnDetected,
		TypeOther,
	}
}

// ParseType maps a client supplied string onto the closed variant.
// Anything unknown becomes TypeOther.
func ParseType(s string) Type {
	t := Type(s)
	if t == TypeOther {
		return TypeOther
	}
	if _, ok := policies[t]; ok {
		return t
	}
	return TypeOther
}

func (t Type) Policy() Policy {
	if p, ok := policies[t]; ok {
		return p
	}
	return policies[TypeOther]
}

// DetermineSeverity escalates with repetition: 5 or more occurrences
// are high, 3 or more medium, anything less a warning. Hard classified
// types ignore the count.
func DetermineSeverity(t Type, count int) Severity {
	if f := t.Policy().Fixed; f != nil {
		return *f
	}
	switch {
	case count >= 5:
		return SeverityHigh
	case count >= 3:
		return SeverityMedium
	default:
		return SeverityWarning
	}
}
