package exam

import "time"

const (
	DefaultMaxTabSwitches            = 3
	DefaultMaxFullscreenExits        = 3
	DefaultHeartbeatIntervalSec      = 30
	DefaultMissedHeartbeatsLimit     = 3
	DefaultAppealDeadlineHours       = 24
	DefaultDeviceSimilarityThreshold = 70
)

// AntiCheat holds the integrity thresholds of one exam with every
// missing key already resolved to its default.
type AntiCheat struct {
	MaxTabSwitches            int
	MaxFullscreenExits        int
	HeartbeatIntervalSec      int
	MissedHeartbeatsLimit     int
	AppealDeadlineHours       int
	DeviceSimilarityThreshold int
}

func DefaultAntiCheat() AntiCheat {
	return AntiCheat{
		MaxTabSwitches:            DefaultMaxTabSwitches,
		MaxFullscreenExits:        DefaultMaxFullscreenExits,
		HeartbeatIntervalSec:      DefaultHeartbeatIntervalSec,
		MissedHeartbeatsLimit:     DefaultMissedHeartbeatsLimit,
		AppealDeadlineHours:       DefaultAppealDeadlineHours,
		DeviceSimilarityThreshold: DefaultDeviceSimilarityThreshold,
	}
}

func (a AntiCheat) HeartbeatInterval() time.Duration {
	return time.Duration(a.HeartbeatIntervalSec) * time.Second
}

func (a AntiCheat) AppealDeadline() time.Duration {
	return time.Duration(a.AppealDeadlineHours) * time.Hour
}

// antiCheatToml distinguishes an absent key from an explicit zero.
type antiCheatToml struct {
	MaxTabSwitches            *int `toml:"max_tab_switches" validate:"omitempty,gte=0"`
	MaxFullscreenExits        *int `toml:"max_fullscreen_exits" validate:"omitempty,gte=0"`
	HeartbeatIntervalSec      *int `toml:"heartbeat_interval_seconds" validate:"omitempty,gt=0"`
	MissedHeartbeatsLimit     *int `toml:"missed_heartbeats_limit" validate:"omitempty,gt=0"`
	AppealDeadlineHours       *int `toml:"appeal_deadline_hours" validate:"omitempty,gt=0"`
	DeviceSimilarityThreshold *int `toml:"device_similarity_threshold" validate:"omitempty,gte=0,lte=100"`
}

func (t antiCheatToml) resolve() AntiCheat {
	res := DefaultAntiCheat()
	setIfPresent := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setIfPresent(&res.MaxTabSwitches, t.MaxTabSwitches)
	setIfPresent(&res.MaxFullscreenExits, t.MaxFullscreenExits)
	setIfPresent(&res.HeartbeatIntervalSec, t.HeartbeatIntervalSec)
	setIfPresent(&res.MissedHeartbeatsLimit, t.MissedHeartbeatsLimit)
	setIfPresent(&res.AppealDeadlineHours, t.AppealDeadlineHours)
	setIfPresent(&res.DeviceSimilarityThreshold, t.DeviceSimilarityThreshold)
	return res
}
