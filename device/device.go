package device

import (
	"time"

	"github.com/google/uuid"
)

var deviceNamespace = uuid.MustParse("6f1f5d0e-7a43-4c8f-9a55-3b0c2e6d9a10")

type Device struct {
	UUID            uuid.UUID
	UserUUID        uuid.UUID
	Fingerprint     Fingerprint
	FingerprintHash string
	UserAgent       string
	IPAddress       string
	IsVPN           bool
	ViolationCount  int
	TrustScore      int
	FirstSeenAt     time.Time
	LastSeenAt      time.Time
	Version         int
}

// DeviceID derives the device id from its owner and fingerprint so a
// returning device maps onto the same record without a secondary index.
func DeviceID(userUUID uuid.UUID, fp Fingerprint) uuid.UUID {
	return uuid.NewSHA1(deviceNamespace, []byte(userUUID.String()+":"+fp.Hash()))
}

// ComputeTrustScore rates a device in [0,100].
func ComputeTrustScore(d Device) int {
	score := 100
	if d.IsVPN {
		score -= 40
	}
	score -= 5 * d.Fingerprint.MissingFields()
	score -= 10 * d.ViolationCount
	if score < 0 {
		return 0
	}
	return score
}

type LockStatus string

const (
	LockActive   LockStatus = "active"
	LockReleased LockStatus = "released"
	LockViolated LockStatus = "violated"
)

// Lock binds one attempt to one device for the attempt's duration.
type Lock struct {
	UUID        uuid.UUID
	AttemptUUID uuid.UUID
	DeviceUUID  uuid.UUID
	Status      LockStatus
	LockedAt    time.Time
	ReleasedAt  *time.Time
}
