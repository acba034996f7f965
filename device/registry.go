package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/logger"
)

var ErrVersionConflict = errors.New("device was modified concurrently")

type DeviceRepo interface {
	// GetDevice returns nil without an error when the device is unknown.
	GetDevice(ctx context.Context, id uuid.UUID) (*Device, error)
	// SaveDevice stores d if the stored version still equals d.Version,
	// then increments d.Version.
	SaveDevice(ctx context.Context, d *Device) error
}

type Registry struct {
	repo DeviceRepo
	now  func() time.Time
}

func NewRegistry(repo DeviceRepo) *Registry {
	return &Registry{repo: repo, now: time.Now}
}

type RegisterParams struct {
	UserUUID    uuid.UUID
	Fingerprint Fingerprint
	UserAgent   string
	IPAddress   string
	IsVPN       bool
}

// Register records a sighting of a device, creating it on first sight,
// and refreshes its trust score.
func (r *Registry) Register(ctx context.Context, p RegisterParams) (Device, error) {
	if p.Fingerprint.IsEmpty() {
		return Device{}, ErrFingerprintMissing()
	}
	id := DeviceID(p.UserUUID, p.Fingerprint)

	return r.update(ctx, id, func(d *Device, exists bool) {
		now := r.now()
		if !exists {
			*d = Device{
				UUID:            id,
				UserUUID:        p.UserUUID,
				Fingerprint:     p.Fingerprint,
				FingerprintHash: p.Fingerprint.Hash(),
				FirstSeenAt:     now,
			}
		}
		d.UserAgent = p.UserAgent
		d.IPAddress = p.IPAddress
		d.IsVPN = p.IsVPN
		d.LastSeenAt = now
	})
}

func (r *Registry) Get(ctx context.Context, id uuid.UUID) (Device, error) {
	d, err := r.repo.GetDevice(ctx, id)
	if err != nil {
		return Device{}, fmt.Errorf("failed to get device: %w", err)
	}
	if d == nil {
		return Device{}, ErrDeviceNotFound()
	}
	return *d, nil
}

// RecordViolation lowers the trust of a device caught in an integrity event.
func (r *Registry) RecordViolation(ctx context.Context, id uuid.UUID) (Device, error) {
	d, err := r.update(ctx, id, func(d *Device, exists bool) {
		if exists {
			d.ViolationCount++
		}
	})
	if err != nil {
		return Device{}, err
	}
	if d.UUID == uuid.Nil {
		return Device{}, ErrDeviceNotFound()
	}
	return d, nil
}

func (r *Registry) update(ctx context.Context, id uuid.UUID, mutate func(d *Device, exists bool)) (Device, error) {
	log := logger.FromContext(ctx)
	for try := 0; try < 3; try++ {
		stored, err := r.repo.GetDevice(ctx, id)
		if err != nil {
			return Device{}, fmt.Errorf("failed to get device: %w", err)
		}
		var d Device
		exists := stored != nil
		if exists {
			d = *stored
		}
		mutate(&d, exists)
		if d.UUID == uuid.Nil {
			return Device{}, nil
		}
		d.TrustScore = ComputeTrustScore(d)

		err = r.repo.SaveDevice(ctx, &d)
		if errors.Is(err, ErrVersionConflict) {
			log.Debug("device version conflict, retrying", "device_uuid", id, "try", try)
			continue
		}
		if err != nil {
			return Device{}, fmt.Errorf("failed to save device: %w", err)
		}
		return d, nil
	}
	return Device{}, fmt.Errorf("failed to save device %s: %w", id, ErrVersionConflict)
}
