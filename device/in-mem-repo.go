package device

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

type InMemDeviceRepo struct {
	devices *xsync.MapOf[uuid.UUID, Device]
}

func NewInMemDeviceRepo() *InMemDeviceRepo {
	return &InMemDeviceRepo{devices: xsync.NewMapOf[uuid.UUID, Device]()}
}

func (r *InMemDeviceRepo) GetDevice(ctx context.Context, id uuid.UUID) (*Device, error) {
	d, ok := r.devices.Load(id)
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r *InMemDeviceRepo) SaveDevice(ctx context.Context, d *Device) error {
	conflict := false
	r.devices.Compute(d.UUID, func(old Device, loaded bool) (Device, bool) {
		if (loaded && old.Version != d.Version) || (!loaded && d.Version != 0) {
			conflict = true
			return old, !loaded
		}
		next := *d
		next.Version++
		return next, false
	})
	if conflict {
		return ErrVersionConflict
	}
	d.Version++
	return nil
}

// InMemLockRepo keeps device locks in process memory. All operations
// run under one mutex, which makes acquisition a compare-and-set.
type InMemLockRepo struct {
	mu    sync.Mutex
	locks map[uuid.UUID][]Lock // attempt uuid -> lock history
}

func NewInMemLockRepo() *InMemLockRepo {
	return &InMemLockRepo{locks: make(map[uuid.UUID][]Lock)}
}

func (r *InMemLockRepo) AcquireLock(ctx context.Context, attemptUUID uuid.UUID, deviceUUID uuid.UUID, now time.Time) (Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.locks[attemptUUID] {
		if l.Status != LockActive {
			continue
		}
		if l.DeviceUUID != deviceUUID {
			return Lock{}, ErrDeviceConflict()
		}
		return l, nil
	}

	l := Lock{
		UUID:        uuid.New(),
		AttemptUUID: attemptUUID,
		DeviceUUID:  deviceUUID,
		Status:      LockActive,
		LockedAt:    now,
	}
	r.locks[attemptUUID] = append(r.locks[attemptUUID], l)
	return l, nil
}

func (r *InMemLockRepo) GetActiveLock(ctx context.Context, attemptUUID uuid.UUID) (*Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.locks[attemptUUID] {
		if l.Status == LockActive {
			return &l, nil
		}
	}
	return nil, nil
}

func (r *InMemLockRepo) ReleaseLock(ctx context.Context, attemptUUID uuid.UUID, status LockStatus, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := r.locks[attemptUUID]
	for i := range history {
		if history[i].Status == LockActive {
			history[i].Status = status
			history[i].ReleasedAt = &now
		}
	}
	return nil
}
